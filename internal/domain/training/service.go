package training

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
)

type Service struct {
	locations Repository
}

func NewService(locations Repository) *Service {
	return &Service{locations: locations}
}

func (s *Service) CreateLocation(ctx context.Context, l *Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return apperr.Validation("Training location name is required.")
	}
	return s.locations.Create(ctx, l)
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return s.locations.GetByID(ctx, id)
}

func (s *Service) UpdateLocation(ctx context.Context, l *Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return apperr.Validation("Training location name is required.")
	}
	return s.locations.Update(ctx, l)
}

func (s *Service) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	return s.locations.Delete(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, activeOnly bool, limit, offset int) ([]*Location, int, error) {
	return s.locations.List(ctx, activeOnly, limit, offset)
}
