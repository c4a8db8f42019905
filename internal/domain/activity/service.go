package activity

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
	"github.com/prettyneat-io/pumpfleet/internal/platform/db"
	"github.com/prettyneat-io/pumpfleet/internal/platform/websocket"
)

// Service is the audit sink and reminder service. Every note and reminder
// change is published to the live feed once the surrounding transaction
// commits.
type Service struct {
	notes     NoteRepository
	reminders ReminderRepository
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(notes NoteRepository, reminders ReminderRepository, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{
		notes:     notes,
		reminders: reminders,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Post appends a note to a record. The author is the acting user on ctx.
func (s *Service) Post(ctx context.Context, recordType string, recordID uuid.UUID, body string) (*Note, error) {
	if !ValidRecordType(recordType) {
		return nil, apperr.Validation("Unknown record type %q.", recordType)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("Note body is required.")
	}
	n := &Note{
		RecordType: recordType,
		RecordID:   recordID,
		Body:       body,
		Author:     auth.ActorFromContext(ctx),
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, err
	}
	s.publish(ctx, EventNoteCreated, websocket.Topic(recordType, recordID), recordType, recordID, n)
	return n, nil
}

func (s *Service) Notes(ctx context.Context, recordType string, recordID uuid.UUID, limit, offset int) ([]*Note, int, error) {
	return s.notes.ListByRecord(ctx, recordType, recordID, limit, offset)
}

func (s *Service) CreateReminder(ctx context.Context, r *Reminder) error {
	if !ValidRecordType(r.RecordType) {
		return apperr.Validation("Unknown record type %q.", r.RecordType)
	}
	if r.Kind == "" || r.Summary == "" {
		return apperr.Validation("Reminder kind and summary are required.")
	}
	if r.Assignee == "" {
		return apperr.Validation("Reminder assignee is required.")
	}
	if r.Deadline.IsZero() {
		return apperr.Validation("Reminder deadline is required.")
	}
	r.Status = ReminderStatusOpen
	if err := s.reminders.Create(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, EventReminderCreated, TopicReminders, r.RecordType, r.RecordID, r)
	return nil
}

func (s *Service) HasOpenReminder(ctx context.Context, recordType string, recordID uuid.UUID, kind string) (bool, error) {
	return s.reminders.HasOpen(ctx, recordType, recordID, kind)
}

// ResolveForRecord closes every open reminder on the record and returns how
// many were closed.
func (s *Service) ResolveForRecord(ctx context.Context, recordType string, recordID uuid.UUID) (int, error) {
	resolved, err := s.reminders.ResolveOpen(ctx, recordType, recordID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, r := range resolved {
		s.publish(ctx, EventReminderResolved, TopicReminders, r.RecordType, r.RecordID, r)
	}
	return len(resolved), nil
}

// MarkDone resolves a single reminder by hand.
func (s *Service) MarkDone(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	if err := s.reminders.MarkDone(ctx, id, s.now().UTC()); err != nil {
		return nil, err
	}
	r, err := s.reminders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventReminderResolved, TopicReminders, r.RecordType, r.RecordID, r)
	return r, nil
}

func (s *Service) GetReminder(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.reminders.GetByID(ctx, id)
}

func (s *Service) ListReminders(ctx context.Context, f ReminderFilter, limit, offset int) ([]*Reminder, int, error) {
	return s.reminders.List(ctx, f, limit, offset)
}

// ListOpen returns open reminders addressed to assignee, soonest deadline
// first. An empty assignee matches every group.
func (s *Service) ListOpen(ctx context.Context, assignee string, limit, offset int) ([]*Reminder, int, error) {
	return s.reminders.List(ctx, ReminderFilter{Assignee: assignee, Status: ReminderStatusOpen}, limit, offset)
}

func (s *Service) publish(ctx context.Context, eventType, topic, recordType string, recordID uuid.UUID, payload interface{}) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("marshal live event")
		return
	}
	event := websocket.Event{
		Type:       eventType,
		Topic:      topic,
		RecordType: recordType,
		RecordID:   recordID.String(),
		Data:       data,
	}
	db.AfterCommit(ctx, func() {
		if err := s.publisher.Publish(context.Background(), event); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("publish live event")
		}
	})
}
