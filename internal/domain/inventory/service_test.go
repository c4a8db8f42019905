package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/domain/equipment"
	"github.com/prettyneat-io/pumpfleet/internal/domain/syncguard"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

type mockLocationRepo struct {
	store map[uuid.UUID]*Location
}

func (m *mockLocationRepo) Create(_ context.Context, l *Location) error {
	l.ID = uuid.New()
	c := *l
	m.store[l.ID] = &c
	return nil
}

func (m *mockLocationRepo) GetByID(_ context.Context, id uuid.UUID) (*Location, error) {
	l, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("Location %s not found.", id)
	}
	c := *l
	return &c, nil
}

func (m *mockLocationRepo) List(_ context.Context, usage string, limit, offset int) ([]*Location, int, error) {
	var r []*Location
	for _, l := range m.store {
		if usage == "" || l.Usage == usage {
			r = append(r, l)
		}
	}
	return r, len(r), nil
}

type mockMovementRepo struct {
	items []*Movement
}

func (m *mockMovementRepo) Create(_ context.Context, mv *Movement) error {
	mv.ID = uuid.New()
	c := *mv
	m.items = append(m.items, &c)
	return nil
}

func (m *mockMovementRepo) ListByEquipment(_ context.Context, equipmentID uuid.UUID, limit, offset int) ([]*Movement, int, error) {
	var r []*Movement
	for _, mv := range m.items {
		if mv.EquipmentID == equipmentID {
			r = append(r, mv)
		}
	}
	return r, len(r), nil
}

type mockUnitStore struct {
	units   map[uuid.UUID]*equipment.Unit
	guarded int
}

func (m *mockUnitStore) GetUnit(_ context.Context, id uuid.UUID) (*equipment.Unit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, apperr.NotFound("Equipment %s not found.", id)
	}
	c := *u
	return &c, nil
}

func (m *mockUnitStore) UpdateUnit(ctx context.Context, u *equipment.Unit) error {
	if syncguard.Active(ctx) {
		m.guarded++
	}
	c := *u
	m.units[u.ID] = &c
	return nil
}

type directTx struct{}

func (directTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc       *Service
	locations *mockLocationRepo
	movements *mockMovementRepo
	units     *mockUnitStore
}

func newFixture() *fixture {
	f := &fixture{
		locations: &mockLocationRepo{store: make(map[uuid.UUID]*Location)},
		movements: &mockMovementRepo{},
		units:     &mockUnitStore{units: make(map[uuid.UUID]*equipment.Unit)},
	}
	f.svc = NewService(f.locations, f.movements, f.units, directTx{})
	return f
}

func (f *fixture) addUnit(state string) *equipment.Unit {
	u := &equipment.Unit{ID: uuid.New(), SerialNumber: "SN-" + uuid.NewString()[:6], State: state}
	f.units.units[u.ID] = u
	return u
}

func TestCreateLocation_DefaultsUsage(t *testing.T) {
	f := newFixture()
	l := &Location{Name: "Returns"}
	if err := f.svc.CreateLocation(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Usage != UsageInternal {
		t.Errorf("usage = %q, want internal", l.Usage)
	}
	if err := f.svc.CreateLocation(context.Background(), &Location{Name: "X", Usage: "transit"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTransfer_RecordsMovementAndLocation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	stock := &Location{Name: "Stock"}
	returns := &Location{Name: "Returns"}
	f.svc.CreateLocation(ctx, stock)
	f.svc.CreateLocation(ctx, returns)
	u := f.addUnit(equipment.StateAvailable)
	u.LocationID = &stock.ID

	m, err := f.svc.Transfer(ctx, u.ID, returns.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil || m.FromLocationID == nil || *m.FromLocationID != stock.ID || m.ToLocationID != returns.ID {
		t.Fatalf("unexpected movement %+v", m)
	}
	if !strings.Contains(m.Reference, u.SerialNumber) {
		t.Errorf("reference %q should name the serial", m.Reference)
	}
	if got := f.units.units[u.ID].LocationID; got == nil || *got != returns.ID {
		t.Errorf("unit location = %v", got)
	}
	if f.units.guarded != 1 {
		t.Errorf("unit write should carry the sync guard")
	}

	again, err := f.svc.Transfer(ctx, u.ID, returns.ID, "")
	if err != nil || again != nil {
		t.Errorf("transfer to current location should be a no-op, got %v %v", again, err)
	}
	if len(f.movements.items) != 1 {
		t.Errorf("movements = %d, want 1", len(f.movements.items))
	}
}

func TestTransfer_ScrappedOnlyToScrap(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	internal := &Location{Name: "Stock"}
	scrap := &Location{Name: "Scrap", Usage: UsageScrap}
	f.svc.CreateLocation(ctx, internal)
	f.svc.CreateLocation(ctx, scrap)
	u := f.addUnit(equipment.StateScrapped)

	if _, err := f.svc.Transfer(ctx, u.ID, internal.ID, ""); !apperr.Is(err, apperr.KindState) {
		t.Errorf("expected state error, got %v", err)
	}
	if _, err := f.svc.Transfer(ctx, u.ID, scrap.ID, "Scrap"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTransfer_UnknownLocation(t *testing.T) {
	f := newFixture()
	u := f.addUnit(equipment.StateAvailable)
	if _, err := f.svc.Transfer(context.Background(), u.ID, uuid.New(), ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransferHandler_InvalidBody(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	e.Validator = validation.New("MT")
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"location_id":"nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if he, ok := h.Transfer(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Error("expected 400")
	}
}
