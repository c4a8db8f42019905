package consumables

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/prettyneat-io/pumpfleet/internal/config"
	"github.com/prettyneat-io/pumpfleet/internal/domain/patient"
	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

type mockAllocationRepo struct {
	store map[uuid.UUID]*Allocation
	order []uuid.UUID
}

func newMockAllocationRepo() *mockAllocationRepo {
	return &mockAllocationRepo{store: make(map[uuid.UUID]*Allocation)}
}

func (m *mockAllocationRepo) Create(_ context.Context, a *Allocation) error {
	a.ID = uuid.New()
	m.store[a.ID] = a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockAllocationRepo) GetByID(_ context.Context, id uuid.UUID) (*Allocation, error) {
	a, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("Allocation %s not found.", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockAllocationRepo) Update(_ context.Context, a *Allocation) error {
	if _, ok := m.store[a.ID]; !ok {
		return apperr.NotFound("Allocation %s not found.", a.ID)
	}
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAllocationRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockAllocationRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Allocation, int, error) {
	var r []*Allocation
	for _, id := range m.order {
		a, ok := m.store[id]
		if !ok {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if (f.Year != 0 && a.Year != f.Year) || (f.Month != 0 && a.Month != f.Month) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		r = append(r, a)
	}
	return r, len(r), nil
}

type mockPatients map[uuid.UUID]*patient.Patient

func (m mockPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("Patient %s not found.", id)
	}
	return p, nil
}

func newTestService() (*Service, uuid.UUID) {
	p := &patient.Patient{ID: uuid.New(), InternalID: "2026-001", Name: "Maria Borg"}
	return NewService(newMockAllocationRepo(), mockPatients{p.ID: p}, config.DefaultPumps()), p.ID
}

func intp(n int) *int { return &n }

func TestClassify(t *testing.T) {
	tests := []struct {
		used, allocated, threshold int
		want                       string
	}{
		{0, 10, 13, StatusNormal},
		{10, 10, 13, StatusNormal},
		{11, 10, 13, StatusWarning},
		{13, 10, 13, StatusWarning},
		{14, 10, 13, StatusExceeded},
	}
	for _, tt := range tests {
		if got := Classify(tt.used, tt.allocated, tt.threshold); got != tt.want {
			t.Errorf("Classify(%d,%d,%d) = %s, want %s", tt.used, tt.allocated, tt.threshold, got, tt.want)
		}
	}
}

func TestCreate_Defaults(t *testing.T) {
	svc, pid := newTestService()
	a, err := svc.Create(context.Background(), CreateInput{PatientID: pid, Month: 3, Year: 2026, UsedQty: 12})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.AllocatedQty != 10 || a.Threshold != 13 {
		t.Errorf("defaults = %d/%d, want 10/13", a.AllocatedQty, a.Threshold)
	}
	if a.Status != StatusWarning {
		t.Errorf("status = %s, want warning", a.Status)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, pid := newTestService()
	tests := []struct {
		name string
		in   CreateInput
		msg  string
	}{
		{"month", CreateInput{PatientID: pid, Month: 13, Year: 2026}, "Month"},
		{"negative", CreateInput{PatientID: pid, Month: 1, Year: 2026, UsedQty: -1}, "negative"},
		{"zero threshold", CreateInput{PatientID: pid, Month: 1, Year: 2026, AllocatedQty: intp(0), Threshold: intp(0)}, "positive integer"},
		{"threshold below allocation", CreateInput{PatientID: pid, Month: 1, Year: 2026, AllocatedQty: intp(10), Threshold: intp(10)}, "greater than the Allocated Quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			if !apperr.Is(err, apperr.KindValidation) || !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("got %v, want validation containing %q", err, tt.msg)
			}
		})
	}
}

func TestCreate_UnknownPatient(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateInput{PatientID: uuid.New(), Month: 1, Year: 2026})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCreate_DuplicatePeriod(t *testing.T) {
	svc, pid := newTestService()
	ctx := context.Background()
	if _, err := svc.Create(ctx, CreateInput{PatientID: pid, Month: 4, Year: 2026}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Create(ctx, CreateInput{PatientID: pid, Month: 4, Year: 2026})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{PatientID: pid, Month: 5, Year: 2026}); err != nil {
		t.Errorf("next month should be accepted: %v", err)
	}
}

func TestUpdateUsage_RecomputesStatus(t *testing.T) {
	svc, pid := newTestService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, CreateInput{PatientID: pid, Month: 6, Year: 2026})
	if a.Status != StatusNormal {
		t.Fatalf("status = %s", a.Status)
	}
	a, err := svc.UpdateUsage(ctx, a.ID, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != StatusExceeded {
		t.Errorf("status = %s, want exceeded", a.Status)
	}
	stored, _ := svc.Get(ctx, a.ID)
	if stored.UsedQty != 20 || stored.Status != StatusExceeded {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdateAllocation_RejectsBadThreshold(t *testing.T) {
	svc, pid := newTestService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, CreateInput{PatientID: pid, Month: 7, Year: 2026})
	if _, err := svc.UpdateAllocation(ctx, a.ID, intp(15), nil); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation, got %v", err)
	}
	stored, _ := svc.Get(ctx, a.ID)
	if stored.AllocatedQty != 10 {
		t.Errorf("allocated changed to %d", stored.AllocatedQty)
	}
}

func TestPreview(t *testing.T) {
	svc, _ := newTestService()
	if w := svc.Preview(10, 13); w != nil {
		t.Errorf("unexpected warning %+v", w)
	}
	w := svc.Preview(14, 13)
	if w == nil || w.Title != "Charge for additional pumps" || !strings.Contains(w.Message, "More than 13 consumables") {
		t.Errorf("warning = %+v", w)
	}

	cfg := config.DefaultPumps()
	cfg.EnableThresholdWarnings = false
	quiet := NewService(newMockAllocationRepo(), mockPatients{}, cfg)
	if w := quiet.Preview(14, 13); w != nil {
		t.Errorf("warnings disabled, got %+v", w)
	}
}

func TestExportXLSX(t *testing.T) {
	svc, pid := newTestService()
	ctx := context.Background()
	svc.Create(ctx, CreateInput{PatientID: pid, Month: 8, Year: 2026, UsedQty: 4})

	var buf bytes.Buffer
	if err := svc.ExportXLSX(ctx, &buf, 2026, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("August 2026")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][0] != "2026-001" || rows[1][1] != "Maria Borg" || rows[1][7] != StatusNormal {
		t.Errorf("row = %v", rows[1])
	}
}

func TestExportXLSX_InvalidMonth(t *testing.T) {
	svc, _ := newTestService()
	var buf bytes.Buffer
	if err := svc.ExportXLSX(context.Background(), &buf, 2026, 0); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation, got %v", err)
	}
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validation.New("MT")
	return e
}

func TestHandlerCreate_IncludesWarning(t *testing.T) {
	svc, pid := newTestService()
	h := NewHandler(svc)
	body := `{"patient_id":"` + pid.String() + `","month":9,"year":2026,"allocated_qty":14,"threshold":15}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Create(newTestEcho().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		AllocatedQty int      `json:"allocated_qty"`
		Warning      *Warning `json:"warning"`
	}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.AllocatedQty != 14 || out.Warning != nil {
		t.Errorf("response = %+v", out)
	}
}

func TestHandlerPreview(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	req := httptest.NewRequest(http.MethodGet, "/?allocated_qty=20&threshold=13", nil)
	rec := httptest.NewRecorder()
	if err := h.Preview(newTestEcho().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Additional charges may apply") {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/?allocated_qty=abc", nil)
	if he, ok := h.Preview(newTestEcho().NewContext(req, httptest.NewRecorder())).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Error("expected 400")
	}
}

func TestHandlerExport_Headers(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	req := httptest.NewRequest(http.MethodGet, "/?year=2026&month=10", nil)
	rec := httptest.NewRecorder()
	if err := h.Export(newTestEcho().NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "consumables-2026-10.xlsx") {
		t.Errorf("disposition = %q", cd)
	}
}

func TestHandlerUpdateUsage_RequiresValue(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := newTestEcho().NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if he, ok := h.UpdateUsage(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Error("expected 400")
	}
}
