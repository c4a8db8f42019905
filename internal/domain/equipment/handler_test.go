package equipment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	e := echo.New()
	e.Validator = validation.New("MT")
	return NewHandler(svc), e
}

func TestCreateUnit_Handler(t *testing.T) {
	h, e := newTestHandler()
	p := &Product{Name: "Pump", IsPumpProduct: true}
	h.svc.CreateProduct(context.Background(), p)

	body := `{"serial_number":"HX-1","product_id":"` + p.ID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.CreateUnit(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var u Unit
	json.Unmarshal(rec.Body.Bytes(), &u)
	if u.State != StateAvailable || !u.IsPumpDevice {
		t.Errorf("unexpected unit %+v", u)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.CreateUnit(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate serial, got %v", err)
	}
}

func TestCreateUnit_HandlerValidation(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"serial_number":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.CreateUnit(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if msg, _ := he.Message.(string); !strings.Contains(msg, "serial_number") || !strings.Contains(msg, "product_id") {
		t.Errorf("expected field names in message, got %q", msg)
	}
}

func TestGetUnit_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("00000000-0000-0000-0000-000000000001")
	err := h.GetUnit(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestGetUnitBySerial_Handler(t *testing.T) {
	h, e := newTestHandler()
	p := &Product{Name: "Pump", IsPumpProduct: true}
	h.svc.CreateProduct(context.Background(), p)
	h.svc.CreateUnit(context.Background(), &Unit{SerialNumber: "Serial-AbC", ProductID: p.ID})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("serial")
	c.SetParamValues("serial-abc")
	if err := h.GetUnitBySerial(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSearchUnits_BadParams(t *testing.T) {
	h, e := newTestHandler()
	for _, q := range []string{"?patient_id=x", "?rma=maybe", "?replacement_before=31/12/2026", "?product_id=1"} {
		req := httptest.NewRequest(http.MethodGet, "/"+q, nil)
		err := h.SearchUnits(e.NewContext(req, httptest.NewRecorder()))
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestSearchUnits_Handler(t *testing.T) {
	h, e := newTestHandler()
	p := &Product{Name: "Pump", IsPumpProduct: true}
	h.svc.CreateProduct(context.Background(), p)
	h.svc.CreateUnit(context.Background(), &Unit{SerialNumber: "AA-1", ProductID: p.ID})
	h.svc.CreateUnit(context.Background(), &Unit{SerialNumber: "BB-2", ProductID: p.ID})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?serial=aa&rma=false&replacement_before=2030-01-01", nil)
	if err := h.SearchUnits(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}
