package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	e := echo.New()
	e.Validator = validation.New("MT")
	return NewHandler(svc), e
}

func TestPostNote_Created(t *testing.T) {
	h, e := newTestHandler()
	id := uuid.New()
	body := `{"record_type":"patient","record_id":"` + id.String() + `","body":"Called about travel"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.PostNote(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestPostNote_InvalidRecordType(t *testing.T) {
	h, e := newTestHandler()
	body := `{"record_type":"invoice","record_id":"` + uuid.NewString() + `","body":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.PostNote(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestListNotes(t *testing.T) {
	h, e := newTestHandler()
	id := uuid.New()
	h.svc.Post(context.Background(), RecordEquipment, id, "first")
	h.svc.Post(context.Background(), RecordEquipment, id, "second")

	req := httptest.NewRequest(http.MethodGet, "/?record_type=equipment&record_id="+id.String(), nil)
	rec := httptest.NewRecorder()
	if err := h.ListNotes(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
}

func TestListNotes_BadParams(t *testing.T) {
	h, e := newTestHandler()
	for _, q := range []string{"?record_type=x&record_id=" + uuid.NewString(), "?record_type=patient&record_id=nope"} {
		req := httptest.NewRequest(http.MethodGet, "/"+q, nil)
		err := h.ListNotes(e.NewContext(req, httptest.NewRecorder()))
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestMarkDone_Handler(t *testing.T) {
	h, e := newTestHandler()
	r := &Reminder{RecordType: RecordEquipment, RecordID: uuid.New(), Kind: KindReplacementDue, Summary: "s", Assignee: "a", Deadline: time.Now()}
	h.svc.CreateReminder(context.Background(), r)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	if err := h.MarkDone(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())
	err := h.MarkDone(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 for a resolved reminder, got %v", err)
	}
}

func TestListReminders_InvalidStatus(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?status=maybe", nil)
	err := h.ListReminders(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
