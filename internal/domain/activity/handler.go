package activity

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
	"github.com/prettyneat-io/pumpfleet/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePatientAdmin, auth.RoleStock, auth.RoleViewer))
	read.GET("/notes", h.ListNotes)
	read.GET("/reminders", h.ListReminders)
	read.GET("/reminders/:id", h.GetReminder)

	write := api.Group("", auth.RequireRole(auth.RolePatientAdmin, auth.RoleStock))
	write.POST("/notes", h.PostNote)
	write.POST("/reminders/:id/done", h.MarkDone)
}

type postNoteRequest struct {
	RecordType string    `json:"record_type" validate:"required,oneof=patient equipment holiday_pump_request"`
	RecordID   uuid.UUID `json:"record_id" validate:"required"`
	Body       string    `json:"body" validate:"required,max=4000"`
}

func (h *Handler) PostNote(c echo.Context) error {
	var req postNoteRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	n, err := h.svc.Post(c.Request().Context(), req.RecordType, req.RecordID, req.Body)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) ListNotes(c echo.Context) error {
	recordType := c.QueryParam("record_type")
	if !ValidRecordType(recordType) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record_type")
	}
	recordID, err := uuid.Parse(c.QueryParam("record_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record_id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Notes(c.Request().Context(), recordType, recordID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListReminders(c echo.Context) error {
	f := ReminderFilter{
		Assignee:   c.QueryParam("assignee"),
		Status:     c.QueryParam("status"),
		RecordType: c.QueryParam("record_type"),
	}
	if f.Status != "" && f.Status != ReminderStatusOpen && f.Status != ReminderStatusDone {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if v := c.QueryParam("record_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid record_id")
		}
		f.RecordID = &id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReminders(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetReminder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.GetReminder(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) MarkDone(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.MarkDone(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}
