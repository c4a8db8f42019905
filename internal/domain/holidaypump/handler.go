package holidaypump

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
	"github.com/prettyneat-io/pumpfleet/pkg/pagination"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const PublicPath = "/holiday-pump-request"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the unauthenticated intake form. mw is
// applied to both routes, typically a rate limiter.
func (h *Handler) RegisterPublicRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	e.GET(PublicPath, h.Form, mw...)
	e.POST(PublicPath, h.SubmitForm, mw...)
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePatientAdmin, auth.RoleViewer))
	read.GET("/holiday-pump-requests", h.List)
	read.GET("/holiday-pump-requests/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RolePatientAdmin))
	write.POST("/holiday-pump-requests/:id/approve", h.Approve)
	write.POST("/holiday-pump-requests/:id/reject", h.Reject)
}

type submitForm struct {
	PatientName     string `form:"patient_name" validate:"required,max=200"`
	MainPumpSerial  string `form:"main_pump_serial" validate:"required,max=100"`
	ContactPhone    string `form:"contact_phone" validate:"required,phone"`
	ContactEmail    string `form:"contact_email" validate:"omitempty,email"`
	TravelStartDate string `form:"travel_start_date" validate:"required,datetime=2006-01-02"`
	TravelEndDate   string `form:"travel_end_date" validate:"required,datetime=2006-01-02"`
	Destination     string `form:"destination" validate:"required,max=200"`
	Reason          string `form:"reason" validate:"max=2000"`
	AdditionalNotes string `form:"additional_notes" validate:"max=2000"`
}

func render(c echo.Context, status int, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	return c.HTMLBlob(status, buf.Bytes())
}

func (h *Handler) Form(c echo.Context) error {
	return render(c, http.StatusOK, "form.html", map[string]interface{}{"Form": submitForm{}})
}

func (h *Handler) SubmitForm(c echo.Context) error {
	var form submitForm
	if err := c.Bind(&form); err != nil {
		return render(c, http.StatusBadRequest, "error.html", map[string]string{"Message": "The form could not be read."})
	}
	if err := c.Validate(&form); err != nil {
		return render(c, http.StatusUnprocessableEntity, "form.html", map[string]interface{}{
			"Form":   form,
			"Errors": validation.FieldErrors(err),
		})
	}
	start, _ := time.Parse("2006-01-02", form.TravelStartDate)
	end, _ := time.Parse("2006-01-02", form.TravelEndDate)

	r, err := h.svc.Submit(c.Request().Context(), SubmitInput{
		PatientName:     form.PatientName,
		MainPumpSerial:  form.MainPumpSerial,
		ContactPhone:    form.ContactPhone,
		ContactEmail:    form.ContactEmail,
		TravelStartDate: start,
		TravelEndDate:   end,
		Destination:     form.Destination,
		Reason:          form.Reason,
		AdditionalNotes: form.AdditionalNotes,
	})
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindValidation || k == apperr.KindNotFound {
			return render(c, http.StatusOK, "error.html", map[string]string{"Message": err.Error()})
		}
		return err
	}
	return render(c, http.StatusCreated, "success.html", r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := c.QueryParam("status")
	switch status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type approveRequest struct {
	HolidayPumpID uuid.UUID `json:"holiday_pump_id" validate:"required"`
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req approveRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	r, err := h.svc.Approve(c.Request().Context(), id, req.HolidayPumpID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Reject(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}
