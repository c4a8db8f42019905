package patient

import (
	"net/http"
	"time"

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
	read.GET("/patients", h.SearchPatients)
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/internal/:internal_id", h.GetPatientByInternalID)

	write := api.Group("", auth.RequireRole(auth.RolePatientAdmin))
	write.POST("/patients", h.CreatePatient)
	write.PUT("/patients/:id", h.UpdatePatient)
	write.DELETE("/patients/:id", h.DeletePatient)
}

type patientRequest struct {
	Name               string     `json:"name" validate:"required,max=200"`
	IsCompany          bool       `json:"is_company"`
	DateOfBirth        *time.Time `json:"date_of_birth"`
	IDNumber           *string    `json:"id_number" validate:"omitempty,max=32"`
	Phone              *string    `json:"phone" validate:"omitempty,phone"`
	Email              *string    `json:"email" validate:"omitempty,email"`
	Locality           *string    `json:"locality" validate:"omitempty,max=100"`
	TrainingLocationID *uuid.UUID `json:"training_location_id"`
	PrimaryDeviceID    *uuid.UUID `json:"primary_device_id"`
	HolidayDeviceID    *uuid.UUID `json:"holiday_device_id"`
	HolidayReturnDate  *time.Time `json:"holiday_return_date"`
	InstallationDate   *time.Time `json:"installation_date"`
}

func (r patientRequest) toPatient() *Patient {
	return &Patient{
		Name:               r.Name,
		IsCompany:          r.IsCompany,
		DateOfBirth:        r.DateOfBirth,
		IDNumber:           r.IDNumber,
		Phone:              r.Phone,
		Email:              r.Email,
		Locality:           r.Locality,
		TrainingLocationID: r.TrainingLocationID,
		PrimaryDeviceID:    r.PrimaryDeviceID,
		HolidayDeviceID:    r.HolidayDeviceID,
		HolidayReturnDate:  r.HolidayReturnDate,
		InstallationDate:   r.InstallationDate,
	}
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	p := req.toPatient()
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPatientByInternalID(c echo.Context) error {
	if _, _, ok := ParseInternalID(c.Param("internal_id")); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid internal id, expected YYYY-NNN")
	}
	p, err := h.svc.GetPatientByInternalID(c.Request().Context(), c.Param("internal_id"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req patientRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	p := req.toPatient()
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	params := SearchParams{
		Query:    c.QueryParam("q"),
		Locality: c.QueryParam("locality"),
	}
	if v := c.QueryParam("training_location_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid training_location_id")
		}
		params.TrainingLocationID = &id
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
