package lifecycle

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RolePatientAdmin))
	admin.POST("/equipment/:id/assign", h.Assign)
	admin.POST("/equipment/:id/unassign", h.Unassign)
	admin.POST("/equipment/:id/replace", h.Replace)
	admin.POST("/reminders/sweep", h.Sweep)

	stock := api.Group("", auth.RequireRole(auth.RoleStock, auth.RolePatientAdmin))
	stock.POST("/equipment/:id/scrap", h.Scrap)
}

type assignRequest struct {
	PatientID        string     `json:"patient_id" validate:"required,uuid"`
	Role             string     `json:"role" validate:"required,oneof=primary holiday"`
	InstallationDate *time.Time `json:"installation_date"`
	ReturnDate       *time.Time `json:"return_date" validate:"required_if=Role holiday"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	u, err := h.engine.Assign(c.Request().Context(), AssignParams{
		EquipmentID:      id,
		PatientID:        uuid.MustParse(req.PatientID),
		Role:             req.Role,
		InstallationDate: req.InstallationDate,
		ReturnDate:       req.ReturnDate,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Unassign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.engine.Unassign(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Scrap(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.engine.Scrap(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type replaceRequest struct {
	NewEquipmentID string `json:"new_equipment_id" validate:"required,uuid"`
	Reason         string `json:"reason" validate:"required,oneof=malfunction damage other"`
	Notes          string `json:"notes" validate:"max=2000"`
}

func (h *Handler) Replace(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req replaceRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	res, err := h.engine.Replace(c.Request().Context(), ReplaceParams{
		OldID:  id,
		NewID:  uuid.MustParse(req.NewEquipmentID),
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Sweep(c echo.Context) error {
	n, err := h.engine.CheckReplacementAlerts(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"created": n})
}
