package inventory

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
	read := api.Group("", auth.RequireRole(auth.RoleStock, auth.RolePatientAdmin, auth.RoleViewer))
	read.GET("/locations", h.ListLocations)
	read.GET("/locations/:id", h.GetLocation)
	read.GET("/equipment/:id/movements", h.ListMovements)

	write := api.Group("", auth.RequireRole(auth.RoleStock))
	write.POST("/locations", h.CreateLocation)
	write.POST("/equipment/:id/transfer", h.Transfer)
}

type locationRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Usage string `json:"usage" validate:"omitempty,oneof=internal scrap"`
}

func (h *Handler) CreateLocation(c echo.Context) error {
	var req locationRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	l := &Location{Name: req.Name, Usage: req.Usage}
	if err := h.svc.CreateLocation(c.Request().Context(), l); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetLocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := h.svc.GetLocation(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) ListLocations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListLocations(c.Request().Context(), c.QueryParam("usage"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

type transferRequest struct {
	LocationID string `json:"location_id" validate:"required,uuid"`
	Reference  string `json:"reference" validate:"max=200"`
}

func (h *Handler) Transfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req transferRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	m, err := h.svc.Transfer(c.Request().Context(), id, uuid.MustParse(req.LocationID), req.Reference)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if m == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMovements(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMovements(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
