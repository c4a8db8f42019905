package training

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
	read.GET("/training-locations", h.ListLocations)
	read.GET("/training-locations/:id", h.GetLocation)

	write := api.Group("", auth.RequireRole(auth.RolePatientAdmin))
	write.POST("/training-locations", h.CreateLocation)
	write.PUT("/training-locations/:id", h.UpdateLocation)
	write.DELETE("/training-locations/:id", h.DeleteLocation)
}

type locationRequest struct {
	Name   string `json:"name" validate:"required,max=120"`
	Active *bool  `json:"active"`
}

func (r locationRequest) toLocation() *Location {
	l := &Location{Name: r.Name, Active: true}
	if r.Active != nil {
		l.Active = *r.Active
	}
	return l
}

func (h *Handler) CreateLocation(c echo.Context) error {
	var req locationRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	l := req.toLocation()
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

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req locationRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	l := req.toLocation()
	l.ID = id
	if err := h.svc.UpdateLocation(c.Request().Context(), l); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) DeleteLocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteLocation(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListLocations(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("all") != "true"
	items, total, err := h.svc.ListLocations(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
