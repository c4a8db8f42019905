package equipment

import (
	"net/http"
	"strconv"
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
	read.GET("/products", h.ListProducts)
	read.GET("/products/:id", h.GetProduct)
	read.GET("/equipment", h.SearchUnits)
	read.GET("/equipment/:id", h.GetUnit)
	read.GET("/equipment/serial/:serial", h.GetUnitBySerial)

	stock := api.Group("", auth.RequireRole(auth.RoleStock))
	stock.POST("/products", h.CreateProduct)
	stock.PUT("/products/:id", h.UpdateProduct)
	stock.POST("/equipment", h.CreateUnit)
	stock.DELETE("/equipment/:id", h.DeleteUnit)

	write := api.Group("", auth.RequireRole(auth.RolePatientAdmin, auth.RoleStock))
	write.PUT("/equipment/:id", h.UpdateUnit)
}

// -- Products --

type productRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	IsPumpProduct bool    `json:"is_pump_product"`
	IsRMAProduct  bool    `json:"is_rma_product"`
	PumpKind      *string `json:"pump_kind" validate:"omitempty,oneof=glucose insulin"`
}

func (r productRequest) toProduct() *Product {
	return &Product{Name: r.Name, IsPumpProduct: r.IsPumpProduct, IsRMAProduct: r.IsRMAProduct, PumpKind: r.PumpKind}
}

func (h *Handler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	p := req.toProduct()
	if err := h.svc.CreateProduct(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProduct(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetProduct(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProduct(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req productRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	p := req.toProduct()
	p.ID = id
	if err := h.svc.UpdateProduct(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProducts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListProducts(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Units --

type createUnitRequest struct {
	SerialNumber      string     `json:"serial_number" validate:"required,max=64"`
	ProductID         uuid.UUID  `json:"product_id" validate:"required"`
	LifespanYears     int        `json:"lifespan_years" validate:"omitempty,min=1,max=20"`
	InstallationDate  *time.Time `json:"installation_date"`
	LocationID        *uuid.UUID `json:"location_id"`
	AssignedPatientID *uuid.UUID `json:"assigned_patient_id"`
	Role              *string    `json:"role" validate:"omitempty,oneof=primary holiday"`
}

type updateUnitRequest struct {
	SerialNumber      string     `json:"serial_number" validate:"required,max=64"`
	State             string     `json:"state" validate:"omitempty,oneof=available assigned scrapped"`
	LifespanYears     int        `json:"lifespan_years" validate:"omitempty,min=1,max=20"`
	InstallationDate  *time.Time `json:"installation_date"`
	LocationID        *uuid.UUID `json:"location_id"`
	AssignedPatientID *uuid.UUID `json:"assigned_patient_id"`
	Role              *string    `json:"role" validate:"omitempty,oneof=primary holiday"`
}

func (h *Handler) CreateUnit(c echo.Context) error {
	var req createUnitRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	u := &Unit{
		SerialNumber:      req.SerialNumber,
		ProductID:         req.ProductID,
		LifespanYears:     req.LifespanYears,
		InstallationDate:  req.InstallationDate,
		LocationID:        req.LocationID,
		AssignedPatientID: req.AssignedPatientID,
		Role:              req.Role,
	}
	if err := h.svc.CreateUnit(c.Request().Context(), u); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUnit(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) GetUnitBySerial(c echo.Context) error {
	u, err := h.svc.GetUnitBySerial(c.Request().Context(), c.Param("serial"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateUnitRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	u := &Unit{
		ID:                id,
		SerialNumber:      req.SerialNumber,
		State:             req.State,
		LifespanYears:     req.LifespanYears,
		InstallationDate:  req.InstallationDate,
		LocationID:        req.LocationID,
		AssignedPatientID: req.AssignedPatientID,
		Role:              req.Role,
	}
	if err := h.svc.UpdateUnit(c.Request().Context(), u); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUnit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteUnit(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchUnits(c echo.Context) error {
	params, err := searchParamsFromQuery(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchUnits(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func searchParamsFromQuery(c echo.Context) (SearchParams, error) {
	p := SearchParams{
		State:  c.QueryParam("state"),
		Role:   c.QueryParam("role"),
		Serial: c.QueryParam("serial"),
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		p.PatientID = &id
	}
	if v := c.QueryParam("product_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid product_id")
		}
		p.ProductID = &id
	}
	if v := c.QueryParam("rma"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid rma")
		}
		p.RMA = &b
	}
	if v := c.QueryParam("replacement_before"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid replacement_before, expected YYYY-MM-DD")
		}
		p.ReplacementBefore = &d
	}
	return p, nil
}
