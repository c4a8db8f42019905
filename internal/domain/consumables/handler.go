package consumables

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/prettyneat-io/pumpfleet/internal/platform/apperr"
	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
	"github.com/prettyneat-io/pumpfleet/internal/platform/validation"
	"github.com/prettyneat-io/pumpfleet/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePatientAdmin, auth.RoleViewer))
	read.GET("/consumables", h.List)
	read.GET("/consumables/preview", h.Preview)
	read.GET("/consumables/export", h.Export)
	read.GET("/consumables/:id", h.Get)

	write := api.Group("", auth.RequireRole(auth.RolePatientAdmin))
	write.POST("/consumables", h.Create)
	write.PUT("/consumables/:id", h.UpdateAllocation)
	write.PATCH("/consumables/:id/usage", h.UpdateUsage)
	write.DELETE("/consumables/:id", h.Delete)
}

type createRequest struct {
	PatientID    uuid.UUID `json:"patient_id" validate:"required"`
	Month        int       `json:"month" validate:"required,min=1,max=12"`
	Year         int       `json:"year" validate:"omitempty,min=2000"`
	AllocatedQty *int      `json:"allocated_qty" validate:"omitempty,min=0"`
	UsedQty      int       `json:"used_qty" validate:"min=0"`
	Threshold    *int      `json:"threshold"`
}

// allocationResponse pairs a saved allocation with the advisory, if any.
type allocationResponse struct {
	*Allocation
	Warning *Warning `json:"warning,omitempty"`
}

func (h *Handler) respond(c echo.Context, status int, a *Allocation) error {
	return c.JSON(status, allocationResponse{
		Allocation: a,
		Warning:    h.svc.Preview(a.AllocatedQty, a.Threshold),
	})
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	a, err := h.svc.Create(c.Request().Context(), CreateInput{
		PatientID:    req.PatientID,
		Month:        req.Month,
		Year:         req.Year,
		AllocatedQty: req.AllocatedQty,
		UsedQty:      req.UsedQty,
		Threshold:    req.Threshold,
	})
	if err != nil {
		return apperr.HTTPError(err)
	}
	return h.respond(c, http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

type allocationRequest struct {
	AllocatedQty *int `json:"allocated_qty" validate:"omitempty,min=0"`
	Threshold    *int `json:"threshold"`
}

func (h *Handler) UpdateAllocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req allocationRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	a, err := h.svc.UpdateAllocation(c.Request().Context(), id, req.AllocatedQty, req.Threshold)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return h.respond(c, http.StatusOK, a)
}

type usageRequest struct {
	UsedQty *int `json:"used_qty" validate:"required,min=0"`
}

func (h *Handler) UpdateUsage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req usageRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	a, err := h.svc.UpdateUsage(c.Request().Context(), id, *req.UsedQty)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	var err error
	if f.Year, err = intParam(c, "year"); err != nil {
		return err
	}
	if f.Month, err = intParam(c, "month"); err != nil {
		return err
	}
	f.Status = c.QueryParam("status")
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// Preview reports the advisory for a prospective allocation without
// saving anything.
func (h *Handler) Preview(c echo.Context) error {
	allocated, err := intParam(c, "allocated_qty")
	if err != nil {
		return err
	}
	threshold, err := intParam(c, "threshold")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"warning": h.svc.Preview(allocated, threshold),
	})
}

func (h *Handler) Export(c echo.Context) error {
	year, err := intParam(c, "year")
	if err != nil {
		return err
	}
	month, err := intParam(c, "month")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.ExportXLSX(c.Request().Context(), &buf, year, month); err != nil {
		return apperr.HTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="consumables-%04d-%02d.xlsx"`, year, month))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}
