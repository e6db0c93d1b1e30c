package medication

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	read.GET("/medication-types", h.ListMedicationTypes)
	read.GET("/visits/:id/prescriptions", h.ListPrescriptions)

	// Prescribing is restricted to physicians.
	write := api.Group("", auth.RequireRole(auth.RolePhysician))
	write.POST("/visits/:id/prescriptions", h.Prescribe)
}

type prescribeRequest struct {
	Items []Item `json:"items"`
}

func (h *Handler) Prescribe(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req prescribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	items, err := h.svc.Prescribe(ctx, visitID, req.Items, auth.UserIDFromContext(ctx))
	if err != nil {
		switch {
		case errors.Is(err, classification.ErrInvalidInput):
			return err
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, items)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListForVisit(c.Request().Context(), visitID, c.QueryParam("active") == "true")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListMedicationTypes(c echo.Context) error {
	items, err := h.svc.ListTypes(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
