package situation

import (
	"errors"
	"net/http"
	"strconv"

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
	read.GET("/situations", h.ListSituations)
	read.GET("/situations/:id", h.GetSituation)
	read.POST("/classifications", h.Classify)
}

// Classify runs the engine on the posted values without storing anything.
// Corrected calcium is always derived from calcium and albumin.
func (h *Handler) Classify(c echo.Context) error {
	var values classification.TestValues
	if err := c.Bind(&values); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.Classify(c.Request().Context(), values.WithCorrectedCalcium())
	if err != nil {
		if errors.Is(err, classification.ErrInvalidInput) {
			return err
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListSituations(c echo.Context) error {
	groupID := 0
	if g := c.QueryParam("group"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid group")
		}
		groupID = n
	}
	items, err := h.svc.List(c.Request().Context(), groupID)
	if err != nil {
		if errors.Is(err, classification.ErrInvalidInput) {
			return err
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetSituation(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "situation not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}
