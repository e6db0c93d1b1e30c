package recommend

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePhysician))
	g.POST("/recommendations", h.Recommend)
	g.GET("/visits/:id/recommendation", h.RecommendForVisit)
}

type recommendRequest struct {
	Values         classification.TestValues `json:"values"`
	ExcludeVisitID *uuid.UUID                `json:"exclude_visit_id,omitempty"`
}

func (h *Handler) Recommend(c echo.Context) error {
	var req recommendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	exclude := uuid.Nil
	if req.ExcludeVisitID != nil {
		exclude = *req.ExcludeVisitID
	}
	sug, err := h.svc.Suggest(c.Request().Context(), req.Values.WithCorrectedCalcium(), exclude)
	if err != nil {
		if errors.Is(err, classification.ErrInvalidInput) {
			return err
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sug)
}

func (h *Handler) RecommendForVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sug, err := h.svc.SuggestForVisit(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, visit.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		case errors.Is(err, classification.ErrInvalidInput):
			return err
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sug)
}
