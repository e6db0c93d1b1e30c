package revision

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/auth"
	"github.com/ehr/ckdmbd/internal/platform/lock"
	"github.com/ehr/ckdmbd/internal/platform/metrics"
)

const DefaultLockTTL = 30 * time.Second

type Handler struct {
	svc     *Service
	locker  lock.Locker
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewHandler wires the revision endpoint. Revisions of the same visit are
// serialized through locker; a zero ttl uses DefaultLockTTL.
func NewHandler(svc *Service, locker lock.Locker, ttl time.Duration, m *metrics.Metrics) *Handler {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Handler{svc: svc, locker: locker, ttl: ttl, metrics: m}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	g.POST("/visits/:id/revisions", h.Revise)
}

type reviseRequest struct {
	Edits []Edit `json:"edits"`
}

func (h *Handler) Revise(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reviseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	lease, err := h.locker.Acquire(ctx, lock.VisitKey(visitID), h.ttl)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			h.metrics.ObserveLockContention()
			return echo.NewHTTPError(http.StatusConflict, "visit is being revised by another request")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	defer lease.Release(context.Background()) //nolint:errcheck

	out, err := h.svc.ReviseVisit(ctx, visitID, req.Edits, auth.UserIDFromContext(ctx))
	if err != nil {
		var nl *NotLinkedError
		switch {
		case errors.Is(err, classification.ErrInvalidInput):
			return err
		case errors.As(err, &nl):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, nl.Error())
		case errors.Is(err, visit.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "visit not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}
