package revision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/ckdmbd/internal/domain/classification"
	"github.com/ehr/ckdmbd/internal/platform/auth"
	"github.com/ehr/ckdmbd/internal/platform/lock"
)

func reviseContext(e *echo.Echo, visitID, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/visits/"+visitID+"/revisions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), "dr-a", []string{auth.RolePhysician}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(visitID)
	return c, rec
}

func TestHandler_Revise(t *testing.T) {
	fx := newFixture(t, baseValues(), 1)
	locker := lock.NewMemoryLocker()
	h := NewHandler(fx.svc, locker, time.Minute, fx.metrics)

	c, rec := reviseContext(echo.New(), fx.visitID.String(), `{"edits":[{"test_code":"PTH","value":330}]}`)
	require.NoError(t, h.Revise(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var out Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []string{"PTH"}, out.CriticalChanges)
	assert.Equal(t, 1, out.MedicationsOutdatedCount)
	assert.Equal(t, "dr-a", *fx.state.visits[fx.visitID].LastModifiedBy)

	lease, err := locker.Acquire(context.Background(), lock.VisitKey(fx.visitID), time.Minute)
	require.NoError(t, err, "lock must be released after the revision")
	lease.Release(context.Background())
}

func TestHandler_Revise_Locked(t *testing.T) {
	fx := newFixture(t, baseValues(), 1)
	locker := lock.NewMemoryLocker()
	h := NewHandler(fx.svc, locker, time.Minute, fx.metrics)

	_, err := locker.Acquire(context.Background(), lock.VisitKey(fx.visitID), time.Minute)
	require.NoError(t, err)

	c, _ := reviseContext(echo.New(), fx.visitID.String(), `{"edits":[{"test_code":"PTH","value":330}]}`)
	err = h.Revise(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusConflict, he.Code)
	assert.Equal(t, 1, fx.activeCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.RevisionLockContention))
}

func TestHandler_Revise_Errors(t *testing.T) {
	fx := newFixture(t, baseValues(), 0)
	h := NewHandler(fx.svc, lock.NewMemoryLocker(), 0, nil)
	e := echo.New()

	tests := []struct {
		name    string
		visitID string
		body    string
		code    int
	}{
		{"bad id", "not-a-uuid", `{"edits":[]}`, http.StatusBadRequest},
		{"unknown visit", "7b0c8a52-3f1e-4c55-9d1a-0a6f4d2e9b11", `{"edits":[{"test_code":"PTH","value":1}]}`, http.StatusNotFound},
		{"not linked", fx.visitID.String(), `{"edits":[{"test_code":"IPTH","value":1}]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := reviseContext(e, tt.visitID, tt.body)
			err := h.Revise(c)
			var he *echo.HTTPError
			require.True(t, errors.As(err, &he), "got %v", err)
			assert.Equal(t, tt.code, he.Code)
		})
	}

	c, _ := reviseContext(e, fx.visitID.String(), `{"edits":[{"test_code":"CCA","value":9}]}`)
	assert.ErrorIs(t, h.Revise(c), classification.ErrInvalidInput)
}
