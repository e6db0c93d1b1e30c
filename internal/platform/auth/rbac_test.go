package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveWithRoles(roles []string, required ...string) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(context.Background(), "u1", roles))
	c := e.NewContext(req, httptest.NewRecorder())
	h := RequireRole(required...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return h(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := serveWithRoles([]string{RoleNurse}, RolePhysician, RoleNurse); err != nil {
		t.Errorf("expected access, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := serveWithRoles([]string{RoleNurse}, RolePhysician)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := serveWithRoles([]string{RoleAdmin}, RolePhysician); err != nil {
		t.Errorf("admin should pass every role check, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	if err := serveWithRoles(nil, RolePhysician); err == nil {
		t.Error("expected denial without roles")
	}
}

func TestUserIDFromContext(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty user, got %q", got)
	}
	ctx := WithUser(context.Background(), "dr-who", nil)
	if got := UserIDFromContext(ctx); got != "dr-who" {
		t.Errorf("expected dr-who, got %q", got)
	}
}
