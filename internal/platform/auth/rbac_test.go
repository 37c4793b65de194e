package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(req *http.Request, roles ...string) *http.Request {
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	return req.WithContext(ctx)
}

func runRoleCheck(t *testing.T, mw echo.MiddlewareFunc, roles ...string) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = contextWithRoles(req, roles...)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	return mw(handler)(c)
}

func TestRequireRole_Allows(t *testing.T) {
	if err := runRoleCheck(t, RequireRole(RoleDoctor), RoleDoctor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := runRoleCheck(t, RequireRole(RoleCashier), RoleAdmin); err != nil {
		t.Fatalf("admin should satisfy any role: %v", err)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	if err := runRoleCheck(t, RequireRole(RoleNurse, RoleDoctor), RoleDoctor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	err := runRoleCheck(t, RequireRole(RoleCashier), RolePatient)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	err := runRoleCheck(t, RequireRole(RoleDoctor))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}
