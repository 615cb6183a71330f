package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/routing"
)

func newGateRouter(t *testing.T, role string, current routing.Route, allowed ...user.Role) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	if role != "" {
		r.Use(func(c *gin.Context) {
			c.Set(ctxUserIDKey, "user-1")
			c.Set(ctxEmailKey, "someone@example.com")
			c.Set(ctxRoleKey, role)
			c.Next()
		})
	}

	gate := NewGate(routing.NewResolver(nil))

	r.GET(current.Path(), gate.RequireRole(current, allowed...), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r
}

func TestRequireRoleAnonymousRedirectsToLogin(t *testing.T) {
	r := newGateRouter(t, "", routing.RouteStudentHome, user.RoleStudent)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, routing.RouteStudentHome.Path(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}

	loc := w.Header().Get("Location")

	if !strings.HasPrefix(loc, routing.RouteLogin.Path()+"?next=") {
		t.Fatalf("Location = %q, want login redirect with next param", loc)
	}
}

func TestRequireRoleAllowedPassesThrough(t *testing.T) {
	r := newGateRouter(t, string(user.RoleStudent), routing.RouteStudentHome, user.RoleStudent)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, routing.RouteStudentHome.Path(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireRoleDeniedRedirectsHomeWithFlash(t *testing.T) {
	r := newGateRouter(t, string(user.RoleTeacher), routing.RouteStudentHome, user.RoleStudent)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, routing.RouteStudentHome.Path(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}

	if loc := w.Header().Get("Location"); loc != routing.RouteTeacherHome.Path() {
		t.Fatalf("Location = %q, want %q", loc, routing.RouteTeacherHome.Path())
	}

	flashed := false

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "portal_flash" && cookie.Value != "" {
			flashed = true
		}
	}

	if !flashed {
		t.Fatal("expected a flash cookie on denial")
	}
}

func TestRequireRoleDeniedOnOwnHomeAnswers403(t *testing.T) {
	// A student denied on the student home page must not be redirected
	// back to it.
	r := newGateRouter(t, string(user.RoleStudent), routing.RouteStudentHome, user.RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, routing.RouteStudentHome.Path(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// No flash on the 403: the message would otherwise accumulate on
	// every reload of the page the user is stuck on.
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "portal_flash" && cookie.Value != "" {
			t.Fatalf("403 must not set a flash cookie, got %q", cookie.Value)
		}
	}
}

func TestRequireRoleUnknownRoleFallsBackToLanding(t *testing.T) {
	r := newGateRouter(t, "ghost", routing.RouteStudentHome, user.RoleStudent)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, routing.RouteStudentHome.Path(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}

	if loc := w.Header().Get("Location"); loc != routing.RouteLanding.Path() {
		t.Fatalf("Location = %q, want %q", loc, routing.RouteLanding.Path())
	}
}
