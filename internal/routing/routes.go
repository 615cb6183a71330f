package routing

// Route is the canonical identifier for a page or endpoint. Redirect
// targets and the access-gate loop check both use Route values, never
// raw URL strings, so renaming a path cannot break the comparison.
type Route string

const (
	RouteLanding Route = "landing"
	RouteAbout   Route = "about"

	RouteLogin    Route = "login"
	RouteLogout   Route = "logout"
	RouteRegister Route = "register"

	RouteStudentHome Route = "student_home"
	RouteTeacherHome Route = "teacher_home"
	RouteAdminHome   Route = "admin_home"

	RouteProfile Route = "profile"

	RoutePasswordReset         Route = "password_reset"
	RoutePasswordResetDone     Route = "password_reset_done"
	RoutePasswordResetConfirm  Route = "password_reset_confirm"
	RoutePasswordResetComplete Route = "password_reset_complete"
)

var paths = map[Route]string{
	RouteLanding: "/",
	RouteAbout:   "/about",

	RouteLogin:    "/accounts/login",
	RouteLogout:   "/accounts/logout",
	RouteRegister: "/accounts/register",

	RouteStudentHome: "/student",
	RouteTeacherHome: "/teacher",
	RouteAdminHome:   "/admin-home",

	RouteProfile: "/profile",

	RoutePasswordReset:         "/accounts/password-reset",
	RoutePasswordResetDone:     "/accounts/password-reset/done",
	RoutePasswordResetConfirm:  "/accounts/reset/:uid/:token",
	RoutePasswordResetComplete: "/accounts/reset/done",
}

// Path returns the URL path the route is mounted at. Unknown routes
// (e.g. a typo in a deployment override) fall back to the landing page
// rather than producing a broken redirect.
func (r Route) Path() string {
	if p, ok := paths[r]; ok {
		return p
	}
	return paths[RouteLanding]
}

func (r Route) Known() bool {
	_, ok := paths[r]
	return ok
}

// SetPasswordPath builds the concrete confirm-link path for a uid and
// token, matching the RoutePasswordResetConfirm pattern.
func SetPasswordPath(uid, token string) string {
	return "/accounts/reset/" + uid + "/" + token
}
