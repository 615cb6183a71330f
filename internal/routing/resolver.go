package routing

import (
	"strings"

	"github.com/langcen/portal/internal/domain/user"
)

// roleHomes is the fixed role→home map used when a denied principal is
// bounced back to their own dashboard.
var roleHomes = map[user.Role]Route{
	user.RoleStudent: RouteStudentHome,
	user.RoleTeacher: RouteTeacherHome,
	user.RoleAdmin:   RouteAdminHome,
}

// Resolver decides where an authenticated user lands after login.
// Deployment-time overrides win over the built-in defaults; the
// overrides source is re-read on every call so configuration can
// change without a restart (the file source below caches reads).
type Resolver struct {
	overrides func() map[user.Role]Route
}

func NewResolver(overrides func() map[user.Role]Route) *Resolver {
	if overrides == nil {
		overrides = func() map[user.Role]Route { return nil }
	}
	return &Resolver{overrides: overrides}
}

// Destination maps a user to their post-login route.
// Priority: configured override for the role, then built-in defaults.
// Unknown or empty roles fall through to the student home on purpose;
// this is a permissive default, not a validation gate.
func (r *Resolver) Destination(u user.User) Route {
	if dest, ok := r.overrides()[u.Role]; ok && dest != "" {
		return dest
	}

	switch u.Role {
	case user.RoleAdmin:
		return RouteAdminHome
	case user.RoleTeacher:
		return RouteTeacherHome
	default:
		return RouteStudentHome
	}
}

// HomeFor returns the fixed home route for a role, if the role has one.
// Overrides deliberately do not apply here: denial redirects always aim
// at the canonical dashboard for the role.
func (r *Resolver) HomeFor(role user.Role) (Route, bool) {
	home, ok := roleHomes[role]
	return home, ok
}

// ParseOverrides parses the ROLE_REDIRECTS env form:
// "admin=admin_home,teacher=teacher_home". Malformed entries are
// dropped; values are kept verbatim so deployments can point roles at
// any named route.
func ParseOverrides(s string) map[user.Role]Route {
	out := make(map[user.Role]Route)

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		role, dest, ok := strings.Cut(pair, "=")

		role = strings.TrimSpace(role)
		dest = strings.TrimSpace(dest)

		if !ok || role == "" || dest == "" {
			continue
		}

		out[user.Role(role)] = Route(dest)
	}

	return out
}
