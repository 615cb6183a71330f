package middlewares

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/http/flash"
	"github.com/langcen/portal/internal/routing"
)

const deniedMessage = "You do not have permission to view that page."

// Gate guards HTML pages by role. Anonymous visitors are sent to the
// login page with a next parameter; signed-in users with the wrong role
// are flashed a message and sent to their own home page.
type Gate struct {
	resolver *routing.Resolver
}

func NewGate(resolver *routing.Resolver) *Gate {
	return &Gate{resolver: resolver}
}

func (g *Gate) RequireRole(current routing.Route, allowed ...user.Role) gin.HandlerFunc {
	allowedSet := make(map[user.Role]struct{}, len(allowed))

	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok {
			next := url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, routing.RouteLogin.Path()+"?next="+next)
			c.Abort()
			return
		}

		if _, ok := allowedSet[role]; ok {
			c.Next()
			return
		}

		home, ok := g.resolver.HomeFor(role)

		if !ok {
			flash.Set(c, deniedMessage)
			c.Redirect(http.StatusFound, routing.RouteLanding.Path())
			c.Abort()
			return
		}

		// A user denied access to their own home page would bounce
		// forever; answer 403 instead of redirecting, and skip the
		// flash so the message cannot pile up across the loop.
		if home == current {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		flash.Set(c, deniedMessage)
		c.Redirect(http.StatusFound, home.Path())
		c.Abort()
	}
}
