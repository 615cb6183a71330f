package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/http/handlers"
	"github.com/langcen/portal/internal/http/middlewares"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/observability"
	"github.com/langcen/portal/internal/repo/postgres"
	"github.com/langcen/portal/internal/routing"
)

// NewRouter wires the full page and API surface.
func NewRouter(
	log *slog.Logger,
	cfg config.Config,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	mailer mail.Mailer,
	prom *observability.Prom,
	registry *prometheus.Registry,
	templatesGlob string,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("portal"))
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.SecurityHeaders())

	if len(cfg.CORSOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	}

	r.LoadHTMLGlob(templatesGlob)

	// health
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(pool, prom)
	profilesRepo := postgres.NewProfilesRepo(pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(pool, prom)

	// role redirect resolution: env overrides win over the optional file
	resolver := routing.NewResolver(overridesSource(cfg, log))

	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	setPwd := auth.NewSetPasswordTokens(cfg.JWTSecret, cfg.SetPasswordTTL)

	authMW := middlewares.NewAuthMiddleware(jwtManager)
	gate := middlewares.NewGate(resolver)
	loginLimiter := middlewares.NewRateLimiter(rdb, cfg.LoginRateLimit, cfg.LoginRateWindow)

	r.Use(authMW.Identify())

	// handlers
	authHandler := handlers.NewAuthHandler(usersRepo, usersRepo, profilesRepo, jwtManager, refreshRepo, resolver, mailer, setPwd, cfg)
	pagesHandler := handlers.NewPagesHandler(usersRepo, cfg)
	profileHandler := handlers.NewProfileHandler(usersRepo, profilesRepo, cfg)
	resetHandler := handlers.NewPasswordResetHandler(usersRepo, usersRepo, refreshRepo, mailer, setPwd, cfg)

	// public pages
	r.GET(routing.RouteLanding.Path(), pagesHandler.Landing)
	r.GET(routing.RouteAbout.Path(), pagesHandler.About)

	// sign in / out
	r.GET(routing.RouteLogin.Path(), authHandler.LoginPage)
	r.POST(routing.RouteLogin.Path(), loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	r.GET(routing.RouteLogout.Path(), authHandler.Logout)
	r.POST(routing.RouteLogout.Path(), authHandler.Logout)
	r.POST("/auth/refresh", authHandler.Refresh)

	// account creation is reserved for admins
	r.GET(routing.RouteRegister.Path(),
		gate.RequireRole(routing.RouteRegister, user.RoleAdmin), authHandler.RegisterPage)
	r.POST(routing.RouteRegister.Path(),
		gate.RequireRole(routing.RouteRegister, user.RoleAdmin), authHandler.Register)

	// role homes
	r.GET(routing.RouteStudentHome.Path(),
		gate.RequireRole(routing.RouteStudentHome, user.RoleStudent), pagesHandler.StudentHome)
	r.GET(routing.RouteTeacherHome.Path(),
		gate.RequireRole(routing.RouteTeacherHome, user.RoleTeacher), pagesHandler.TeacherHome)
	r.GET(routing.RouteAdminHome.Path(),
		gate.RequireRole(routing.RouteAdminHome, user.RoleAdmin), pagesHandler.AdminHome)

	// profile is a student page
	r.GET(routing.RouteProfile.Path(),
		gate.RequireRole(routing.RouteProfile, user.RoleStudent), profileHandler.Show)

	// password reset / account activation
	r.GET(routing.RoutePasswordReset.Path(), resetHandler.StartPage)
	r.POST(routing.RoutePasswordReset.Path(), loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), resetHandler.Start)
	r.GET(routing.RoutePasswordResetDone.Path(), resetHandler.DonePage)
	r.GET(routing.RoutePasswordResetConfirm.Path(), resetHandler.ConfirmPage)
	r.POST(routing.RoutePasswordResetConfirm.Path(), resetHandler.Confirm)
	r.GET(routing.RoutePasswordResetComplete.Path(), resetHandler.CompletePage)

	return r
}

// overridesSource layers the inline ROLE_REDIRECTS env value over the
// optional JSON file so either can remap a role's destination.
func overridesSource(cfg config.Config, log *slog.Logger) func() map[user.Role]routing.Route {
	inline := routing.ParseOverrides(cfg.RoleRedirects)

	// Overrides are honored verbatim, but an unknown role or route in
	// ROLE_REDIRECTS is almost always a typo, so call it out at startup.
	for role, route := range inline {
		if !role.Known() {
			log.Warn("role redirect override for unknown role", "role", string(role))
		}
		if !route.Known() {
			log.Warn("role redirect override to unknown route", "role", string(role), "route", string(route))
		}
	}

	var file *routing.FileOverrides

	if cfg.RoleRedirectsFile != "" {
		file = routing.NewFileOverrides(cfg.RoleRedirectsFile, cfg.RoleRedirectsTTL, log)
	}

	return func() map[user.Role]routing.Route {
		merged := make(map[user.Role]routing.Route)

		if file != nil {
			for role, route := range file.Map() {
				merged[role] = route
			}
		}

		for role, route := range inline {
			merged[role] = route
		}

		return merged
	}
}
