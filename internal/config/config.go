package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
}

type Config struct {
	Env  string
	Port int

	DBURL         string
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	SetPasswordTTL time.Duration

	SiteName         string
	SiteDomain       string
	UseHTTPS         bool
	DefaultFromEmail string
	SMTP             SMTP

	// Bootstrap admin account, created on boot when both are set.
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string

	// Role redirect overrides: inline env form plus an optional JSON
	// file that can be edited without a restart.
	RoleRedirects     string
	RoleRedirectsFile string
	RoleRedirectsTTL  time.Duration

	// Login rate limiting (per client IP).
	LoginRateLimit  int
	LoginRateWindow time.Duration

	CORSOrigins []string

	OTLPEndpoint string
}

func Load() Config {
	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		DBURL:         buildDBURL(),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:      getEnv("JWT_SECRET", "dev-only-secret"),
		AccessTTL:      getEnvDur("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:     getEnvDur("REFRESH_TTL", 30*24*time.Hour),
		SetPasswordTTL: getEnvDur("SET_PASSWORD_TTL", 72*time.Hour),

		SiteName:         getEnv("SITE_NAME", "LangCen Base"),
		SiteDomain:       getEnv("SITE_DOMAIN", "localhost:8080"),
		UseHTTPS:         getEnvBool("SITE_HTTPS", false),
		DefaultFromEmail: getEnv("DEFAULT_FROM_EMAIL", "noreply@example.com"),
		SMTP: SMTP{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},

		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		AdminFirstName: getEnv("ADMIN_FIRST_NAME", "Portal"),
		AdminLastName:  getEnv("ADMIN_LAST_NAME", "Admin"),

		RoleRedirects:     getEnv("ROLE_REDIRECTS", ""),
		RoleRedirectsFile: getEnv("ROLE_REDIRECTS_FILE", ""),
		RoleRedirectsTTL:  getEnvDur("ROLE_REDIRECTS_TTL", 30*time.Second),

		LoginRateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getEnvDur("LOGIN_RATE_WINDOW", time.Minute),

		CORSOrigins: getEnvList("CORS_ORIGINS"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "portal")
	pass := getEnv("DB_PASSWORD", "portal")
	name := getEnv("DB_NAME", "portal")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			return fallback
		}

		return b
	}
	return fallback
}

func getEnvList(key string) []string {
	v := os.Getenv(key)

	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

func getEnvDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil {
			return fallback
		}

		return d
	}
	return fallback
}
