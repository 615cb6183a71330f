package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/db"
	httpx "github.com/langcen/portal/internal/http"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/observability"
	"github.com/langcen/portal/internal/redisclient"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env, cfg.OTLPEndpoint != "")

	// tracing is opt-in via OTLP_ENDPOINT
	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(context.Background(), "portal", cfg.OTLPEndpoint)

		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}

		defer func() {
			ctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(ctx)
		}()
	}

	if err := db.RunMigrations(cfg.MigrationsDir, cfg.DBURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	bootCtx, cancelBoot := config.WithTimeout(5 * time.Second)

	if err := db.EnsureAdminUser(bootCtx, pool, cfg); err != nil {
		cancelBoot()
		log.Error("admin bootstrap failed", "err", err)
		os.Exit(1)
	}
	cancelBoot()

	rc := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	defer rc.Close()

	pingCtx, cancelPing := config.WithTimeout(2 * time.Second)

	if err := rc.Ping(pingCtx); err != nil {
		log.Warn("redis unavailable, rate limiting fails open", "err", err)
	}
	cancelPing()

	mailer := buildMailer(cfg, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(registry)
	mailer = mail.WithMetrics(mailer, prom.ObserveMail)

	router := httpx.NewRouter(log, cfg, pool, rc.Raw(), mailer, prom, registry, "web/templates/*.html")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// buildMailer picks SMTP when configured and falls back to the logging
// mailer for local development. Web flows get the circuit-breaker
// wrapper so a dead relay cannot tie up request handlers.
func buildMailer(cfg config.Config, log *slog.Logger) mail.Mailer {
	var inner mail.Mailer

	if cfg.SMTP.Host != "" {
		smtp, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			DefaultFrom: cfg.DefaultFromEmail,
		})

		if err != nil {
			log.Error("smtp config invalid", "err", err)
			os.Exit(1)
		}

		inner = smtp
	} else {
		log.Warn("SMTP_HOST not set, emails will only be logged")
		inner = mail.NewLogMailer()
	}

	return mail.NewProtectedMailer(inner, mail.ProtectedMailerConfig{})
}
