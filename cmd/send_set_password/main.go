package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/db"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/observability"
	"github.com/langcen/portal/internal/repo/postgres"
)

// send_set_password re-sends an account activation link to one user,
// for when the original invite expired or never arrived.
func main() {
	_ = godotenv.Load()

	email := flag.String("email", "", "email of the account to invite (required)")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "send_set_password: -email is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env, false)

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	users := postgres.NewUsersRepo(pool, nil)

	ctx, cancel := config.WithTimeout(30 * time.Second)
	defer cancel()

	u, err := users.GetByEmail(ctx, user.NormalizeEmail(*email))

	if err != nil {
		log.Error("lookup failed", "email", *email, "err", err)
		os.Exit(1)
	}

	if !u.IsActive {
		log.Error("account is inactive, not sending", "email", u.Email)
		os.Exit(1)
	}

	mailer := buildMailer(cfg, log)

	tokens := auth.NewSetPasswordTokens(cfg.JWTSecret, cfg.SetPasswordTTL)
	links := mail.LinkBuilder{Domain: cfg.SiteDomain, UseHTTPS: cfg.UseHTTPS}

	msg := mail.InviteMessage(cfg.SiteName, u.Email, links.SetPasswordURL(u, tokens), cfg.DefaultFromEmail)

	if err := mailer.Send(ctx, msg); err != nil {
		log.Error("send failed", "email", u.Email, "err", err)
		os.Exit(1)
	}

	fmt.Printf("set-password link sent to %s\n", u.Email)
}

func buildMailer(cfg config.Config, log *slog.Logger) mail.Mailer {
	if cfg.SMTP.Host == "" {
		log.Warn("SMTP_HOST not set, the invite will only be logged")
		return mail.NewLogMailer()
	}

	smtp, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		DefaultFrom: cfg.DefaultFromEmail,
	})

	if err != nil {
		fmt.Fprintf(os.Stderr, "send_set_password: %v\n", err)
		os.Exit(1)
	}

	return smtp
}
