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
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/observability"
	"github.com/langcen/portal/internal/repo/postgres"
	"github.com/langcen/portal/internal/seeder"
)

func main() {
	_ = godotenv.Load()

	var (
		csvPath         = flag.String("file", "", "path to the student CSV (or pass it as the first argument)")
		defaultPassword = flag.String("default-password", "", "password for created rows that carry none in the CSV")
		update          = flag.Bool("update", false, "update existing accounts from the CSV")
		dryRun          = flag.Bool("dry-run", false, "report what would change without writing")
		sendWelcome     = flag.Bool("send-welcome", false, "email each created account")
		siteDomain      = flag.String("site-domain", "", "domain for emailed links (default: SITE_DOMAIN)")
		useHTTPS        = flag.Bool("https", false, "build https links (default: SITE_HTTPS)")
		fromEmail       = flag.String("from-email", "", "sender for welcome emails (default: DEFAULT_FROM_EMAIL)")
		timeout         = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	)
	flag.Parse()

	path := resolveCSVPath(*csvPath, flag.Args())

	if path == "" {
		fmt.Fprintln(os.Stderr, "seed_students: a CSV path is required")
		flag.Usage()
		os.Exit(2)
	}
	*csvPath = path

	cfg := config.Load()
	log := observability.NewLogger(cfg.Env, false)

	if *siteDomain == "" {
		*siteDomain = cfg.SiteDomain
	}
	if !*useHTTPS {
		*useHTTPS = cfg.UseHTTPS
	}
	if *fromEmail == "" {
		*fromEmail = cfg.DefaultFromEmail
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	users := postgres.NewUsersRepo(pool, nil)
	profiles := postgres.NewProfilesRepo(pool, nil)

	// The seeder gets the raw mailer on purpose: a delivery failure
	// must abort the run, not trip a breaker and get swallowed.
	mailer := buildMailer(cfg, log)

	tokens := auth.NewSetPasswordTokens(cfg.JWTSecret, cfg.SetPasswordTTL)

	s := seeder.New(users, profiles, mailer, tokens, os.Stdout)

	ctx, cancel := config.WithTimeout(*timeout)
	defer cancel()

	report, err := s.Run(ctx, *csvPath, seeder.Options{
		DefaultPassword: *defaultPassword,
		Update:          *update,
		DryRun:          *dryRun,
		SendWelcome:     *sendWelcome,
		SiteDomain:      *siteDomain,
		UseHTTPS:        *useHTTPS,
		FromEmail:       *fromEmail,
	})

	if err != nil {
		log.Error("seed run failed", "err", err, "report", report.String())
		os.Exit(1)
	}

	fmt.Println(report.String())
}

// resolveCSVPath prefers the -file flag; otherwise the first
// positional argument names the CSV.
func resolveCSVPath(fileFlag string, args []string) string {
	if fileFlag != "" {
		return fileFlag
	}
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func buildMailer(cfg config.Config, log *slog.Logger) mail.Mailer {
	if cfg.SMTP.Host == "" {
		log.Warn("SMTP_HOST not set, welcome emails will only be logged")
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
		fmt.Fprintf(os.Stderr, "seed_students: %v\n", err)
		os.Exit(1)
	}

	return smtp
}
