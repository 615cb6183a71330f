package seeder

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/repo/postgres"
	"github.com/langcen/portal/internal/security"
)

// UserStore is the slice of the users repo the seeder needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
	Update(ctx context.Context, u user.User) error
}

// ProfileEnsurer creates the student profile row after a student
// account is created. Optional; nil skips it.
type ProfileEnsurer interface {
	EnsureForUser(ctx context.Context, userID string) error
}

type Options struct {
	// DefaultPassword applies to CREATES that have no CSV password.
	// It is never applied to existing accounts.
	DefaultPassword string

	// Update allows changing existing users (names, CSV passwords).
	Update bool

	// DryRun reports what would happen without writing or emailing.
	DryRun bool

	// SendWelcome emails created users and password-changed updates.
	SendWelcome bool
	SiteDomain  string
	UseHTTPS    bool
	FromEmail   string
}

// Report carries the final counters. Skipped covers blank emails,
// exists-without-update and no-change updates; InvalidEmail is its own
// counter so operators can tell bad data from benign no-ops.
type Report struct {
	Rows         int
	Created      int
	Updated      int
	Skipped      int
	InvalidEmail int
	DryRun       bool
}

func (r Report) String() string {
	return fmt.Sprintf("rows=%d created=%d updated=%d skipped=%d invalid_email=%d dry_run=%v",
		r.Rows, r.Created, r.Updated, r.Skipped, r.InvalidEmail, r.DryRun)
}

// Seeder idempotently reconciles the user store against a CSV of
// student records.
type Seeder struct {
	store    UserStore
	profiles ProfileEnsurer
	mailer   mail.Mailer
	tokens   *auth.SetPasswordTokens
	out      io.Writer
	validate *validator.Validate
}

func New(store UserStore, profiles ProfileEnsurer, mailer mail.Mailer, tokens *auth.SetPasswordTokens, out io.Writer) *Seeder {
	if out == nil {
		out = os.Stdout
	}

	return &Seeder{
		store:    store,
		profiles: profiles,
		mailer:   mailer,
		tokens:   tokens,
		out:      out,
		validate: validator.New(),
	}
}

// Run processes the CSV at csvPath. Configuration problems (missing
// file, missing email column, --send-welcome without a site domain)
// fail before any row is touched. Row-level problems are counted and
// never abort the run; store and mail failures do abort, since losing
// an invite silently is worse than stopping.
func (s *Seeder) Run(ctx context.Context, csvPath string, opts Options) (Report, error) {
	report := Report{DryRun: opts.DryRun}

	if _, err := os.Stat(csvPath); err != nil {
		return report, fmt.Errorf("CSV not found: %s", csvPath)
	}

	if opts.SendWelcome && opts.SiteDomain == "" {
		return report, errors.New("--site-domain is required when using --send-welcome")
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return report, fmt.Errorf("could not read CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	headers, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("could not read CSV: %w", err)
	}

	col := indexHeaders(headers)

	if _, ok := col["email"]; !ok {
		return report, errors.New("CSV must include an 'email' column")
	}

	fmt.Fprintln(s.out, "== seed_students starting ==")
	fmt.Fprintf(s.out, "File: %s\n", csvPath)
	fmt.Fprintf(s.out, "Headers: %v\n", headers)
	fmt.Fprintf(s.out, "Options: default_password=%s update=%v dry_run=%v send_welcome=%v site_domain=%s use_https=%v\n",
		maskSecret(opts.DefaultPassword), opts.Update, opts.DryRun, opts.SendWelcome, opts.SiteDomain, opts.UseHTTPS)

	if _, ok := col["password"]; !ok {
		fmt.Fprintln(s.out, "warning: CSV has no 'password' column; password updates will be skipped (creates still use --default-password)")
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("could not read CSV: %w", err)
		}

		report.Rows++

		row := seedRow{
			email:     field(record, col, "email"),
			firstName: field(record, col, "first_name"),
			lastName:  field(record, col, "last_name"),
			password:  field(record, col, "password"),
		}

		if err := s.processRow(ctx, row, opts, &report); err != nil {
			return report, err
		}
	}

	fmt.Fprintln(s.out, report.String())
	fmt.Fprintln(s.out, "Done.")

	return report, nil
}

// seedRow is one parsed CSV row; all fields already trimmed.
type seedRow struct {
	email     string
	firstName string
	lastName  string
	password  string
}

func (s *Seeder) processRow(ctx context.Context, row seedRow, opts Options, report *Report) error {
	rawEmail := row.email
	email := user.NormalizeEmail(rawEmail)

	if email == "" {
		report.Skipped++
		fmt.Fprintf(s.out, "[row %d] missing email -> skip\n", report.Rows)
		return nil
	}

	if err := s.validate.Var(email, "email"); err != nil {
		report.InvalidEmail++
		fmt.Fprintf(s.out, "[row %d] invalid email %q -> skip\n", report.Rows, rawEmail)
		return nil
	}

	existing, err := s.store.GetByEmail(ctx, email)

	switch {
	case errors.Is(err, postgres.ErrUserNotFound):
		return s.createUser(ctx, email, row, opts, report)
	case err != nil:
		return fmt.Errorf("lookup %s: %w", email, err)
	}

	if !opts.Update {
		report.Skipped++
		fmt.Fprintf(s.out, "[row %d] exists -> skip: %s\n", report.Rows, email)
		return nil
	}

	return s.updateUser(ctx, existing, row, opts, report)
}

func (s *Seeder) createUser(ctx context.Context, email string, row seedRow, opts Options, report *Report) error {
	// CREATE path password choice: CSV > --default-password > none
	// (no usable password; the account stays invite-pending).
	chosen := row.password
	if chosen == "" {
		chosen = opts.DefaultPassword
	}

	if opts.DryRun {
		report.Created++
		fmt.Fprintf(s.out, "[row %d] would create: %s (student)\n", report.Rows, email)
		if opts.SendWelcome {
			fmt.Fprintf(s.out, "    would email: %s\n", email)
		}
		return nil
	}

	var hash string
	if chosen != "" {
		var err error
		hash, err = security.HashPassword(chosen)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", email, err)
		}
	}

	created, err := s.store.Create(ctx, user.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    row.firstName,
		LastName:     row.lastName,
		Role:         user.RoleStudent,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", email, err)
	}

	if s.profiles != nil {
		if err := s.profiles.EnsureForUser(ctx, created.ID); err != nil {
			return fmt.Errorf("create profile for %s: %w", email, err)
		}
	}

	report.Created++
	fmt.Fprintf(s.out, "[row %d] created: %s (student)\n", report.Rows, email)

	if opts.SendWelcome {
		return s.sendWelcome(ctx, created, chosen, opts, report)
	}
	return nil
}

func (s *Seeder) updateUser(ctx context.Context, existing user.User, row seedRow, opts Options, report *Report) error {
	changed := false
	pwdChanged := false

	// Names only change when the CSV supplies a non-blank, differing
	// value; a blank cell never erases an existing name.
	if row.firstName != "" && existing.FirstName != row.firstName {
		existing.FirstName = row.firstName
		changed = true
	}
	if row.lastName != "" && existing.LastName != row.lastName {
		existing.LastName = row.lastName
		changed = true
	}

	// For UPDATES, only the CSV's own password counts. The default
	// password is ignored here so a routine re-run cannot mass-reset
	// everyone's credentials.
	if row.password != "" {
		pwdChanged = true
		changed = true
	}

	if !changed {
		report.Skipped++
		fmt.Fprintf(s.out, "[row %d] no changes: %s\n", report.Rows, existing.Email)
		return nil
	}

	if opts.DryRun {
		report.Updated++
		fmt.Fprintf(s.out, "[row %d] would update: %s\n", report.Rows, existing.Email)
		if opts.SendWelcome && pwdChanged {
			fmt.Fprintf(s.out, "    would email: %s\n", existing.Email)
		}
		return nil
	}

	if pwdChanged {
		hash, err := security.HashPassword(row.password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", existing.Email, err)
		}
		existing.PasswordHash = hash
	}

	if err := s.store.Update(ctx, existing); err != nil {
		return fmt.Errorf("update %s: %w", existing.Email, err)
	}

	report.Updated++
	fmt.Fprintf(s.out, "[row %d] updated: %s\n", report.Rows, existing.Email)

	// Name-only updates never trigger an email.
	if opts.SendWelcome && pwdChanged {
		return s.sendWelcome(ctx, existing, row.password, opts, report)
	}
	return nil
}

func (s *Seeder) sendWelcome(ctx context.Context, u user.User, plainPassword string, opts Options, report *Report) error {
	links := mail.LinkBuilder{Domain: opts.SiteDomain, UseHTTPS: opts.UseHTTPS}
	resetURL := links.SetPasswordURL(u, s.tokens)

	msg := mail.WelcomeMessage(u.Email, plainPassword, resetURL, opts.FromEmail)

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send welcome to %s: %w", u.Email, err)
	}

	fmt.Fprintf(s.out, "    emailed: %s\n", u.Email)
	return nil
}

// indexHeaders maps lowercased header names to column positions.
// Unknown columns are simply never looked up.
func indexHeaders(headers []string) map[string]int {
	col := make(map[string]int, len(headers))
	for i, h := range headers {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return col
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func maskSecret(s string) string {
	if s == "" {
		return "<none>"
	}
	return "***"
}
