package db

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/langcen/portal/internal/config"
)

type noRowsRow struct{}

func (noRowsRow) Scan(...any) error { return pgx.ErrNoRows }

// fakeQuerier answers every lookup with no rows and records the SQL of
// every write.
type fakeQuerier struct {
	execs []string
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return noRowsRow{}
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, nil
}

func TestEnsureAdminUserSkipsWhenUnconfigured(t *testing.T) {
	q := &fakeQuerier{}

	if err := EnsureAdminUser(context.Background(), q, config.Config{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.execs) != 0 {
		t.Fatalf("no writes expected without ADMIN_EMAIL/ADMIN_PASSWORD, got %d", len(q.execs))
	}
}

func TestEnsureAdminUserWritesOnlyTheUserRow(t *testing.T) {
	q := &fakeQuerier{}
	cfg := config.Config{AdminEmail: "Admin@Example.COM", AdminPassword: "Secret1!"}

	if err := EnsureAdminUser(context.Background(), q, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(q.execs) != 1 {
		t.Fatalf("expected exactly one insert, got %d: %v", len(q.execs), q.execs)
	}
	if !strings.Contains(q.execs[0], "INSERT INTO users") {
		t.Fatalf("expected a users insert, got %q", q.execs[0])
	}

	// Admin accounts carry no profile row.
	if strings.Contains(strings.Join(q.execs, " "), "profiles") {
		t.Fatal("bootstrap admin must not get a profile row")
	}
}
