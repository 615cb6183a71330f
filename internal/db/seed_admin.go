package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/security"
)

// Querier is the slice of pgxpool.Pool the boot-time seeding needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureAdminUser creates the bootstrap admin account when ADMIN_EMAIL and
// ADMIN_PASSWORD are configured and no user with that email exists yet.
func EnsureAdminUser(ctx context.Context, pool Querier, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := user.NormalizeEmail(cfg.AdminEmail)

	// check if the user exists

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    cfg.AdminFirstName,
		LastName:     cfg.AdminLastName,
		Role:         user.RoleAdmin,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
		DateJoined:   now,
		UpdatedAt:    now,
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, role, is_active, is_staff, is_superuser, date_joined, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.IsActive, u.IsStaff, u.IsSuperuser, u.DateJoined, u.UpdatedAt,
	)

	// No profile row: profiles belong to student accounts only.
	return err
}
