package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/langcen/portal/internal/domain/profile"
	"github.com/langcen/portal/internal/observability"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfilesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewProfilesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ProfilesRepo {
	return &ProfilesRepo{pool: pool, prom: prom}
}

func (r *ProfilesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// EnsureForUser creates the student's profile row if it does not exist
// yet. Safe to call repeatedly.
func (r *ProfilesRepo) EnsureForUser(ctx context.Context, userID string) error {
	now := time.Now().UTC()

	return r.observe("profiles.ensure_for_user", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO profiles (id, user_id, is_locked, created_at, updated_at)
			VALUES ($1, $2, FALSE, $3, $3)
			ON CONFLICT (user_id) DO NOTHING`,
			uuid.NewString(), userID, now,
		)
		return err
	})
}

func (r *ProfilesRepo) GetByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	var p profile.Profile

	err := r.observe("profiles.get_by_user_id", func() error {
		err := r.pool.QueryRow(ctx,
			`SELECT id, user_id, is_locked, created_at, updated_at
			FROM profiles
			WHERE user_id = $1`,
			userID,
		).Scan(&p.ID, &p.UserID, &p.IsLocked, &p.CreatedAt, &p.UpdatedAt)

		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		return err
	})

	return p, err
}

