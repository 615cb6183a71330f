package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/observability"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already in use")
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, email, COALESCE(password_hash, ''), first_name, last_name, role,
	is_active, is_staff, is_superuser, date_joined, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.DateJoined,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

// GetByEmail looks a user up by exact normalized email. Emails are
// stored lowercased, so the caller's input is lowercased here too.
func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(
			ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`,
			user.NormalizeEmail(email),
		))
		return err
	})

	return u, err
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(
			ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`,
			id,
		))
		return err
	})

	return u, err
}

// Create inserts a new user. An empty PasswordHash is stored as NULL,
// which marks the account invite-pending.
func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()

	u.Email = user.NormalizeEmail(u.Email)
	u.DateJoined = now
	u.UpdatedAt = now

	err := r.observe("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users
				(id, email, password_hash, first_name, last_name, role,
				 is_active, is_staff, is_superuser, date_joined, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)`,
			u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
			u.IsActive, u.IsStaff, u.IsSuperuser, u.DateJoined, u.UpdatedAt,
		)
		return err
	})

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.User{}, ErrEmailAlreadyUsed
		}
		return user.User{}, err
	}

	return u, nil
}

// Update persists name, role, flag and password changes for an
// existing user.
func (r *UsersRepo) Update(ctx context.Context, u user.User) error {
	return r.observe("users.update", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users
			SET first_name = $2,
				last_name = $3,
				role = $4,
				is_active = $5,
				is_staff = $6,
				is_superuser = $7,
				password_hash = NULLIF($8, ''),
				updated_at = NOW()
			WHERE id = $1`,
			u.ID, u.FirstName, u.LastName, u.Role,
			u.IsActive, u.IsStaff, u.IsSuperuser, u.PasswordHash,
		)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		return nil
	})
}

// SetPassword replaces only the password hash. Used by the reset
// confirm flow, where nothing else about the user may change.
func (r *UsersRepo) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.observe("users.set_password", func() error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users
			SET password_hash = NULLIF($2, ''), updated_at = NOW()
			WHERE id = $1`,
			id, passwordHash,
		)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}

		return nil
	})
}

func (r *UsersRepo) Count(ctx context.Context) (int, error) {
	var n int

	err := r.observe("users.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	})

	return n, err
}
