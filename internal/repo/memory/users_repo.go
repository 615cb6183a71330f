package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/repo/postgres"
)

// UsersRepo is an in-memory stand-in for the Postgres users repo.
// Used by tests and local experiments; it mirrors the same sentinel
// errors so callers cannot tell the difference.
type UsersRepo struct {
	mu      sync.RWMutex
	byEmail map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{byEmail: make(map[string]user.User)}
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return user.User{}, postgres.ErrUserNotFound
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = user.NormalizeEmail(u.Email)

	if _, exists := r.byEmail[u.Email]; exists {
		return user.User{}, postgres.ErrEmailAlreadyUsed
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	u.DateJoined = now
	u.UpdatedAt = now

	r.byEmail[u.Email] = u
	return u, nil
}

func (r *UsersRepo) Update(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for email, existing := range r.byEmail {
		if existing.ID == u.ID {
			u.Email = email
			u.DateJoined = existing.DateJoined
			u.UpdatedAt = time.Now().UTC()
			r.byEmail[email] = u
			return nil
		}
	}
	return postgres.ErrUserNotFound
}

func (r *UsersRepo) SetPassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for email, existing := range r.byEmail {
		if existing.ID == id {
			existing.PasswordHash = passwordHash
			existing.UpdatedAt = time.Now().UTC()
			r.byEmail[email] = existing
			return nil
		}
	}
	return postgres.ErrUserNotFound
}

func (r *UsersRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byEmail), nil
}
