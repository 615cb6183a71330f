package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/repo/postgres"
)

func TestCreateRejectsCaseVariantDuplicateEmail(t *testing.T) {
	r := NewUsersRepo()

	if _, err := r.Create(context.Background(), user.User{Email: "dana@example.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Email uniqueness is case-insensitive across the store.
	_, err := r.Create(context.Background(), user.User{Email: "DANA@Example.COM"})
	if !errors.Is(err, postgres.ErrEmailAlreadyUsed) {
		t.Fatalf("expected ErrEmailAlreadyUsed, got %v", err)
	}
}
