package mail

import (
	"strings"
	"testing"
	"time"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/domain/user"
)

func TestSetPasswordURL(t *testing.T) {
	tokens := auth.NewSetPasswordTokens("secret", time.Hour)
	u := user.User{ID: "user-1", Email: "bob@example.com"}

	b := LinkBuilder{Domain: "portal.example.edu", UseHTTPS: true}

	url := b.SetPasswordURL(u, tokens)

	if !strings.HasPrefix(url, "https://portal.example.edu/accounts/reset/") {
		t.Fatalf("unexpected url %q", url)
	}

	// The uid segment must decode back to the user ID.
	rest := strings.TrimPrefix(url, "https://portal.example.edu/accounts/reset/")
	uid, _, ok := strings.Cut(rest, "/")
	if !ok {
		t.Fatalf("url missing token segment: %q", url)
	}

	id, err := auth.DecodeUID(uid)
	if err != nil || id != u.ID {
		t.Fatalf("uid segment does not round trip: %q err=%v", id, err)
	}
}

func TestSetPasswordURLDefaultScheme(t *testing.T) {
	b := LinkBuilder{Domain: "localhost:8000"}
	if b.Scheme() != "http" {
		t.Fatalf("default scheme should be http")
	}
}

func TestWelcomeMessagePlaceholder(t *testing.T) {
	msg := WelcomeMessage("carol@example.com", "", "http://x/reset", "")

	if !strings.Contains(msg.Body, "Temporary password: (not set)") {
		t.Fatalf("missing placeholder for unset password:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "http://x/reset") {
		t.Fatalf("missing reset link:\n%s", msg.Body)
	}
	if msg.To != "carol@example.com" {
		t.Fatalf("wrong recipient %q", msg.To)
	}
}

func TestWelcomeMessageWithPassword(t *testing.T) {
	msg := WelcomeMessage("carol@example.com", "ChangeMe123!", "http://x/reset", "ops@example.edu")

	if !strings.Contains(msg.Body, "Temporary password: ChangeMe123!") {
		t.Fatalf("missing temp password:\n%s", msg.Body)
	}
	if msg.From != "ops@example.edu" {
		t.Fatalf("from override lost: %q", msg.From)
	}
}
