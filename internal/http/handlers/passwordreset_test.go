package handlers

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/repo/memory"
	"github.com/langcen/portal/internal/routing"
	"github.com/langcen/portal/internal/security"
)

type resetFixture struct {
	router   *gin.Engine
	users    *memory.UsersRepo
	sessions *fakeRefreshStore
	mailer   *fakeMailer
	setPwd   *auth.SetPasswordTokens
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Env:            "test",
		SiteName:       "LangCen Base",
		SiteDomain:     "portal.test",
		SetPasswordTTL: time.Hour,
	}

	users := memory.NewUsersRepo()
	sessions := newFakeRefreshStore()
	mailer := &fakeMailer{}
	setPwd := auth.NewSetPasswordTokens("test-secret", cfg.SetPasswordTTL)

	h := NewPasswordResetHandler(users, users, sessions, mailer, setPwd, cfg)

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(
		`{{define "password_reset.html"}}reset{{end}}` +
			`{{define "password_reset_done.html"}}done{{end}}` +
			`{{define "password_reset_confirm.html"}}{{if .InvalidLink}}invalid{{else}}confirm{{end}}{{end}}` +
			`{{define "password_reset_complete.html"}}complete{{end}}`,
	)))

	r.GET(routing.RoutePasswordReset.Path(), h.StartPage)
	r.POST(routing.RoutePasswordReset.Path(), h.Start)
	r.GET(routing.RoutePasswordResetDone.Path(), h.DonePage)
	r.GET(routing.RoutePasswordResetConfirm.Path(), h.ConfirmPage)
	r.POST(routing.RoutePasswordResetConfirm.Path(), h.Confirm)
	r.GET(routing.RoutePasswordResetComplete.Path(), h.CompletePage)

	return &resetFixture{
		router:   r,
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		setPwd:   setPwd,
	}
}

func (f *resetFixture) addUser(t *testing.T, email, password string) user.User {
	t.Helper()

	hash := ""

	if password != "" {
		var err error
		hash, err = security.HashPassword(password)
		if err != nil {
			t.Fatal(err)
		}
	}

	u, err := f.users.Create(context.Background(), user.User{
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleStudent,
		IsActive:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestResetStartSendsEmailForKnownAccount(t *testing.T) {
	f := newResetFixture(t)
	f.addUser(t, "alice@example.com", "OldSecret1!")

	w := postForm(f.router, routing.RoutePasswordReset.Path(), url.Values{
		"email": {"alice@example.com"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	if loc := w.Header().Get("Location"); loc != routing.RoutePasswordResetDone.Path() {
		t.Fatalf("Location = %q, want done page", loc)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent = %d emails, want 1", len(f.mailer.sent))
	}
}

func TestResetStartDoesNotRevealUnknownAccounts(t *testing.T) {
	f := newResetFixture(t)

	w := postForm(f.router, routing.RoutePasswordReset.Path(), url.Values{
		"email": {"nobody@example.com"},
	})

	// same redirect as the known-account case
	if loc := w.Header().Get("Location"); loc != routing.RoutePasswordResetDone.Path() {
		t.Fatalf("Location = %q, want done page", loc)
	}

	if len(f.mailer.sent) != 0 {
		t.Fatal("no email should be sent for an unknown address")
	}
}

func TestResetConfirmSetsPasswordAndEndsSessions(t *testing.T) {
	f := newResetFixture(t)
	u := f.addUser(t, "alice@example.com", "OldSecret1!")

	link := routing.SetPasswordPath(auth.EncodeUID(u.ID), f.setPwd.Make(u))

	w := postForm(f.router, link, url.Values{
		"new_password1": {"NewSecret9!"},
		"new_password2": {"NewSecret9!"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	if loc := w.Header().Get("Location"); loc != routing.RoutePasswordResetComplete.Path() {
		t.Fatalf("Location = %q, want complete page", loc)
	}

	updated, err := f.users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := security.CheckPassword(updated.PasswordHash, "NewSecret9!"); err != nil {
		t.Fatal("new password should verify after the reset")
	}

	found := false
	for _, id := range f.sessions.revoked {
		if id == "user:"+u.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected all sessions for the user to be revoked")
	}
}

func TestResetConfirmActivatesInvitePendingAccount(t *testing.T) {
	f := newResetFixture(t)
	u := f.addUser(t, "pending@example.com", "")

	link := routing.SetPasswordPath(auth.EncodeUID(u.ID), f.setPwd.Make(u))

	w := postForm(f.router, link, url.Values{
		"new_password1": {"FirstSecret1!"},
		"new_password2": {"FirstSecret1!"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	updated, err := f.users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}

	if !updated.HasUsablePassword() {
		t.Fatal("account should have a usable password after activation")
	}
}

func TestResetConfirmRejectsMismatchedPasswords(t *testing.T) {
	f := newResetFixture(t)
	u := f.addUser(t, "alice@example.com", "OldSecret1!")

	link := routing.SetPasswordPath(auth.EncodeUID(u.ID), f.setPwd.Make(u))

	w := postForm(f.router, link, url.Values{
		"new_password1": {"NewSecret9!"},
		"new_password2": {"Different9!"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestResetConfirmRejectsUsedLink(t *testing.T) {
	f := newResetFixture(t)
	u := f.addUser(t, "alice@example.com", "OldSecret1!")

	link := routing.SetPasswordPath(auth.EncodeUID(u.ID), f.setPwd.Make(u))

	w := postForm(f.router, link, url.Values{
		"new_password1": {"NewSecret9!"},
		"new_password2": {"NewSecret9!"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("first use: status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	// the password change invalidates the token signature
	w = postForm(f.router, link, url.Values{
		"new_password1": {"AnotherSecret1!"},
		"new_password2": {"AnotherSecret1!"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("second use: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestResetConfirmPageRejectsGarbageLink(t *testing.T) {
	f := newResetFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, routing.SetPasswordPath("not-base64!", "junk-token"), nil)
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
