package handlers

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/repo/memory"
	"github.com/langcen/portal/internal/repo/postgres"
	"github.com/langcen/portal/internal/routing"
	"github.com/langcen/portal/internal/security"
)

// fakeTx satisfies postgres.Tx without a database.
type fakeTx struct{}

func (fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (fakeTx) Commit(context.Context) error                     { return nil }
func (fakeTx) Rollback(context.Context) error                   { return nil }

type fakeRefreshStore struct {
	mu      sync.Mutex
	rows    map[string]postgres.RefreshTokenRow
	revoked []string
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{rows: make(map[string]postgres.RefreshTokenRow)}
}

func (s *fakeRefreshStore) BeginTx(context.Context) (postgres.Tx, error) { return fakeTx{}, nil }

func (s *fakeRefreshStore) Create(_ context.Context, _ postgres.Tx, row postgres.RefreshTokenRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	return nil
}

func (s *fakeRefreshStore) GetForUpdate(_ context.Context, _ postgres.Tx, id string) (postgres.RefreshTokenRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return postgres.RefreshTokenRow{}, postgres.ErrRefreshTokenNotFound
	}
	return row, nil
}

func (s *fakeRefreshStore) Revoke(_ context.Context, _ postgres.Tx, id string, replacedBy *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if ok {
		now := time.Now().UTC()
		row.RevokedAt = &now
		row.ReplacedBy = replacedBy
		s.rows[id] = row
	}
	s.revoked = append(s.revoked, id)
	return nil
}

func (s *fakeRefreshStore) RevokeAllForUser(_ context.Context, _ postgres.Tx, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, row := range s.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			now := time.Now().UTC()
			row.RevokedAt = &now
			s.rows[id] = row
		}
	}
	s.revoked = append(s.revoked, "user:"+userID)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return context.DeadlineExceeded
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeProfiles struct {
	mu      sync.Mutex
	ensured []string
}

func (p *fakeProfiles) EnsureForUser(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensured = append(p.ensured, userID)
	return nil
}

const testPassword = "Secret1!"

type authFixture struct {
	router   *gin.Engine
	users    *memory.UsersRepo
	sessions *fakeRefreshStore
	mailer   *fakeMailer
	profiles *fakeProfiles
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Env:            "test",
		SiteName:       "LangCen Base",
		SiteDomain:     "portal.test",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     24 * time.Hour,
		SetPasswordTTL: time.Hour,
	}

	users := memory.NewUsersRepo()
	sessions := newFakeRefreshStore()
	mailer := &fakeMailer{}
	profiles := &fakeProfiles{}

	jwtManager := auth.NewManager("test-secret", cfg.AccessTTL, cfg.RefreshTTL)
	setPwd := auth.NewSetPasswordTokens("test-secret", cfg.SetPasswordTTL)
	resolver := routing.NewResolver(nil)

	h := NewAuthHandler(users, users, profiles, jwtManager, sessions, resolver, mailer, setPwd, cfg)

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(
		`{{define "login.html"}}login{{end}}` +
			`{{define "register.html"}}register{{end}}`,
	)))

	r.GET(routing.RouteLogin.Path(), h.LoginPage)
	r.POST(routing.RouteLogin.Path(), h.Login)
	r.POST(routing.RouteRegister.Path(), h.Register)
	r.POST(routing.RouteLogout.Path(), h.Logout)

	return &authFixture{
		router:   r,
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		profiles: profiles,
	}
}

func (f *authFixture) addUser(t *testing.T, email string, role user.Role) user.User {
	t.Helper()

	hash, err := security.HashPassword(testPassword)
	if err != nil {
		t.Fatal(err)
	}

	u, err := f.users.Create(context.Background(), user.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "Person",
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func postForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestLoginRedirectsToRoleHome(t *testing.T) {
	cases := []struct {
		role user.Role
		want string
	}{
		{user.RoleStudent, routing.RouteStudentHome.Path()},
		{user.RoleTeacher, routing.RouteTeacherHome.Path()},
		{user.RoleAdmin, routing.RouteAdminHome.Path()},
	}

	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			f := newAuthFixture(t)
			f.addUser(t, string(tc.role)+"@example.com", tc.role)

			w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
				"email":    {string(tc.role) + "@example.com"},
				"password": {testPassword},
			})

			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
			}

			if loc := w.Header().Get("Location"); loc != tc.want {
				t.Fatalf("Location = %q, want %q", loc, tc.want)
			}
		})
	}
}

func TestLoginSetsSessionCookies(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "alice@example.com", user.RoleStudent)

	w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
		"email":    {"alice@example.com"},
		"password": {testPassword},
	})

	var haveAccess, haveRefresh bool

	for _, cookie := range w.Result().Cookies() {
		switch cookie.Name {
		case "access_token":
			haveAccess = cookie.Value != ""
		case "refresh_token":
			haveRefresh = cookie.Value != ""
		}
	}

	if !haveAccess || !haveRefresh {
		t.Fatalf("access=%v refresh=%v, want both cookies set", haveAccess, haveRefresh)
	}

	if len(f.sessions.rows) != 1 {
		t.Fatalf("stored sessions = %d, want 1", len(f.sessions.rows))
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "alice@example.com", user.RoleStudent)

	w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
		"email":    {"  ALICE@Example.COM "},
		"password": {testPassword},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
}

func TestLoginHonorsSafeNextParam(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "alice@example.com", user.RoleStudent)

	w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
		"email":    {"alice@example.com"},
		"password": {testPassword},
		"next":     {"/profile"},
	})

	if loc := w.Header().Get("Location"); loc != "/profile" {
		t.Fatalf("Location = %q, want /profile", loc)
	}
}

func TestLoginRejectsExternalNextParam(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "alice@example.com", user.RoleStudent)

	w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
		"email":    {"alice@example.com"},
		"password": {testPassword},
		"next":     {"//evil.example.com/phish"},
	})

	if loc := w.Header().Get("Location"); loc != routing.RouteStudentHome.Path() {
		t.Fatalf("Location = %q, want role home for protocol-relative next", loc)
	}
}

func TestLoginWrongPasswordRejected(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "alice@example.com", user.RoleStudent)

	w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
		"email":    {"alice@example.com"},
		"password": {"not-the-password"},
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLoginInvitePendingAccountRejected(t *testing.T) {
	// An account created without a password cannot sign in until the
	// set-password link is used.
	f := newAuthFixture(t)

	_, err := f.users.Create(context.Background(), user.User{
		Email:    "pending@example.com",
		Role:     user.RoleStudent,
		IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	w := postForm(f.router, routing.RouteLogin.Path(), url.Values{
		"email":    {"pending@example.com"},
		"password": {""},
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRegisterCreatesInvitePendingUser(t *testing.T) {
	f := newAuthFixture(t)

	w := postForm(f.router, routing.RouteRegister.Path(), url.Values{
		"email":      {"new.teacher@example.com"},
		"first_name": {"Nina"},
		"last_name":  {"Torres"},
		"role":       {"teacher"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	u, err := f.users.GetByEmail(context.Background(), "new.teacher@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if u.HasUsablePassword() {
		t.Fatal("registered user should not have a usable password")
	}

	if u.Role != user.RoleTeacher {
		t.Fatalf("role = %q, want teacher", u.Role)
	}

	if !u.IsStaff {
		t.Fatal("teacher accounts should be created as staff")
	}

	if len(f.profiles.ensured) != 0 {
		t.Fatalf("profiles ensured = %v, want none for a teacher", f.profiles.ensured)
	}

	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent = %d emails, want 1", len(f.mailer.sent))
	}

	if !strings.Contains(f.mailer.sent[0].Body, auth.EncodeUID(u.ID)) {
		t.Fatal("invite email should carry the set-password link")
	}
}

func TestRegisterCreatesStudentProfile(t *testing.T) {
	f := newAuthFixture(t)

	w := postForm(f.router, routing.RouteRegister.Path(), url.Values{
		"email":      {"new.student@example.com"},
		"first_name": {"Omar"},
		"last_name":  {"Diallo"},
		"role":       {"student"},
	})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	u, err := f.users.GetByEmail(context.Background(), "new.student@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if u.IsStaff {
		t.Fatal("student accounts should not be staff")
	}

	if len(f.profiles.ensured) != 1 || f.profiles.ensured[0] != u.ID {
		t.Fatalf("profile not ensured for student %s", u.ID)
	}
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	f := newAuthFixture(t)
	f.addUser(t, "taken@example.com", user.RoleStudent)

	w := postForm(f.router, routing.RouteRegister.Path(), url.Values{
		"email":      {"taken@example.com"},
		"first_name": {"Dup"},
		"last_name":  {"Licate"},
		"role":       {"student"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	if len(f.mailer.sent) != 0 {
		t.Fatal("no email should be sent for a duplicate registration")
	}
}

func TestLogoutClearsCookiesAndRedirects(t *testing.T) {
	f := newAuthFixture(t)

	w := postForm(f.router, routing.RouteLogout.Path(), nil)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}

	if loc := w.Header().Get("Location"); loc != routing.RouteLanding.Path() {
		t.Fatalf("Location = %q, want %q", loc, routing.RouteLanding.Path())
	}

	cleared := false

	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == "access_token" && cookie.MaxAge < 0 {
			cleared = true
		}
	}

	if !cleared {
		t.Fatal("expected the session cookie to be cleared")
	}
}
