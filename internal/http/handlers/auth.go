package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/http/flash"
	"github.com/langcen/portal/internal/http/middlewares"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/repo/postgres"
	"github.com/langcen/portal/internal/routing"
	"github.com/langcen/portal/internal/security"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, u user.User) (user.User, error)
}

type ProfileEnsurer interface {
	EnsureForUser(ctx context.Context, userID string) error
}

type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (postgres.Tx, error)
	Create(ctx context.Context, tx postgres.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx postgres.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx postgres.Tx, id string, replacedBy *string) error
	RevokeAllForUser(ctx context.Context, tx postgres.Tx, userID string) error
}

type AuthHandler struct {
	users        UserReader
	userWriter   UserWriter
	profiles     ProfileEnsurer
	jwt          *auth.Manager
	refreshStore RefreshTokenStore
	resolver     *routing.Resolver
	mailer       mail.Mailer
	setPwd       *auth.SetPasswordTokens
	cfg          config.Config
}

func NewAuthHandler(
	users UserReader,
	userWriter UserWriter,
	profiles ProfileEnsurer,
	jwtManager *auth.Manager,
	refreshStore RefreshTokenStore,
	resolver *routing.Resolver,
	mailer mail.Mailer,
	setPwd *auth.SetPasswordTokens,
	cfg config.Config,
) *AuthHandler {
	return &AuthHandler{
		users:        users,
		userWriter:   userWriter,
		profiles:     profiles,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		resolver:     resolver,
		mailer:       mailer,
		setPwd:       setPwd,
		cfg:          cfg,
	}
}

// LoginForm deliberately skips email-syntax validation: the raw value
// is normalized first and a malformed address simply fails the lookup.
type LoginForm struct {
	Email    string `form:"email" binding:"required"`
	Password string `form:"password" binding:"required"`
	Next     string `form:"next"`
}

type RegisterForm struct {
	Email     string `form:"email" binding:"required,email"`
	FirstName string `form:"first_name" binding:"required"`
	LastName  string `form:"last_name" binding:"required"`
	Role      string `form:"role" binding:"required,oneof=student teacher admin"`
}

// LoginPage renders the sign-in form. The next parameter, if present,
// survives into the form so the post-login redirect can honor it.
func (h *AuthHandler) LoginPage(ctx *gin.Context) {
	msg, _ := flash.Pop(ctx)

	ctx.HTML(http.StatusOK, "login.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Flash":    msg,
		"Next":     ctx.Query("next"),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var form LoginForm

	if err := ctx.ShouldBind(&form); err != nil {
		h.renderLoginError(ctx, form.Next)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, user.NormalizeEmail(form.Email))

	if err != nil {
		h.renderLoginError(ctx, form.Next)
		return
	}

	if !foundUser.IsActive || !foundUser.HasUsablePassword() {
		h.renderLoginError(ctx, form.Next)
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, form.Password)

	if err != nil {
		h.renderLoginError(ctx, form.Next)
		return
	}

	if err := h.openSession(ctx, cctx, foundUser); err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	ctx.Redirect(http.StatusSeeOther, h.postLoginTarget(foundUser, form.Next))
}

// postLoginTarget prefers a safe same-site next parameter; otherwise
// the user lands on the destination their role resolves to.
func (h *AuthHandler) postLoginTarget(u user.User, next string) string {
	if next != "" && strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		return next
	}

	return h.resolver.Destination(u).Path()
}

func (h *AuthHandler) renderLoginError(ctx *gin.Context, next string) {
	ctx.HTML(http.StatusUnauthorized, "login.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Error":    "Email or password is incorrect.",
		"Next":     next,
	})
}

// RegisterPage renders the staff-only account creation form.
func (h *AuthHandler) RegisterPage(ctx *gin.Context) {
	msg, _ := flash.Pop(ctx)

	ctx.HTML(http.StatusOK, "register.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Flash":    msg,
	})
}

// Register creates an account without a password and emails the person
// a set-password link. Reachable only behind the admin role gate.
func (h *AuthHandler) Register(ctx *gin.Context) {
	var form RegisterForm

	if err := ctx.ShouldBind(&form); err != nil {
		ctx.HTML(http.StatusBadRequest, "register.html", gin.H{
			"SiteName": h.cfg.SiteName,
			"Error":    "All fields are required and the role must be valid.",
		})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	now := time.Now().UTC()

	u := user.User{
		ID:         uuid.NewString(),
		Email:      user.NormalizeEmail(form.Email),
		FirstName:  strings.TrimSpace(form.FirstName),
		LastName:   strings.TrimSpace(form.LastName),
		Role:       user.Role(form.Role),
		IsActive:   true,
		DateJoined: now,
		UpdatedAt:  now,
	}
	u.IsStaff = u.IsTeacher() || u.IsAdmin()

	created, err := h.userWriter.Create(cctx, u)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			ctx.HTML(http.StatusBadRequest, "register.html", gin.H{
				"SiteName": h.cfg.SiteName,
				"Error":    "That email address is already registered.",
			})
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	// Only students carry a portal profile.
	if created.IsStudent() {
		if err := h.profiles.EnsureForUser(cctx, created.ID); err != nil {
			RespondInternal(ctx, "Could not create user")
			return
		}
	}

	links := mail.LinkBuilder{Domain: h.cfg.SiteDomain, UseHTTPS: h.cfg.UseHTTPS}
	msg := mail.InviteMessage(h.cfg.SiteName, created.Email, links.SetPasswordURL(created, h.setPwd), h.cfg.DefaultFromEmail)

	if err := h.mailer.Send(cctx, msg); err != nil {
		flash.Set(ctx, "Account created, but the invitation email could not be sent.")
	} else {
		flash.Set(ctx, "Account created. An invitation email is on its way to "+created.Email+".")
	}

	ctx.Redirect(http.StatusSeeOther, routing.RouteRegister.Path())
}

// Refresh rotates the refresh token and reissues the session cookie.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())

	if err != nil || raw == "" {
		RespondUnAuthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	// rotation with a tx with row lock

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refreshStore.GetForUpdate(cctx, tx, claims.JTI)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if row.RevokedAt != nil {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if time.Now().UTC().After(row.ExpiresAt) {
		RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}

	// verify hash matches the presented token (prevents token substitution)

	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
		return
	}

	currentUser, err := h.users.GetByID(cctx, row.UserID)

	if err != nil || !currentUser.IsActive {
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(currentUser)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	// revoke old, insert new

	err = h.refreshStore.Revoke(cctx, tx, row.ID, &newJTI)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	newRow := postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    row.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.refreshStore.Create(cctx, tx, newRow)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	err = tx.Commit(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(currentUser)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setSessionCookie(ctx, accessToken)
	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())

	if err == nil && raw != "" {
		if claims, err := h.jwt.VerifyRefreshToken(raw); err == nil {
			cctx, cancel := config.WithTimeout(3 * time.Second)
			defer cancel()

			if tx, err := h.refreshStore.BeginTx(cctx); err == nil {
				// revoke that one token (idempotent)
				_ = h.refreshStore.Revoke(cctx, tx, claims.JTI, nil)
				_ = tx.Commit(cctx)
			}
		}
	}

	h.clearSessionCookies(ctx)
	flash.Set(ctx, "You have been signed out.")
	ctx.Redirect(http.StatusSeeOther, routing.RouteLanding.Path())
}

// Helper functions

func (h *AuthHandler) openSession(ctx *gin.Context, cctx context.Context, u user.User) error {
	accessToken, err := h.jwt.GenerateAccessToken(u)

	if err != nil {
		return err
	}

	rawRefreshToken, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u)

	if err != nil {
		return err
	}

	if err := h.storeRefreshToken(cctx, u.ID, jti, rawRefreshToken, expiresAt); err != nil {
		return err
	}

	h.setSessionCookie(ctx, accessToken)
	h.setRefreshCookie(ctx, rawRefreshToken, expiresAt)

	return nil
}

func (h *AuthHandler) storeRefreshToken(ctx context.Context, userID, jti, raw string, expiresAt time.Time) error {
	tx, err := h.refreshStore.BeginTx(ctx)

	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	row := postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err = h.refreshStore.Create(ctx, tx, row)

	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (h *AuthHandler) refreshCookieName() string {
	return "refresh_token"
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, accessToken string) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteLaxMode)

	ctx.SetCookie(
		middlewares.SessionCookieName,
		accessToken,
		int(h.cfg.AccessTTL.Seconds()),
		"/",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		h.refreshCookieName(),
		raw,
		maxAge,
		"/",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookies(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middlewares.SessionCookieName, "", -1, "/", "", secure, true)

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(h.refreshCookieName(), "", -1, "/", "", secure, true)
}
