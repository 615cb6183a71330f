package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/mail"
	"github.com/langcen/portal/internal/routing"
	"github.com/langcen/portal/internal/security"
)

type PasswordSetter interface {
	SetPassword(ctx context.Context, id, passwordHash string) error
}

// PasswordResetHandler drives the email-based set-password flow, both
// for forgotten passwords and for first-time activation of accounts
// created without one.
type PasswordResetHandler struct {
	users        UserReader
	passwords    PasswordSetter
	refreshStore RefreshTokenStore
	mailer       mail.Mailer
	setPwd       *auth.SetPasswordTokens
	cfg          config.Config
}

func NewPasswordResetHandler(
	users UserReader,
	passwords PasswordSetter,
	refreshStore RefreshTokenStore,
	mailer mail.Mailer,
	setPwd *auth.SetPasswordTokens,
	cfg config.Config,
) *PasswordResetHandler {
	return &PasswordResetHandler{
		users:        users,
		passwords:    passwords,
		refreshStore: refreshStore,
		mailer:       mailer,
		setPwd:       setPwd,
		cfg:          cfg,
	}
}

type ResetRequestForm struct {
	Email string `form:"email" binding:"required,email"`
}

type SetPasswordForm struct {
	Password1 string `form:"new_password1" binding:"required,min=8"`
	Password2 string `form:"new_password2" binding:"required"`
}

func (h *PasswordResetHandler) StartPage(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "password_reset.html", gin.H{
		"SiteName": h.cfg.SiteName,
	})
}

// Start always redirects to the done page, whether or not the email
// matched an account, so the form cannot be used to probe addresses.
func (h *PasswordResetHandler) Start(ctx *gin.Context) {
	var form ResetRequestForm

	if err := ctx.ShouldBind(&form); err != nil {
		ctx.HTML(http.StatusBadRequest, "password_reset.html", gin.H{
			"SiteName": h.cfg.SiteName,
			"Error":    "Enter a valid email address.",
		})
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	u, err := h.users.GetByEmail(cctx, user.NormalizeEmail(form.Email))

	if err == nil && u.IsActive {
		links := mail.LinkBuilder{Domain: h.cfg.SiteDomain, UseHTTPS: h.cfg.UseHTTPS}
		msg := mail.ResetMessage(h.cfg.SiteName, u.Email, links.SetPasswordURL(u, h.setPwd), h.cfg.DefaultFromEmail)

		// best effort: the done page does not reveal delivery failures
		_ = h.mailer.Send(cctx, msg)
	}

	ctx.Redirect(http.StatusSeeOther, routing.RoutePasswordResetDone.Path())
}

func (h *PasswordResetHandler) DonePage(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "password_reset_done.html", gin.H{
		"SiteName": h.cfg.SiteName,
	})
}

// ConfirmPage validates the emailed link and shows the new-password
// form when the token is still good.
func (h *PasswordResetHandler) ConfirmPage(ctx *gin.Context) {
	u, ok := h.userFromLink(ctx)

	if !ok {
		h.renderInvalidLink(ctx)
		return
	}

	ctx.HTML(http.StatusOK, "password_reset_confirm.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Email":    u.Email,
	})
}

func (h *PasswordResetHandler) Confirm(ctx *gin.Context) {
	u, ok := h.userFromLink(ctx)

	if !ok {
		h.renderInvalidLink(ctx)
		return
	}

	var form SetPasswordForm

	if err := ctx.ShouldBind(&form); err != nil {
		h.renderConfirmError(ctx, u, "The password must be at least 8 characters.")
		return
	}

	if form.Password1 != form.Password2 {
		h.renderConfirmError(ctx, u, "The two passwords did not match.")
		return
	}

	hash, err := security.HashPassword(form.Password1)

	if err != nil {
		RespondInternal(ctx, "Could not set password")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.passwords.SetPassword(cctx, u.ID, hash); err != nil {
		RespondInternal(ctx, "Could not set password")
		return
	}

	// Changing the password ends every open session for the account.
	if tx, err := h.refreshStore.BeginTx(cctx); err == nil {
		_ = h.refreshStore.RevokeAllForUser(cctx, tx, u.ID)
		_ = tx.Commit(cctx)
	}

	ctx.Redirect(http.StatusSeeOther, routing.RoutePasswordResetComplete.Path())
}

func (h *PasswordResetHandler) CompletePage(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "password_reset_complete.html", gin.H{
		"SiteName": h.cfg.SiteName,
	})
}

// userFromLink decodes the uid segment and checks the token against
// the account's current state. A used link fails here because the
// stored password hash is part of the token signature.
func (h *PasswordResetHandler) userFromLink(ctx *gin.Context) (user.User, bool) {
	id, err := auth.DecodeUID(ctx.Param("uid"))

	if err != nil {
		return user.User{}, false
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil || !u.IsActive {
		return user.User{}, false
	}

	if err := h.setPwd.Verify(u, ctx.Param("token")); err != nil {
		return user.User{}, false
	}

	return u, true
}

func (h *PasswordResetHandler) renderInvalidLink(ctx *gin.Context) {
	ctx.HTML(http.StatusBadRequest, "password_reset_confirm.html", gin.H{
		"SiteName":    h.cfg.SiteName,
		"InvalidLink": true,
	})
}

func (h *PasswordResetHandler) renderConfirmError(ctx *gin.Context, u user.User, message string) {
	ctx.HTML(http.StatusBadRequest, "password_reset_confirm.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Email":    u.Email,
		"Error":    message,
	})
}
