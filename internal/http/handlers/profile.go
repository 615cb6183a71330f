package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/profile"
	"github.com/langcen/portal/internal/http/flash"
	"github.com/langcen/portal/internal/http/middlewares"
	"github.com/langcen/portal/internal/repo/postgres"
)

type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (profile.Profile, error)
}

// ProfileHandler renders the student profile page.
type ProfileHandler struct {
	users    UserReader
	profiles ProfileReader
	cfg      config.Config
}

func NewProfileHandler(users UserReader, profiles ProfileReader, cfg config.Config) *ProfileHandler {
	return &ProfileHandler{users: users, profiles: profiles, cfg: cfg}
}

func (h *ProfileHandler) Show(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		// the role gate redirects anonymous users before this runs
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		RespondInternal(ctx, "Could not load profile")
		return
	}

	p, err := h.profiles.GetByUserID(cctx, id)

	// Accounts that predate automatic profile creation have no row;
	// the page still renders with the account details.
	if err != nil && !errors.Is(err, postgres.ErrProfileNotFound) {
		RespondInternal(ctx, "Could not load profile")
		return
	}

	msg, _ := flash.Pop(ctx)

	ctx.HTML(http.StatusOK, "profile.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Flash":    msg,
		"User":     u,
		"Profile":  p,
		"SignedIn": true,
	})
}
