package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/langcen/portal/internal/config"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/http/flash"
	"github.com/langcen/portal/internal/http/middlewares"
)

// PagesHandler renders the public pages and the per-role home pages.
type PagesHandler struct {
	users UserReader
	cfg   config.Config
}

func NewPagesHandler(users UserReader, cfg config.Config) *PagesHandler {
	return &PagesHandler{users: users, cfg: cfg}
}

func (h *PagesHandler) Landing(ctx *gin.Context) {
	msg, _ := flash.Pop(ctx)

	ctx.HTML(http.StatusOK, "landing.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"Flash":    msg,
		"SignedIn": h.signedIn(ctx),
	})
}

func (h *PagesHandler) About(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "about.html", gin.H{
		"SiteName": h.cfg.SiteName,
		"SignedIn": h.signedIn(ctx),
	})
}

func (h *PagesHandler) StudentHome(ctx *gin.Context) {
	h.renderHome(ctx, "student_home.html")
}

func (h *PagesHandler) TeacherHome(ctx *gin.Context) {
	h.renderHome(ctx, "teacher_home.html")
}

func (h *PagesHandler) AdminHome(ctx *gin.Context) {
	h.renderHome(ctx, "admin_home.html")
}

func (h *PagesHandler) renderHome(ctx *gin.Context, template string) {
	msg, _ := flash.Pop(ctx)

	ctx.HTML(http.StatusOK, template, gin.H{
		"SiteName": h.cfg.SiteName,
		"Flash":    msg,
		"User":     h.currentUser(ctx),
		"SignedIn": true,
	})
}

// currentUser resolves the full user record for templates that show
// the person's name. The gate already verified the identity; a lookup
// miss degrades to the email from the token.
func (h *PagesHandler) currentUser(ctx *gin.Context) user.User {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		return user.User{}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		email, _ := middlewares.EmailFromContext(ctx)
		return user.User{ID: id, Email: email}
	}

	return u
}

func (h *PagesHandler) signedIn(ctx *gin.Context) bool {
	_, ok := middlewares.UserIDFromContext(ctx)
	return ok
}
