package mail

import (
	"strings"

	"github.com/langcen/portal/internal/auth"
	"github.com/langcen/portal/internal/domain/user"
	"github.com/langcen/portal/internal/routing"
)

// LinkBuilder assembles absolute set-password links from the site
// domain and scheme. The domain comes from configuration, never from
// request headers.
type LinkBuilder struct {
	Domain   string
	UseHTTPS bool
}

func (b LinkBuilder) Scheme() string {
	if b.UseHTTPS {
		return "https"
	}
	return "http"
}

func (b LinkBuilder) SetPasswordURL(u user.User, tokens *auth.SetPasswordTokens) string {
	uid := auth.EncodeUID(u.ID)
	token := tokens.Make(u)

	return b.Scheme() + "://" + b.Domain + routing.SetPasswordPath(uid, token)
}

// WelcomeMessage is the seeder's welcome email: account details, the
// temporary password when one was set, and the set-password link.
func WelcomeMessage(to, tempPassword, resetURL, from string) Message {
	shown := tempPassword
	if shown == "" {
		shown = "(not set)"
	}

	body := strings.Join([]string{
		"Hello,",
		"",
		"Your account has been created.",
		"Email: " + to,
		"Temporary password: " + shown,
		"",
		"For security, please set a new password now:",
		resetURL,
		"",
		"If you weren't expecting this, you can ignore this message.",
	}, "\n")

	return Message{
		To:      to,
		Subject: "Welcome to your new account",
		Body:    body,
		From:    from,
		Kind:    "welcome",
	}
}

// InviteMessage is the set-password invite used by the register flow
// and the send_set_password command.
func InviteMessage(siteName, to, resetURL, from string) Message {
	body := strings.Join([]string{
		"You've been invited to join " + siteName + ".",
		"Set your password: " + resetURL,
		"",
	}, "\n")

	return Message{
		To:      to,
		Subject: "Set your password",
		Body:    body,
		From:    from,
		Kind:    "invite",
	}
}

// ResetMessage is the self-service password reset email.
func ResetMessage(siteName, to, resetURL, from string) Message {
	body := strings.Join([]string{
		"You're receiving this email because you requested a password reset",
		"for your account at " + siteName + ".",
		"",
		"Please go to the following page and choose a new password:",
		resetURL,
		"",
		"If you didn't request this, you can ignore this message.",
	}, "\n")

	return Message{
		To:      to,
		Subject: "Password reset on " + siteName,
		Body:    body,
		From:    from,
		Kind:    "reset",
	}
}
