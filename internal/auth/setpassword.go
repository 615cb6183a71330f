package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/langcen/portal/internal/domain/user"
)

var (
	ErrTokenInvalid = errors.New("set-password token invalid")
	ErrTokenExpired = errors.New("set-password token expired")
)

// EncodeUID turns a user ID into the reversible, URL-safe form used in
// set-password links.
func EncodeUID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func DecodeUID(uid string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return string(b), nil
}

// SetPasswordTokens mints the signed, time-limited tokens used in
// invite and password-reset links. A token is bound to the user's ID
// and current password hash, so it stops verifying the moment the
// password changes (one effective use), and it expires after ttl.
type SetPasswordTokens struct {
	secret []byte
	ttl    time.Duration

	// now is swappable so tests can age tokens.
	now func() time.Time
}

func NewSetPasswordTokens(secret string, ttl time.Duration) *SetPasswordTokens {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}

	return &SetPasswordTokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *SetPasswordTokens) Make(u user.User) string {
	ts := t.now().UTC().Unix()

	return strconv.FormatInt(ts, 36) + "-" + t.signature(u, ts)
}

func (t *SetPasswordTokens) Verify(u user.User, token string) error {
	tsPart, sig, ok := strings.Cut(token, "-")

	if !ok || sig == "" {
		return ErrTokenInvalid
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)

	if err != nil {
		return ErrTokenInvalid
	}

	if !hmac.Equal([]byte(sig), []byte(t.signature(u, ts))) {
		return ErrTokenInvalid
	}

	issued := time.Unix(ts, 0)

	if t.now().UTC().Sub(issued) > t.ttl {
		return ErrTokenExpired
	}

	return nil
}

func (t *SetPasswordTokens) signature(u user.User, ts int64) string {
	h := hmac.New(sha256.New, t.secret)

	// Password hash in the payload invalidates outstanding links once
	// the user has set a password.
	h.Write([]byte(u.ID))
	h.Write([]byte("|"))
	h.Write([]byte(u.Email))
	h.Write([]byte("|"))
	h.Write([]byte(u.PasswordHash))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(ts, 10)))

	return hex.EncodeToString(h.Sum(nil))[:40]
}
