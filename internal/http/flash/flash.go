// Package flash carries one-shot messages between a redirect and the
// next rendered page via a short-lived cookie.
package flash

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
)

const cookieName = "portal_flash"

// Set stores a message to be shown on the next rendered page. The value
// is base64 encoded so punctuation survives the cookie round trip.
func Set(c *gin.Context, message string) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(message))

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, encoded, 60, "/", "", false, true)
}

// Pop returns the pending message, if any, and clears the cookie.
func Pop(c *gin.Context) (string, bool) {
	encoded, err := c.Cookie(cookieName)

	if err != nil || encoded == "" {
		return "", false
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, "", -1, "/", "", false, true)

	decoded, err := base64.RawURLEncoding.DecodeString(encoded)

	if err != nil {
		return "", false
	}

	return string(decoded), true
}
