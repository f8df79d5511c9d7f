package middleware

import (
	"net/http"
	"strings"

	"dovepay/internal/auth"

	"github.com/gin-gonic/gin"
)

// AdminCookie describes the session cookie set at admin login.
type AdminCookie struct {
	Name   string
	Secure bool
}

// Set writes the token as an HttpOnly, SameSite=Strict cookie.
func (ck AdminCookie) Set(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(ck.Name, token, maxAge, "/", "", ck.Secure, true)
}

// Clear expires the cookie in the browser.
func (ck AdminCookie) Clear(c *gin.Context) {
	ck.Set(c, "", -1)
}

// AdminRequired accepts a Bearer token or the admin cookie. On failure the
// cookie is cleared so the dashboard falls back to the login page.
func AdminRequired(authn *auth.AdminAuthenticator, cookie AdminCookie) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token, _ = c.Cookie(cookie.Name)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		if err := authn.Verify(token); err != nil {
			cookie.Clear(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
