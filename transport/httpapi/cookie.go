package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

type cookieConfig struct {
	secure bool
	domain string
}

func (cc cookieConfig) set(c *gin.Context, token string, maxAge time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, token, int(maxAge/time.Second), "/", cc.domain, cc.secure, true)
}

func (cc cookieConfig) clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", cc.domain, cc.secure, true)
}

// refreshToken returns the cookie value, or "" when absent.
func refreshToken(c *gin.Context) string {
	v, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return v
}
