package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "session_id"
	SessionMaxAge     = 60 * 60 * 24 * 30 // 30 days in seconds

	ContextKeySessionID = "session_id"
)

// SessionConfig holds the cookie settings for checkout sessions
type SessionConfig struct {
	CookieDomain   string // "" for current domain
	CookiePath     string
	CookieSecure   bool
	CookieSameSite http.SameSite
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CookiePath:     "/",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteLaxMode,
	}
}

// SessionMiddleware makes sure every checkout request carries a session id.
// Checkout state and gateway tokens are keyed by it.
func SessionMiddleware(config SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := getSessionID(c)
		if sessionID == "" {
			sessionID = uuid.New().String()
			setSessionCookie(c, sessionID, config)
		}
		c.Set(ContextKeySessionID, sessionID)
		c.Next()
	}
}

// getSessionID retrieves session ID from cookie
func getSessionID(c *gin.Context) string {
	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || sessionID == "" {
		return ""
	}

	// Validate UUID format for security
	if _, err := uuid.Parse(sessionID); err != nil {
		return ""
	}

	return sessionID
}

func setSessionCookie(c *gin.Context, sessionID string, config SessionConfig) {
	c.SetSameSite(config.CookieSameSite)
	c.SetCookie(
		SessionCookieName,
		sessionID,
		SessionMaxAge,
		config.CookiePath,
		config.CookieDomain,
		config.CookieSecure,
		true, // httpOnly
	)
}

// GetSessionID returns the session id set by SessionMiddleware.
func GetSessionID(c *gin.Context) string {
	return c.GetString(ContextKeySessionID)
}
