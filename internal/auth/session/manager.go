package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/genpire/genpire/internal/config"
)

const (
	DefaultCookieName = "_sid"

	issuer       = "genpire"
	sessionTTL   = 30 * 24 * time.Hour
	bearerPrefix = "Bearer "
)

var (
	ErrNotConfigured = errors.New("session secret not configured")
	ErrInvalidToken  = errors.New("invalid session token")
)

// Manager verifies the HS256 session tokens minted at login. Tokens arrive as
// the session cookie or an Authorization bearer header.
type Manager struct {
	cookieName string
	secure     bool
	secret     []byte
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		secret:     []byte(cfg.AuthJWTSecret),
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// Issue mints a session token for userID. Used by the login flow upstream and
// by tests.
func (m *Manager) Issue(userID snowflake.ID, now time.Time) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNotConfigured
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a session token and returns the user id.
func (m *Manager) Verify(token string) (snowflake.ID, error) {
	if len(m.secret) == 0 {
		return 0, ErrNotConfigured
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, ErrInvalidToken
	}
	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil || userID == 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// ReadToken pulls the session token from the cookie or bearer header.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(m.cookieName); err == nil && strings.TrimSpace(token) != "" {
		return token, true
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token != "" {
			return token, true
		}
	}
	return "", false
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}
