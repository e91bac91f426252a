package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Config protects the status API with a static bearer token. Token is
// compared as-is; TokenHash holds a bcrypt hash of the token instead so the
// secret does not have to live in the config file. Both empty disables auth.
type Config struct {
	Token     string `mapstructure:"token"`
	TokenHash string `mapstructure:"token_hash"`
}

func (c Config) Enabled() bool { return c.Token != "" || c.TokenHash != "" }

// Middleware checks the Authorization header of each request.
type Middleware struct {
	token []byte
	hash  []byte
}

// NewMiddleware validates the hash up front so a typo fails at startup.
func NewMiddleware(c Config) (*Middleware, error) {
	m := &Middleware{}
	if c.TokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.TokenHash)); err != nil {
			return nil, errors.New("token_hash is not a bcrypt hash")
		}
		m.hash = []byte(c.TokenHash)
	}
	if c.Token != "" {
		m.token = []byte(c.Token)
	}
	return m, nil
}

// HashToken returns the bcrypt hash to put in token_hash.
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *Middleware) enabled() bool { return m != nil && (m.token != nil || m.hash != nil) }

// GinAuth returns a Gin middleware function for authentication
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled() {
			c.Next()
			return
		}
		if err := m.authenticate(c.Request); err != nil {
			msg := "Invalid credentials"
			if errors.Is(err, ErrMissingToken) {
				msg = "Authentication required"
			}
			c.Header("WWW-Authenticate", `Bearer realm="nexus"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": msg,
			})
			return
		}
		c.Next()
	}
}

func (m *Middleware) authenticate(r *http.Request) error {
	token, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return ErrMissingToken
	}
	if m.token != nil && subtle.ConstantTimeCompare(m.token, []byte(token)) == 1 {
		return nil
	}
	if m.hash != nil && bcrypt.CompareHashAndPassword(m.hash, []byte(token)) == nil {
		return nil
	}
	return ErrInvalidToken
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
