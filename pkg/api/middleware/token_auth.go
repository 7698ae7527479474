package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// TokenAuthMiddleware guards routes with a shared bearer token. The configured
// value may be the plaintext token or a bcrypt hash of it (prefixes $2a$, $2b$,
// $2y$); callers always present the plaintext in the Authorization header.
// An empty configured token disables authentication.
func TokenAuthMiddleware(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := bearerToken(c)
		if presented == "" {
			logger.Debug("missing bearer token")
			c.Header("WWW-Authenticate", `Bearer realm="Restricted"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if err := verifyToken(token, presented); err != nil {
			logger.Debug("token mismatch", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

// bearerToken extracts the token from the Authorization header.
// Returns empty string when the header is missing or not Bearer-shaped
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// verifyToken compares the presented token against the configured value
func verifyToken(stored, presented string) error {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented))
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1 {
		return nil
	}
	return errors.New("token mismatch")
}
