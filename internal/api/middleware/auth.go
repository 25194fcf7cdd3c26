package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/timmy/gigescrow/internal/config"
	"github.com/timmy/gigescrow/internal/domain"
	"github.com/timmy/gigescrow/internal/logger"
)

const (
	actorKey       = "actor"
	authEnabledKey = "auth_enabled"
	adminHeader    = "X-Admin-Token"
)

// Auth resolves the calling wallet from a bearer token signed with the
// configured HS256 secret. The token subject is the wallet address.
//
// A request without a token passes through unauthenticated; handlers that need
// an actor reject it. A present but invalid token is always 401.
func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(authEnabledKey, cfg.Enabled)

		authz := c.GetHeader("Authorization")
		if authz == "" || !cfg.Enabled {
			c.Next()
			return
		}

		token, ok := bearerToken(authz)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}
		subject, err := ParseToken(token, cfg.JWTSecret)
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Rejected bearer token: client_ip=%s, error=%v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorKey, subject)
		c.Request = c.Request.WithContext(logger.SetActor(c.Request.Context(), subject))
		c.Next()
	}
}

// Actor returns the authenticated wallet for the request. With auth disabled
// it falls back to the first non-empty query parameter among queryKeys.
func Actor(c *gin.Context, queryKeys ...string) string {
	if v, ok := c.Get(actorKey); ok {
		if addr, ok := v.(string); ok && addr != "" {
			return addr
		}
	}
	if AuthEnabled(c) {
		return ""
	}
	for _, key := range queryKeys {
		if addr := domain.NormalizeAddress(c.Query(key)); addr != "" {
			c.Request = c.Request.WithContext(logger.SetActor(c.Request.Context(), addr))
			return addr
		}
	}
	return ""
}

// AuthEnabled reports whether actors come only from verified tokens.
func AuthEnabled(c *gin.Context) bool {
	return c.GetBool(authEnabledKey)
}

// AdminOnly guards operator endpoints with a shared token. An empty token
// leaves them open, which is only sensible in local setups.
func AdminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(adminHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
			return
		}
		c.Next()
	}
}

// IssueToken signs a token whose subject is addr.
// Parameters:
//   - secret: HS256 signing secret.
//   - addr: wallet address to authenticate as.
//   - ttl: token lifetime; zero means no expiry.
// Returns:
//   - string: compact JWT.
//   - error: non-nil when the secret or address is missing.
func IssueToken(secret, addr string, ttl time.Duration) (string, error) {
	addr = domain.NormalizeAddress(addr)
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if addr == "" {
		return "", errors.New("wallet address required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  addr,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a token and returns its normalized subject.
func ParseToken(token, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	subject := domain.NormalizeAddress(claims.Subject)
	if subject == "" {
		return "", errors.New("subject claim required")
	}
	return subject, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
