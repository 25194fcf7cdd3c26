package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/config"
)

const (
	corsAllowHeaders  = "Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID, X-Admin-Token"
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsExposeHeaders = "Content-Length, X-Request-ID"
)

// CORS lets the wallet dApp frontends call the API. Entries in
// AllowedOrigins match exactly (case-insensitive) or, written as
// "https://*.example.com", any subdomain.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	allow := originMatcher(cfg)
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case cfg.AllowAllOrigins:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allow(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		default:
			c.Next()
			return
		}
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originMatcher(cfg config.CORSConfig) func(string) bool {
	exact := make(map[string]bool, len(cfg.AllowedOrigins))
	var suffixes []string
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(strings.TrimSuffix(o, "/"))
		switch {
		case o == "*":
			wildcard = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			suffixes = append(suffixes, scheme+"://|"+host)
		default:
			exact[o] = true
		}
	}
	return func(origin string) bool {
		origin = strings.ToLower(origin)
		if wildcard || exact[origin] {
			return true
		}
		for _, s := range suffixes {
			scheme, host, _ := strings.Cut(s, "|")
			if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, host) {
				return true
			}
		}
		return false
	}
}
