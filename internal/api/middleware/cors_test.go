package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/timmy/gigescrow/internal/config"
)

func TestOriginMatcher(t *testing.T) {
	allow := originMatcher(config.CORSConfig{AllowedOrigins: []string{
		"https://app.gigescrow.xyz/",
		"https://*.preview.gigescrow.xyz",
	}})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.gigescrow.xyz", true},
		{"HTTPS://APP.GIGESCROW.XYZ", true},
		{"https://pr-12.preview.gigescrow.xyz", true},
		{"http://pr-12.preview.gigescrow.xyz", false},
		{"https://preview.gigescrow.xyz", false},
		{"https://evil.test", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, allow(tt.origin))
		})
	}

	assert.True(t, originMatcher(config.CORSConfig{AllowedOrigins: []string{"*"}})("https://x.test"))
}
