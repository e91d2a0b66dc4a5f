package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigins(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{" HTTP://Example.COM ", "", "not a url", "https://chat.example:8443"}, zerolog.Nop())

	assert.False(t, allowAll)
	assert.Equal(t, []string{"http://example.com", "https://chat.example:8443"}, normalized)

	_, allowAll = normalizeOrigins([]string{"*"}, zerolog.Nop())
	assert.True(t, allowAll)
}

func TestOriginPolicy_Allows(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:3000"}, zerolog.Nop())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{name: "exact match", origin: "http://localhost:3000", want: true},
		{name: "case insensitive", origin: "HTTP://LOCALHOST:3000", want: true},
		{name: "other port", origin: "http://localhost:8080", want: false},
		{name: "missing origin", origin: "", want: false},
		{name: "garbage", origin: "::::", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.allows(r))
		})
	}
}

func TestOriginPolicy_AllowAll(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, zerolog.Nop())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, policy.allows(r))

	r.Header.Del("Origin")
	assert.False(t, policy.allows(r))
}
