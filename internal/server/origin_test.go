package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := NewOriginPolicy([]string{"https://Chat.Example.com", " http://localhost:3000 ", "not a url", ""})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "https://chat.example.com", true},
		{"case insensitive", "HTTPS://CHAT.EXAMPLE.COM", true},
		{"with port", "http://localhost:3000", true},
		{"wrong port", "http://localhost:3001", false},
		{"wrong scheme", "http://chat.example.com", false},
		{"missing", "", false},
		{"garbage", "::::", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Allowed(tt.origin))
		})
	}

	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:3000"}, policy.Origins())
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := NewOriginPolicy([]string{"*"})

	r := httptest.NewRequest("GET", "/api/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, policy.Check(r))

	r.Header.Del("Origin")
	assert.False(t, policy.Check(r))
	assert.Equal(t, []string{"*"}, policy.Origins())
}

func TestFrameLimiter(t *testing.T) {
	limiter := newFrameLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow(), "frame %d", i+1)
	}
	assert.False(t, limiter.allow())

	fallback := newFrameLimiter(0, 0)
	assert.True(t, fallback.allow())
}
