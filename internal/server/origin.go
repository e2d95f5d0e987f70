package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/gommon/log"
)

// OriginPolicy decides which browser origins may open a WebSocket.
type OriginPolicy struct {
	allowed  map[string]struct{}
	list     []string
	allowAll bool
}

// NewOriginPolicy builds a policy from configured origins. "*" allows any
// origin; invalid entries are logged and ignored.
func NewOriginPolicy(origins []string) *OriginPolicy {
	normalized, allowAll := normalizeOrigins(origins)
	p := &OriginPolicy{
		allowed:  make(map[string]struct{}, len(normalized)),
		list:     normalized,
		allowAll: allowAll,
	}
	for _, origin := range normalized {
		p.allowed[origin] = struct{}{}
	}
	return p
}

// Origins returns the allow-list for CORS configuration.
func (p *OriginPolicy) Origins() []string {
	if p.allowAll {
		return []string{"*"}
	}
	return append([]string(nil), p.list...)
}

// Allowed reports whether origin is on the allow-list.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	normalizedOrigin, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, exists := p.allowed[normalizedOrigin]
	return exists
}

// Check is a websocket.Upgrader CheckOrigin function.
func (p *OriginPolicy) Check(r *http.Request) bool {
	if p.Allowed(r.Header.Get("Origin")) {
		return true
	}

	log.Warnf("Blocked WebSocket connection from disallowed origin: %q", r.Header.Get("Origin"))
	return false
}

func normalizeOrigins(origins []string) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warnf("Ignoring invalid origin in configuration: %q", origin)
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
