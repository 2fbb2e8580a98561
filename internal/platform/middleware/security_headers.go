package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityConfig controls the headers SecurityHeaders writes.
type SecurityConfig struct {
	// HSTSMaxAge is sent as Strict-Transport-Security when positive. Leave it
	// zero for plain-HTTP deployments behind no TLS terminator.
	HSTSMaxAge int
	// PublicPrefixes are GET routes whose bodies hold no customer data and
	// may be cached for PublicMaxAge seconds.
	PublicPrefixes []string
	PublicMaxAge   int
}

// DefaultSecurityConfig caches the service catalog and sends HSTS only when
// the server terminates TLS itself.
func DefaultSecurityConfig(tls bool) SecurityConfig {
	cfg := SecurityConfig{
		PublicPrefixes: []string{"/api/v1/services"},
		PublicMaxAge:   300,
	}
	if tls {
		cfg.HSTSMaxAge = 31536000
	}
	return cfg
}

// SecurityHeaders sets response headers for a JSON API. Everything outside
// PublicPrefixes is marked no-store since bookings carry addresses and
// phone numbers.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	}
	public := fmt.Sprintf("public, max-age=%d", cfg.PublicMaxAge)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if cfg.isPublic(c.Request()) {
				h.Set("Cache-Control", public)
			} else {
				h.Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}

func (cfg SecurityConfig) isPublic(r *http.Request) bool {
	if r.Method != http.MethodGet || cfg.PublicMaxAge <= 0 {
		return false
	}
	for _, p := range cfg.PublicPrefixes {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}
