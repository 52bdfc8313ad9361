package util

import (
	"net/http"
	"strings"
)

// Responses carry visitor names and emails, so nothing is cacheable.
var apiResponseHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
}

const hstsValue = "max-age=31536000; includeSubDomains"

// WithSecurityHeaders stamps the JSON API headers on every response. HSTS is
// only sent when the request arrived over TLS, directly or via a proxy.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range apiResponseHeaders {
			h.Set(k, v)
		}
		if servedOverTLS(r) {
			h.Set("Strict-Transport-Security", hstsValue)
		}
		next.ServeHTTP(w, r)
	})
}

func servedOverTLS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
