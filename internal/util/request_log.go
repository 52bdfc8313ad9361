package util

import (
	"log/slog"
	"net/http"
	"time"
)

// responseMeter captures what the handler wrote so it can be logged afterwards.
type responseMeter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (m *responseMeter) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(b []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(b)
	m.written += int64(n)
	return n, err
}

func (m *responseMeter) code() int {
	if m.status == 0 {
		return http.StatusOK
	}
	return m.status
}

// WithRequestLog writes one "http_request" record per request through the
// request-scoped logger, so the record carries the request id.
func WithRequestLog(service string, next http.Handler) http.Handler {
	if service == "" {
		service = "funnel"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		meter := &responseMeter{ResponseWriter: w}
		next.ServeHTTP(meter, r)

		status := meter.code()
		LoggerFromContext(r.Context()).LogAttrs(r.Context(), levelForStatus(status), "http_request",
			slog.String("service", service),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", meter.written),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

// Rejected and throttled form posts are worth a look; everything else is routine.
func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status == http.StatusTooManyRequests:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
