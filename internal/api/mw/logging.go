// Package mw holds HTTP middleware for the dashboard API.
package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logging writes one access log line per request.
type Logging struct {
	log zerolog.Logger
}

// NewLogging creates the access log middleware.
func NewLogging(log zerolog.Logger) *Logging {
	return &Logging{log: log.With().Str("component", "http").Logger()}
}

// Handler wraps next. The wrapped writer keeps Hijacker support for websocket upgrades.
func (m *Logging) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		ev := m.log.Info()
		if status >= http.StatusInternalServerError {
			ev = m.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", ww.BytesWritten()).
			Int64("dur_ms", time.Since(start).Milliseconds()).
			Str("ip", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http_request")
	})
}
