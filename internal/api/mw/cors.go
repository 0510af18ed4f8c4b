package mw

import (
	"net/http"
	"strings"

	"poolwatch/internal/config"
)

// CORS sets cross-origin headers and answers preflight requests.
type CORS struct {
	Origins []string
	Methods []string
	Headers []string
}

// NewCORS creates the middleware from config.
func NewCORS(cfg config.CORSConfig) *CORS {
	return &CORS{
		Origins: cfg.Origins,
		Methods: cfg.Methods,
		Headers: cfg.Headers,
	}
}

// Handler returns the middleware function.
func (c *CORS) Handler() func(http.Handler) http.Handler {
	methods := joinOrDefault(c.Methods, "GET, POST, PUT, OPTIONS")
	headers := joinOrDefault(c.Headers, "Authorization, Content-Type")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", c.allowOrigin(r.Header.Get("Origin")))
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allowOrigin echoes origin when it is allowed; an empty list allows any origin.
func (c *CORS) allowOrigin(origin string) string {
	if len(c.Origins) == 0 {
		return "*"
	}
	for _, o := range c.Origins {
		if o == "*" {
			return "*"
		}
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return c.Origins[0]
}

func joinOrDefault(v []string, def string) string {
	var parts []string
	for _, s := range v {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, ", ")
}
