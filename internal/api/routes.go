package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"poolwatch/internal/api/mw"
	"poolwatch/internal/observability"
)

// Surfaces are the handlers mounted next to the API.
type Surfaces struct {
	// Transactions serves GET /api/transactions/{address}.
	Transactions http.Handler
	// WS serves GET /ws.
	WS http.Handler
}

// BuildRouter wires every endpoint. Nil middleware or surfaces are skipped.
func BuildRouter(api *API, s Surfaces, logMW *mw.Logging, corsMW *mw.CORS) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if logMW != nil {
		r.Use(logMW.Handler)
	}
	if corsMW != nil {
		r.Use(corsMW.Handler())
	}

	r.Get("/health", api.Health)
	r.Get("/status", api.Status)
	r.Mount("/metrics", observability.Handler())

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/snapshot", api.Snapshot)
		ar.Get("/transfers", api.Transfers)
		ar.Get("/candles", api.Candles)
		ar.Get("/history", api.History)
		ar.Get("/logs", api.Logs)
		ar.Put("/target", api.SetTarget)
		if s.Transactions != nil {
			ar.Method(http.MethodGet, "/transactions/{address}", s.Transactions)
		}
	})

	if s.WS != nil {
		r.Method(http.MethodGet, "/ws", s.WS)
	}
	return r
}
