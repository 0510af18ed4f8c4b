// Package api serves the dashboard's HTTP surface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"poolwatch/internal/domain"
	"poolwatch/internal/poller"
	"poolwatch/internal/state"
)

// DefaultPageSize is the transfer feed page size.
const DefaultPageSize = 10

// Controller is the poller surface the API drives.
type Controller interface {
	SetTarget(address string, mode domain.WatchMode) error
	Status() poller.Status
}

// Options configures API.
type Options struct {
	PageSize    int
	Decimals    int32 // token decimals used to scale transfer values
	TxURLPrefix string
}

// API implements the dashboard endpoints.
type API struct {
	store   *state.Store
	ctl     Controller
	opts    Options
	log     zerolog.Logger
	started time.Time
}

// New creates the API handlers.
func New(store *state.Store, ctl Controller, opts Options, log zerolog.Logger) *API {
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	return &API{
		store:   store,
		ctl:     ctl,
		opts:    opts,
		log:     log.With().Str("component", "api").Logger(),
		started: time.Now(),
	}
}

// Health answers liveness probes.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status string        `json:"status"`
	Uptime string        `json:"uptime"`
	Poller poller.Status `json:"poller"`
}

// Status returns server and poller status as JSON.
func (a *API) Status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(a.started).Round(time.Second).String(),
		Poller: a.ctl.Status(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.log.Error().Err(err).Msg("encode status")
	}
}

// Snapshot returns the latest snapshot summary.
func (a *API) Snapshot(w http.ResponseWriter, _ *http.Request) {
	a.write(w, http.StatusOK, state.Summarize(a.store.Load()))
}

// Transfers returns one page of transfers, newest first.
func (a *API) Transfers(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.writeError(w, r, http.StatusBadRequest, "bad_request", "page must be a positive integer")
			return
		}
		page = n
	}

	snap := a.store.Load()
	a.write(w, http.StatusOK, pageTransfers(snap.Transfers, page, a.opts.PageSize, a.opts.Decimals, a.opts.TxURLPrefix))
}

// Candles returns candles in ascending bucket order.
func (a *API) Candles(w http.ResponseWriter, _ *http.Request) {
	a.write(w, http.StatusOK, candleRows(a.store.Load().Candles))
}

// History returns the on-chain price history series.
func (a *API) History(w http.ResponseWriter, _ *http.Request) {
	a.write(w, http.StatusOK, historyRows(a.store.Load().History))
}

// Logs returns the operator log.
func (a *API) Logs(w http.ResponseWriter, _ *http.Request) {
	a.write(w, http.StatusOK, logRows(a.store.Load().Log))
}

// TargetRequest is the body of PUT /api/target.
type TargetRequest struct {
	Address string `json:"address"`
	Mode    string `json:"mode"`
}

// SetTarget switches the watched address.
func (a *API) SetTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	mode, err := domain.ParseWatchMode(req.Mode)
	if err == nil {
		err = a.ctl.SetTarget(req.Address, mode)
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case err != nil:
		a.log.Error().Err(err).Msg("set target")
		a.writeError(w, r, http.StatusInternalServerError, "internal", "failed to set target")
		return
	}

	a.write(w, http.StatusAccepted, map[string]string{"target": req.Address, "mode": mode.String()})
}

func (a *API) write(w http.ResponseWriter, status int, body any) {
	if err := JSON(w, status, body, nil); err != nil {
		a.log.Error().Err(err).Msg("write response")
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if err := Error(w, r, status, code, message, nil); err != nil {
		a.log.Error().Err(err).Msg("write error response")
	}
}
