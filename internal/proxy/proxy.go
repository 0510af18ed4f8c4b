// Package proxy relays explorer transaction queries for an address.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"poolwatch/internal/domain"
	"poolwatch/internal/observability"
)

// FailureMessage is returned to clients when the explorer cannot be reached.
const FailureMessage = "Failed to fetch data from explorer API"

const maxBodyBytes = 8 << 20

// Config configures the explorer proxy.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// Prefix namespaces cache keys.
	Prefix string
}

// Option configures Proxy.
type Option func(*Proxy)

// WithHTTPClient sets the upstream HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.http = c }
}

// WithCache enables the Redis response cache.
func WithCache(rdb redis.UniversalClient) Option {
	return func(p *Proxy) { p.cache = rdb }
}

// Proxy serves GET /api/transactions/{address}.
type Proxy struct {
	cfg   Config
	http  *http.Client
	cache redis.UniversalClient
	log   zerolog.Logger
}

// New creates an explorer proxy.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Proxy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "poolwatch"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &Proxy{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With().Str("component", "proxy").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CacheKey returns the cache key for address.
func (p *Proxy) CacheKey(address string) string {
	return fmt.Sprintf("%s:explorer:%s", p.cfg.Prefix, strings.ToLower(address))
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		observability.RecordProxyRequest("bad_request")
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}
	address := addr.Hex()

	if body, ok := p.cached(r.Context(), address); ok {
		observability.RecordProxyRequest("ok")
		writeBody(w, body)
		return
	}

	body, err := p.Fetch(r.Context(), address)
	if err != nil {
		p.log.Error().Err(err).Str("address", address).Msg("explorer request failed")
		observability.RecordProxyRequest("error")
		writeError(w, http.StatusInternalServerError, FailureMessage)
		return
	}

	p.store(r.Context(), address, body)
	observability.RecordProxyRequest("ok")
	writeBody(w, body)
}

// Fetch queries incoming transactions of address from the explorer.
func (p *Proxy) Fetch(ctx context.Context, address string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/api/v2/addresses/%s/transactions?filter=to", p.cfg.BaseURL, url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: explorer status %d", domain.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}
	return body, nil
}

func (p *Proxy) cached(ctx context.Context, address string) ([]byte, bool) {
	if p.cache == nil || p.cfg.CacheTTL <= 0 {
		return nil, false
	}
	body, err := p.cache.Get(ctx, p.CacheKey(address)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		observability.RecordProxyCache("miss")
		return nil, false
	case err != nil:
		p.log.Warn().Err(err).Msg("cache read failed")
		observability.RecordProxyCache("error")
		return nil, false
	}
	observability.RecordProxyCache("hit")
	return body, true
}

func (p *Proxy) store(ctx context.Context, address string, body []byte) {
	if p.cache == nil || p.cfg.CacheTTL <= 0 {
		return
	}
	if err := p.cache.Set(ctx, p.CacheKey(address), body, p.cfg.CacheTTL).Err(); err != nil {
		p.log.Warn().Err(err).Msg("cache write failed")
		observability.RecordProxyCache("error")
	}
}

func writeBody(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "{\"error\":%q}", msg)
}
