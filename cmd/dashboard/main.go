// Package main runs the pool dashboard service:
// - Poller (scheduled): pool resolution, transfer polling, candles
// - HTTP API and explorer proxy
// - Websocket live feed
// - Optional snapshot publishing (NATS) and archives (Postgres, ClickHouse)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"poolwatch/internal/api"
	"poolwatch/internal/api/mw"
	"poolwatch/internal/chain"
	"poolwatch/internal/config"
	"poolwatch/internal/domain"
	"poolwatch/internal/evm"
	"poolwatch/internal/hub"
	"poolwatch/internal/logging"
	"poolwatch/internal/poller"
	"poolwatch/internal/proxy"
	"poolwatch/internal/state"
)

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv: %v\n", err)
	}

	configPath := flag.String("config", os.Getenv("CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides api.http.addr)")
	rpcURL := flag.String("rpc-url", "", "Node JSON-RPC URL (overrides node.rpc_url)")
	target := flag.String("target", "", "Initial watch target address (overrides watch.target)")
	mode := flag.String("mode", "", "Watch mode: token or pool (overrides watch.mode)")
	logLevel := flag.String("log-level", "", "Log level (overrides logging.level)")
	useMemory := flag.Bool("use-memory", false, "Archive transfers and candles in memory when no DSN is configured")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *addr, *rpcURL, *target, *mode, *logLevel)

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, *useMemory, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}

// applyFlags overrides config values with non-empty flags.
func applyFlags(cfg *config.Config, addr, rpcURL, target, mode, logLevel string) {
	if addr != "" {
		cfg.API.HTTP.Addr = addr
	}
	if rpcURL != "" {
		cfg.Node.RPCURL = rpcURL
	}
	if target != "" {
		cfg.Watch.Target = target
	}
	if mode != "" {
		cfg.Watch.Mode = mode
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, useMemory bool, logger zerolog.Logger) error {
	pcfg, err := pollerConfig(cfg)
	if err != nil {
		return err
	}
	mode, err := domain.ParseWatchMode(cfg.Watch.Mode)
	if err != nil {
		return err
	}

	rpc, err := evm.NewHTTPClient(ctx, cfg.Node.RPCURL,
		evm.WithTimeout(cfg.Node.Timeout),
		evm.WithMaxRetries(cfg.Node.MaxRetries),
	)
	if err != nil {
		return fmt.Errorf("node client: %w", err)
	}
	defer rpc.Close()
	source := chain.NewSource(rpc, chain.WithLogger(logging.Component(logger, "chain")))
	store := state.NewStore(state.Snapshot{})

	deps, cleanup, err := connectDeps(ctx, cfg, useMemory, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	p := poller.New(pcfg, source, store, logger, poller.WithListeners(deps.listeners...))
	if cfg.Watch.Target != "" {
		if err := p.SetTarget(cfg.Watch.Target, mode); err != nil {
			return fmt.Errorf("set initial target: %w", err)
		}
	} else {
		logger.Warn().Msg("no watch target configured, waiting for PUT /api/target")
	}

	liveFeed := hub.New(hub.Config{
		Interval:     cfg.API.WS.Interval,
		SendQueue:    cfg.API.WS.SendQueue,
		WriteTimeout: cfg.API.WS.WriteTimeout,
	}, store, logger)

	var proxyOpts []proxy.Option
	if deps.redis != nil {
		proxyOpts = append(proxyOpts, proxy.WithCache(deps.redis))
	}
	explorer := proxy.New(proxy.Config{
		BaseURL:  cfg.Explorer.BaseURL,
		Timeout:  cfg.Explorer.Timeout,
		CacheTTL: cfg.Explorer.CacheTTL,
		Prefix:   cfg.Stores.Redis.Prefix,
	}, logger, proxyOpts...)

	handlers := api.New(store, p, api.Options{
		PageSize:    cfg.API.PageSize,
		Decimals:    cfg.Watch.Decimals,
		TxURLPrefix: cfg.Explorer.TxURLPrefix,
	}, logger)

	var corsMW *mw.CORS
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORS(cfg.API.HTTP.CORS)
	}
	router := api.BuildRouter(handlers, api.Surfaces{Transactions: explorer, WS: liveFeed},
		mw.NewLogging(logger), corsMW)

	srv := &http.Server{
		Addr:         cfg.API.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.API.HTTP.ReadTimeout,
		WriteTimeout: cfg.API.HTTP.WriteTimeout,
		IdleTimeout:  cfg.API.HTTP.IdleTimeout,
	}

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)
	go handleSignals(cancel, done, cfg.App.ShutdownTimeout, logger)

	errCh := make(chan error, 3)

	go func() {
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("poller: %w", err)
		}
	}()

	go func() {
		if err := liveFeed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("hub: %w", err)
		}
	}()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	p.Wait()

	return runErr
}

// handleSignals cancels on the first signal and exits on the second or on timeout.
func handleSignals(cancel context.CancelFunc, done <-chan struct{}, timeout time.Duration, logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()
	case <-done:
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing immediate shutdown")
		os.Exit(1)
	case <-time.After(timeout + 5*time.Second):
		logger.Error().Msg("graceful shutdown timed out, forcing exit")
		os.Exit(1)
	case <-done:
	}
}
