// Package main resolves the liquidity pool of a token once and prints
// every factory lookup, the pool reserves and the spot price.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"poolwatch/internal/chain"
	"poolwatch/internal/config"
	"poolwatch/internal/domain"
	"poolwatch/internal/evm"
	"poolwatch/internal/logging"
	"poolwatch/internal/pricing"
	"poolwatch/internal/resolver"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv: %v\n", err)
	}

	configPath := flag.String("config", os.Getenv("CONFIG"), "Path to YAML config file")
	rpcURL := flag.String("rpc-url", "", "Node JSON-RPC URL (overrides node.rpc_url)")
	token := flag.String("token", "", "Token address to resolve (defaults to watch.target)")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *rpcURL != "" {
		cfg.Node.RPCURL = *rpcURL
	}
	if *token == "" {
		*token = cfg.Watch.Target
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: "console"})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rpc, err := evm.NewHTTPClient(ctx, cfg.Node.RPCURL,
		evm.WithTimeout(cfg.Node.Timeout),
		evm.WithMaxRetries(cfg.Node.MaxRetries),
	)
	if err != nil {
		logger.Error().Err(err).Msg("node client")
		os.Exit(1)
	}
	defer rpc.Close()
	source := chain.NewSource(rpc, chain.WithLogger(logger))

	if err := scan(ctx, os.Stdout, source, cfg, *token, logger); err != nil {
		logger.Error().Err(err).Msg("scan failed")
		os.Exit(1)
	}
}

// scan resolves the pool of token and writes a report to w.
func scan(ctx context.Context, w io.Writer, source chain.EventSource, cfg *config.Config, token string, logger zerolog.Logger) error {
	target, err := domain.ParseAddress(token)
	if err != nil {
		return err
	}
	factories, err := cfg.Factories()
	if err != nil {
		return err
	}
	refs, err := domain.ParseAddresses(cfg.Chain.References)
	if err != nil {
		return fmt.Errorf("chain.references: %w", err)
	}

	res, err := resolver.New(source, logger).Resolve(ctx, target, factories, refs)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "token %s\n", target.Hex())
	for _, a := range res.Attempts {
		status := "no pair"
		switch {
		case a.Err != nil:
			status = "error: " + a.Err.Error()
		case a.Pair != (common.Address{}):
			status = "pair " + a.Pair.Hex()
		}
		fmt.Fprintf(w, "  %-16s x %s  %s\n", a.Factory.Name, a.Reference.Hex(), status)
	}

	if err := res.Err(); err != nil {
		fmt.Fprintln(w, "pool not found")
		return err
	}

	pool, err := source.PoolState(ctx, *res.Pool)
	if err != nil {
		return fmt.Errorf("read pool state: %w", err)
	}
	fmt.Fprintf(w, "pool %s\n", pool.Address.Hex())
	fmt.Fprintf(w, "  token0 %s reserve %s\n", pool.Token0.Hex(), pool.Reserve0)
	fmt.Fprintf(w, "  token1 %s reserve %s\n", pool.Token1.Hex(), pool.Reserve1)

	if price, ok := pricing.Price(pool, target); ok {
		fmt.Fprintf(w, "price %s\n", price.String())
	} else {
		fmt.Fprintln(w, "price undefined")
	}
	return nil
}

