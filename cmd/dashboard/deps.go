package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"poolwatch/internal/config"
	"poolwatch/internal/domain"
	"poolwatch/internal/logging"
	"poolwatch/internal/poller"
	pubsub "poolwatch/internal/pubsub/nats"
	"poolwatch/internal/state"
	"poolwatch/internal/storage"
	chstore "poolwatch/internal/storage/clickhouse"
	"poolwatch/internal/storage/memory"
	"poolwatch/internal/storage/migrations"
	pgstore "poolwatch/internal/storage/postgres"
	redisstore "poolwatch/internal/storage/redis"
)

// deps holds the optional external connections.
type deps struct {
	listeners []state.Listener
	redis     *goredis.Client
}

// connectDeps opens every configured backend. Unconfigured ones are skipped.
func connectDeps(ctx context.Context, cfg *config.Config, useMemory bool, logger zerolog.Logger) (*deps, func(), error) {
	d := &deps{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*deps, func(), error) {
		cleanup()
		return nil, nil, err
	}

	var (
		transfers storage.TransferArchive
		candles   storage.CandleArchive
	)

	if dsn := cfg.Stores.Postgres.DSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return fail(fmt.Errorf("connect to postgres: %w", err))
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fail(err)
		}
		transfers = pgstore.NewTransferArchive(pool)
		logger.Info().Msg("postgres transfer archive enabled")
	} else if useMemory {
		transfers = memory.NewTransferArchive()
	}

	if dsn := cfg.Stores.ClickHouse.DSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return fail(fmt.Errorf("connect to clickhouse: %w", err))
		}
		closers = append(closers, func() { _ = conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return fail(err)
		}
		candles = chstore.NewCandleArchive(conn)
		logger.Info().Msg("clickhouse candle archive enabled")
	} else if useMemory {
		candles = memory.NewCandleArchive()
	}

	if transfers != nil || candles != nil {
		d.listeners = append(d.listeners, storage.NewArchiver(transfers, candles, cfg.Poller.BucketWidth, logger))
	}

	if cfg.PubSub.NATS.URL != "" {
		pub, err := pubsub.Connect(&cfg.PubSub.NATS, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Error().Err(err).Msg("close nats")
			}
		})
		d.listeners = append(d.listeners, pub)
	}

	if cfg.Stores.Redis.Addr != "" {
		rdb, err := redisstore.New(ctx, cfg.Stores.Redis)
		if err != nil {
			return fail(fmt.Errorf("connect to redis: %w", err))
		}
		closers = append(closers, func() { _ = rdb.Close() })
		d.redis = rdb
		proxyLog := logging.Component(logger, "proxy")
		proxyLog.Info().Str("addr", cfg.Stores.Redis.Addr).Msg("explorer cache enabled")
	}

	return d, cleanup, nil
}

// pollerConfig maps the file configuration to poller parameters.
func pollerConfig(cfg *config.Config) (poller.Config, error) {
	factories, err := cfg.Factories()
	if err != nil {
		return poller.Config{}, err
	}
	refs, err := domain.ParseAddresses(cfg.Chain.References)
	if err != nil {
		return poller.Config{}, fmt.Errorf("chain.references: %w", err)
	}

	pc := poller.Config{
		Interval:       cfg.Poller.Interval,
		ResolveEvery:   cfg.Poller.ResolveEvery,
		LookbackBlocks: cfg.Chain.LookbackBlocks,
		MaxBlockRange:  cfg.Chain.MaxBlockRange,
		BucketWidth:    cfg.Poller.BucketWidth,
		BufferCapacity: cfg.Poller.BufferCapacity,
		Decimals:       cfg.Watch.Decimals,
		Factories:      factories,
		References:     refs,
	}
	if cfg.Chain.HistoryContract != "" {
		addr, err := domain.ParseAddress(cfg.Chain.HistoryContract)
		if err != nil {
			return poller.Config{}, fmt.Errorf("chain.history_contract: %w", err)
		}
		pc.HistoryContract = &addr
	}
	return pc, nil
}
