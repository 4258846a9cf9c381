// Package stores wires the storage backends selected by configuration.
//
// Routing:
//   - alerts: PostgreSQL
//   - one-shot alerted keys: Redis when configured, otherwise PostgreSQL
//   - candles, backtest results, aggregates: ClickHouse when configured, otherwise PostgreSQL
//
// With UseMemory every store is in-memory and no DSN is needed.
package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/config"
	"pnf-signal-lab/internal/storage"
	chstore "pnf-signal-lab/internal/storage/clickhouse"
	"pnf-signal-lab/internal/storage/memory"
	"pnf-signal-lab/internal/storage/migrations"
	pgstore "pnf-signal-lab/internal/storage/postgres"
	redisstore "pnf-signal-lab/internal/storage/redis"
)

// Set holds all stores.
type Set struct {
	Candles    storage.CandleStore
	Alerts     storage.AlertStore
	Alerted    storage.AlertedStore
	Results    storage.BacktestResultStore
	Aggregates storage.PatternAggregateStore
}

// Options selects backends.
type Options struct {
	UseMemory bool
	Migrate   bool          // apply embedded migrations on connect
	AlertTTL  time.Duration // Redis key TTL, 0 keeps keys forever
	Logger    *zerolog.Logger
}

// Memory returns an in-memory set.
func Memory() *Set {
	return &Set{
		Candles:    memory.NewCandleStore(),
		Alerts:     memory.NewAlertStore(),
		Alerted:    memory.NewAlertedStore(),
		Results:    memory.NewBacktestResultStore(),
		Aggregates: memory.NewPatternAggregateStore(),
	}
}

// Open connects the configured backends. The returned cleanup closes every
// connection that was opened, also on error paths.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Set, func(), error) {
	if opts.UseMemory {
		return Memory(), func() {}, nil
	}
	if cfg.PostgresDSN == "" {
		return nil, nil, errors.New("POSTGRES_DSN is required unless in-memory storage is selected")
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "stores").Logger()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Set, func(), error) {
		cleanup()
		return nil, nil, err
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, pool.Close)
	if opts.Migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fail(fmt.Errorf("postgres migrations: %w", err))
		}
	}

	set := &Set{
		Candles:    pgstore.NewCandleStore(pool),
		Alerts:     pgstore.NewAlertStore(pool),
		Alerted:    pgstore.NewAlertedStore(pool),
		Results:    pgstore.NewBacktestResultStore(pool),
		Aggregates: pgstore.NewPatternAggregateStore(pool),
	}
	log.Info().Msg("postgres connected")

	if cfg.ClickHouseDSN != "" {
		var conn *chstore.Conn
		if opts.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
		}
		if err != nil {
			return fail(fmt.Errorf("clickhouse: %w", err))
		}
		closers = append(closers, func() { conn.Close() })

		set.Candles = chstore.NewCandleStore(conn)
		set.Results = chstore.NewBacktestResultStore(conn)
		set.Aggregates = chstore.NewPatternAggregateStore(conn)
		log.Info().Msg("clickhouse connected")
	}

	if cfg.RedisAddr != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { client.Close() })
		set.Alerted = redisstore.NewAlertedStore(client, redisstore.DefaultPrefix, opts.AlertTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	}

	return set, cleanup, nil
}
