package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/investdash/internal/config"
	"github.com/mtlprog/investdash/internal/database"
	"github.com/mtlprog/investdash/internal/demo"
	"github.com/mtlprog/investdash/internal/identity"
	"github.com/mtlprog/investdash/internal/ledger"
	"github.com/mtlprog/investdash/internal/marketdata"
	"github.com/mtlprog/investdash/internal/snapshot"
	"github.com/mtlprog/investdash/internal/ticker"
	"github.com/mtlprog/investdash/internal/valuation"
)

func migrationsDir() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	return sub, nil
}

// stores holds the repositories of whichever backend is configured.
type stores struct {
	tickers   ticker.Repository
	ledger    ledger.Repository
	snapshots snapshot.Repository
	close     func()
}

func (s stores) Close() { s.close() }

// openStores connects to PostgreSQL when DATABASE_URL is set, otherwise to the
// SQLite file at SQLITE_PATH.
func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.DatabaseURL != "" {
		return openPostgres(ctx, cfg.DatabaseURL)
	}
	return openSQLite(cfg.SQLitePath)
}

func openPostgres(ctx context.Context, url string) (stores, error) {
	pool, err := database.Connect(ctx, url)
	if err != nil {
		return stores{}, fmt.Errorf("connecting to database: %w", err)
	}

	migrations, err := migrationsDir()
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	if _, err := database.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("running migrations: %w", err)
	}

	return pgStores(pool), nil
}

func pgStores(pool *pgxpool.Pool) stores {
	return stores{
		tickers:   ticker.NewPgRepository(pool),
		ledger:    ledger.NewPgRepository(pool),
		snapshots: snapshot.NewPgRepository(pool),
		close:     pool.Close,
	}
}

func openSQLite(path string) (stores, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return stores{}, err
	}
	slog.Info("using SQLite store", "path", path)
	return sqliteStores(db), nil
}

func sqliteStores(db *sql.DB) stores {
	return stores{
		tickers:   ticker.NewSQLiteRepository(db),
		ledger:    ledger.NewSQLiteRepository(db),
		snapshots: snapshot.NewSQLiteRepository(db),
		close: func() {
			if err := db.Close(); err != nil {
				slog.Warn("closing sqlite", "error", err)
			}
		},
	}
}

type services struct {
	keys      *identity.Deriver
	ledger    *ledger.Service
	valuation *valuation.Service
	snapshots *snapshot.Service
}

func newServices(cfg config.Config, st stores) services {
	yahoo := marketdata.NewClient(cfg.YahooURL, cfg.YahooRetryMax, cfg.YahooRetryBaseDelay, cfg.YahooRateLimit)
	market := marketdata.NewProvider(yahoo, cfg.PriceCacheEntries, cfg.SplitCacheEntries)

	tickerSvc := ticker.NewService(st.tickers, yahoo, cfg.TickerCacheTTL)
	ledgerSvc := ledger.NewService(st.ledger, tickerSvc)
	valuationSvc := valuation.NewService(ledgerSvc, tickerSvc, market, demo.NewGenerator(tickerSvc), valuation.Options{
		Pivot:       cfg.PivotCurrency,
		EpochWindow: cfg.PriceEpochWindow,
	})

	return services{
		keys:      identity.NewDeriver(cfg.PassphraseSalt),
		ledger:    ledgerSvc,
		valuation: valuationSvc,
		snapshots: snapshot.NewService(valuationSvc, st.snapshots),
	}
}
