package ticker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/investdash/internal/domain"
)

// Repository is the shared ticker registry.
type Repository interface {
	Lookup(ctx context.Context, ticker string) (domain.TickerInfo, bool, error)
	Register(ctx context.Context, info domain.TickerInfo) error
	List(ctx context.Context) ([]domain.TickerInfo, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL ticker repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Lookup(ctx context.Context, ticker string) (domain.TickerInfo, bool, error) {
	var info domain.TickerInfo
	err := r.pool.QueryRow(ctx,
		`SELECT ticker, currency, asset_type FROM tickers WHERE ticker = $1`, ticker).
		Scan(&info.Ticker, &info.Currency, &info.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TickerInfo{}, false, nil
		}
		return domain.TickerInfo{}, false, fmt.Errorf("looking up ticker %s: %w", ticker, err)
	}
	return info, true, nil
}

// Register inserts info. Entries are never mutated, so an existing ticker is left as is.
func (r *PgRepository) Register(ctx context.Context, info domain.TickerInfo) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tickers (ticker, currency, asset_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (ticker) DO NOTHING`,
		info.Ticker, info.Currency, string(info.Type))
	if err != nil {
		return fmt.Errorf("registering ticker %s: %w", info.Ticker, err)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context) ([]domain.TickerInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT ticker, currency, asset_type FROM tickers ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	defer rows.Close()

	var infos []domain.TickerInfo
	for rows.Next() {
		var info domain.TickerInfo
		if err := rows.Scan(&info.Ticker, &info.Currency, &info.Type); err != nil {
			return nil, fmt.Errorf("scanning ticker: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tickers: %w", err)
	}
	return infos, nil
}

// SQLiteRepository implements Repository on the development store.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a ticker repository over an opened SQLite store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Lookup(ctx context.Context, ticker string) (domain.TickerInfo, bool, error) {
	var info domain.TickerInfo
	err := r.db.QueryRowContext(ctx,
		`SELECT ticker, currency, asset_type FROM tickers WHERE ticker = ?`, ticker).
		Scan(&info.Ticker, &info.Currency, &info.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TickerInfo{}, false, nil
		}
		return domain.TickerInfo{}, false, fmt.Errorf("looking up ticker %s: %w", ticker, err)
	}
	return info, true, nil
}

func (r *SQLiteRepository) Register(ctx context.Context, info domain.TickerInfo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tickers (ticker, currency, asset_type) VALUES (?, ?, ?)`,
		info.Ticker, info.Currency, string(info.Type))
	if err != nil {
		return fmt.Errorf("registering ticker %s: %w", info.Ticker, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]domain.TickerInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ticker, currency, asset_type FROM tickers ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	defer rows.Close()

	var infos []domain.TickerInfo
	for rows.Next() {
		var info domain.TickerInfo
		if err := rows.Scan(&info.Ticker, &info.Currency, &info.Type); err != nil {
			return nil, fmt.Errorf("scanning ticker: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tickers: %w", err)
	}
	return infos, nil
}
