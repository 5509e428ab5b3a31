package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/investdash/internal/domain"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// defaultListLimit caps List when no positive limit is given.
const defaultListLimit = 30

// Snapshot is one stored daily net-worth valuation of a user.
type Snapshot struct {
	ID           int             `json:"id"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, userKey string, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, userKey string) (*Snapshot, error)
	GetByDate(ctx context.Context, userKey string, date time.Time) (*Snapshot, error)
	List(ctx context.Context, userKey string, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Save(ctx context.Context, userKey string, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO networth_snapshots (user_key, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (user_key, snapshot_date)
		 DO UPDATE SET data = $3::jsonb`,
		userKey, date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, userKey string) (*Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx,
		`SELECT id, snapshot_date, data, created_at
		 FROM networth_snapshots
		 WHERE user_key = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, userKey).Scan(&s.ID, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) GetByDate(ctx context.Context, userKey string, date time.Time) (*Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx,
		`SELECT id, snapshot_date, data, created_at
		 FROM networth_snapshots
		 WHERE user_key = $1 AND snapshot_date = $2`, userKey, date).Scan(&s.ID, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) List(ctx context.Context, userKey string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, snapshot_date, data, created_at
		 FROM networth_snapshots
		 WHERE user_key = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, userKey, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.SnapshotDate, &s.Data, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// SQLiteRepository implements Repository on the development store.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a snapshot repository over an opened SQLite store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// sqliteTimestamp is the layout of CURRENT_TIMESTAMP.
const sqliteTimestamp = "2006-01-02 15:04:05"

func (r *SQLiteRepository) Save(ctx context.Context, userKey string, date time.Time, data json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO networth_snapshots (user_key, snapshot_date, data)
		 VALUES (?1, ?2, ?3)
		 ON CONFLICT (user_key, snapshot_date)
		 DO UPDATE SET data = excluded.data`,
		userKey, date.Format(domain.DateLayout), string(data))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetLatest(ctx context.Context, userKey string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, snapshot_date, data, created_at
		 FROM networth_snapshots
		 WHERE user_key = ?
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, userKey)
	s, err := scanSQLite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) GetByDate(ctx context.Context, userKey string, date time.Time) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, snapshot_date, data, created_at
		 FROM networth_snapshots
		 WHERE user_key = ? AND snapshot_date = ?`, userKey, date.Format(domain.DateLayout))
	s, err := scanSQLite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context, userKey string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, snapshot_date, data, created_at
		 FROM networth_snapshots
		 WHERE user_key = ?
		 ORDER BY snapshot_date DESC
		 LIMIT ?`, userKey, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSQLite(row interface{ Scan(dest ...any) error }) (*Snapshot, error) {
	var s Snapshot
	var date, data, created string
	if err := row.Scan(&s.ID, &date, &data, &created); err != nil {
		return nil, err
	}
	d, err := domain.ParseDate(date)
	if err != nil {
		return nil, err
	}
	s.SnapshotDate = d
	s.Data = json.RawMessage(data)
	if t, err := time.Parse(sqliteTimestamp, created); err == nil {
		s.CreatedAt = t
	}
	return &s, nil
}
