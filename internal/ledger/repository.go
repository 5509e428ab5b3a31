package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/investdash/internal/domain"
)

// Repository stores each user's operations under an opaque user key.
type Repository interface {
	// List returns the user's operations in ascending id order.
	List(ctx context.Context, userKey string) ([]domain.Operation, error)
	// Append stores op with id max+1 (1 for an empty ledger) and returns the id.
	Append(ctx context.Context, userKey string, op domain.Operation) (int64, error)
	// Delete removes an operation. It returns ErrOperationNotFound for unknown ids.
	Delete(ctx context.Context, userKey string, id int64) error
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL ledger repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) List(ctx context.Context, userKey string) ([]domain.Operation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, ticker, amount, op_date, kind
		 FROM operations
		 WHERE user_key = $1
		 ORDER BY id`, userKey)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		var op domain.Operation
		if err := rows.Scan(&op.ID, &op.Ticker, &op.Amount, &op.Date, &op.Kind); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.Date = domain.Day(op.Date)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return ops, nil
}

func (r *PgRepository) Append(ctx context.Context, userKey string, op domain.Operation) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO operations (user_key, id, ticker, amount, op_date, kind)
		 SELECT $1, COALESCE(MAX(id), 0) + 1, $2, $3, $4, $5
		 FROM operations WHERE user_key = $1
		 RETURNING id`,
		userKey, op.Ticker, op.Amount, op.Date, string(op.Kind)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("appending operation: %w", err)
	}
	return id, nil
}

func (r *PgRepository) Delete(ctx context.Context, userKey string, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM operations WHERE user_key = $1 AND id = $2`, userKey, id)
	if err != nil {
		return fmt.Errorf("deleting operation %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOperationNotFound
	}
	return nil
}

// SQLiteRepository implements Repository on the development store.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a ledger repository over an opened SQLite store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) List(ctx context.Context, userKey string) ([]domain.Operation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticker, amount, op_date, kind
		 FROM operations
		 WHERE user_key = ?
		 ORDER BY id`, userKey)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		var op domain.Operation
		var date string
		if err := rows.Scan(&op.ID, &op.Ticker, &op.Amount, &date, &op.Kind); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if op.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("operation %d: %w", op.ID, err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operations: %w", err)
	}
	return ops, nil
}

func (r *SQLiteRepository) Append(ctx context.Context, userKey string, op domain.Operation) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO operations (user_key, id, ticker, amount, op_date, kind)
		 SELECT ?1, COALESCE(MAX(id), 0) + 1, ?2, ?3, ?4, ?5
		 FROM operations WHERE user_key = ?1
		 RETURNING id`,
		userKey, op.Ticker, op.Amount.String(), op.Date.Format(domain.DateLayout), string(op.Kind)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("appending operation: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userKey string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM operations WHERE user_key = ? AND id = ?`, userKey, id)
	if err != nil {
		return fmt.Errorf("deleting operation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting operation %d: %w", id, err)
	}
	if n == 0 {
		return ErrOperationNotFound
	}
	return nil
}
