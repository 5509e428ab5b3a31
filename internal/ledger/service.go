// Package ledger validates and stores the purchase and sale operations of
// each user.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/ticker"
)

var (
	ErrMissingTicker     = errors.New("ticker is required")
	ErrFutureDate        = errors.New("date is in the future")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrSellBeforeBuy     = errors.New("can't sell before buying")
	ErrOversell          = errors.New("can't sell more than held")
	ErrOperationNotFound = errors.New("operation not found")
	ErrInvalidKind       = errors.New("invalid operation kind")
)

// ValidationError reports which input field was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// TickerResolver validates a ticker against the registry.
type TickerResolver interface {
	Resolve(ctx context.Context, ticker string) (domain.TickerInfo, error)
}

type Service struct {
	repo    Repository
	tickers TickerResolver
	now     func() time.Time
}

// NewService creates a ledger service.
func NewService(repo Repository, tickers TickerResolver) *Service {
	if repo == nil {
		panic("ledger.NewService: repo must not be nil")
	}
	if tickers == nil {
		panic("ledger.NewService: tickers must not be nil")
	}
	return &Service{repo: repo, tickers: tickers, now: time.Now}
}

// List returns the user's operations in ascending id order.
func (s *Service) List(ctx context.Context, userKey string) ([]domain.Operation, error) {
	ops, err := s.repo.List(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []domain.Operation{}
	}
	return ops, nil
}

// Add validates op against the user's ledger and appends it. Nothing is
// stored when validation fails. The returned operation carries its new id.
func (s *Service) Add(ctx context.Context, userKey string, op domain.Operation) (domain.Operation, error) {
	op.Ticker = domain.NormalizeTicker(op.Ticker)
	op.Date = domain.Day(op.Date)

	if op.Ticker == "" {
		return domain.Operation{}, invalid("ticker", ErrMissingTicker)
	}
	if _, err := domain.ParseOperationKind(string(op.Kind)); err != nil {
		return domain.Operation{}, invalid("kind", fmt.Errorf("%w: %w", ErrInvalidKind, err))
	}
	if op.Date.After(domain.Day(s.now().UTC())) {
		return domain.Operation{}, invalid("date", ErrFutureDate)
	}
	if !op.Amount.IsPositive() {
		return domain.Operation{}, invalid("amount", ErrNonPositiveAmount)
	}
	if _, err := s.tickers.Resolve(ctx, op.Ticker); err != nil {
		if errors.Is(err, ticker.ErrUnknownTicker) || errors.Is(err, ticker.ErrCurrencyTicker) || errors.Is(err, ticker.ErrUnsupportedType) {
			return domain.Operation{}, invalid("ticker", err)
		}
		return domain.Operation{}, fmt.Errorf("resolving ticker: %w", err)
	}

	ops, err := s.repo.List(ctx, userKey)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("loading ledger: %w", err)
	}
	if op.Kind == domain.OperationSale {
		if !lo.ContainsBy(ops, func(o domain.Operation) bool {
			return o.Ticker == op.Ticker && o.Kind == domain.OperationPurchase
		}) {
			return domain.Operation{}, invalid("ticker", ErrSellBeforeBuy)
		}
		if date, short := firstShortfall(append(slices.Clone(ops), op), op.Ticker, op.Date); short {
			held := domain.NetQuantity(ops, op.Ticker, date)
			return domain.Operation{}, invalid("amount", fmt.Errorf("%w: %s held on %s", ErrOversell, held, date.Format(domain.DateLayout)))
		}
	}

	id, err := s.repo.Append(ctx, userKey, op)
	if err != nil {
		return domain.Operation{}, err
	}
	op.ID = id
	return op, nil
}

// Delete removes an operation by id. Sale coverage is checked only when
// operations are added, so a purchase can be deleted even if later sales
// relied on it.
func (s *Service) Delete(ctx context.Context, userKey string, id int64) error {
	return s.repo.Delete(ctx, userKey, id)
}

// firstShortfall returns the first date on or after from at which the net
// quantity of ticker in ops is negative.
func firstShortfall(ops []domain.Operation, ticker string, from time.Time) (time.Time, bool) {
	dates := lo.FilterMap(ops, func(o domain.Operation, _ int) (time.Time, bool) {
		return o.Date, o.Ticker == ticker && !o.Date.Before(from)
	})
	dates = append(dates, from)
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	for _, d := range dates {
		if domain.NetQuantity(ops, ticker, d).IsNegative() {
			return d, true
		}
	}
	return time.Time{}, false
}
