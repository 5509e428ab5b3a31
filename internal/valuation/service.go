package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/currency"
	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/holding"
	"github.com/mtlprog/investdash/internal/split"
)

// ErrDataInconsistency means the market data provider returned a different set
// of instruments than requested.
var ErrDataInconsistency = errors.New("market data inconsistent with request")

// LedgerReader lists a user's operations.
type LedgerReader interface {
	List(ctx context.Context, userKey string) ([]domain.Operation, error)
}

// TickerResolver returns the metadata of a ticker.
type TickerResolver interface {
	Resolve(ctx context.Context, ticker string) (domain.TickerInfo, error)
}

// MarketData supplies daily close series and split history.
type MarketData interface {
	split.Source
	History(ctx context.Context, instruments []domain.Instrument, start time.Time, epoch string) (map[domain.Instrument]domain.Series, error)
}

// DemoSource generates a stand-in ledger for users without operations.
type DemoSource interface {
	Generate(ctx context.Context, userKey string) ([]domain.Operation, error)
}

// Options configures a Service.
type Options struct {
	Pivot       string
	EpochWindow time.Duration
}

// Request selects what a dashboard computes.
type Request struct {
	History     bool
	Months      int
	Granularity domain.Granularity
}

// Dashboard is the valuated view of a user's ledger.
type Dashboard struct {
	Pivot     string             `json:"pivot"`
	Demo      bool               `json:"demo"`
	Since     *time.Time         `json:"since,omitempty"`
	MaxMonths int                `json:"maxMonths"`
	Holdings  []domain.Holding   `json:"holdings"`
	Totals    []domain.TypeTotal `json:"totals"`
	Total     decimal.Decimal    `json:"total"`
	History   *History           `json:"history,omitempty"`
}

type Service struct {
	ledger  LedgerReader
	tickers TickerResolver
	market  MarketData
	demo    DemoSource
	opts    Options
	now     func() time.Time
}

// NewService builds a Service. demo may be nil, in which case empty ledgers
// produce empty dashboards.
func NewService(ledger LedgerReader, tickers TickerResolver, market MarketData, demo DemoSource, opts Options) *Service {
	if ledger == nil {
		panic("valuation.NewService: ledger must not be nil")
	}
	if tickers == nil {
		panic("valuation.NewService: tickers must not be nil")
	}
	if market == nil {
		panic("valuation.NewService: market must not be nil")
	}
	if opts.Pivot == "" {
		opts.Pivot = domain.USD
	}
	if opts.EpochWindow <= 0 {
		opts.EpochWindow = 5 * time.Minute
	}
	return &Service{ledger: ledger, tickers: tickers, market: market, demo: demo, opts: opts, now: time.Now}
}

// Pivot returns the currency dashboards are valued in.
func (s *Service) Pivot() string { return s.opts.Pivot }

// Dashboard valuates the user's ledger. A market data inconsistency is retried
// once before being returned.
func (s *Service) Dashboard(ctx context.Context, userKey string, req Request) (Dashboard, error) {
	d, err := s.dashboard(ctx, userKey, req)
	if errors.Is(err, ErrDataInconsistency) {
		slog.Warn("market data inconsistent, retrying", "error", err)
		d, err = s.dashboard(ctx, userKey, req)
	}
	return d, err
}

func (s *Service) dashboard(ctx context.Context, userKey string, req Request) (Dashboard, error) {
	now := s.now().UTC()
	out := Dashboard{Pivot: s.opts.Pivot, Holdings: []domain.Holding{}, Totals: []domain.TypeTotal{}}

	ops, err := s.ledger.List(ctx, userKey)
	if err != nil {
		return Dashboard{}, fmt.Errorf("listing operations: %w", err)
	}
	if len(ops) == 0 && s.demo != nil {
		ops, err = s.demo.Generate(ctx, userKey)
		if err != nil {
			return Dashboard{}, fmt.Errorf("generating demo ledger: %w", err)
		}
		out.Demo = true
	}
	if len(ops) == 0 {
		return out, nil
	}

	infos := make(map[string]domain.TickerInfo)
	types := make(map[string]domain.AssetType)
	for _, op := range ops {
		if _, ok := infos[op.Ticker]; ok {
			continue
		}
		info, err := s.tickers.Resolve(ctx, op.Ticker)
		if err != nil {
			return Dashboard{}, fmt.Errorf("resolving %s: %w", op.Ticker, err)
		}
		infos[op.Ticker] = info
		types[op.Ticker] = info.Type
	}

	corrected, err := split.Correct(ctx, ops, types, s.market, DayEpoch(now))
	if err != nil {
		return Dashboard{}, fmt.Errorf("correcting splits: %w", err)
	}

	holdings := holding.Aggregate(corrected, infos)
	instruments := lo.Map(holdings, func(h domain.Holding, _ int) domain.Instrument { return domain.AssetPrice(h.Ticker) })
	instruments = append(instruments, currency.Instruments(holding.Currencies(holdings), s.opts.Pivot)...)

	earliest := lo.MinBy(corrected, func(a, b domain.Operation) bool { return a.Date.Before(b.Date) }).Date
	series, err := s.market.History(ctx, instruments, earliest, WindowEpoch(now, s.opts.EpochWindow))
	if err != nil {
		return Dashboard{}, fmt.Errorf("fetching history: %w", err)
	}
	if missing, extra := lo.Difference(instruments, lo.Keys(series)); len(missing) > 0 || len(extra) > 0 {
		return Dashboard{}, fmt.Errorf("%w: missing %v, unexpected %v", ErrDataInconsistency, missing, extra)
	}

	frame := domain.Align(series)
	valued, err := ValuateNow(holdings, frame.LatestAll(), s.opts.Pivot)
	if err != nil {
		return Dashboard{}, fmt.Errorf("valuating holdings: %w", err)
	}

	out.Since = &earliest
	out.MaxMonths = monthsBetween(earliest, now) + 2
	out.Holdings = valued
	out.Totals = holding.TotalsByType(valued)
	out.Total = lo.Reduce(valued, func(acc decimal.Decimal, h domain.Holding, _ int) decimal.Decimal {
		return acc.Add(h.ValuePivot)
	}, decimal.Zero)

	if req.History {
		hist, err := ValuateHistory(frame, corrected, infos, valued, s.opts.Pivot, HistoryOptions{
			Months:      req.Months,
			Granularity: req.Granularity,
			AsOf:        now,
		})
		if err != nil {
			return Dashboard{}, fmt.Errorf("valuating history: %w", err)
		}
		out.History = &hist
	}
	return out, nil
}

// DayEpoch changes once per calendar day.
func DayEpoch(t time.Time) string {
	return t.UTC().Format(domain.DateLayout)
}

// WindowEpoch changes once per window.
func WindowEpoch(t time.Time, window time.Duration) string {
	return t.UTC().Truncate(window).Format(time.RFC3339)
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	return max(months, 0)
}
