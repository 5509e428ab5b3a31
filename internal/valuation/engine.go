package valuation

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/currency"
	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/position"
	"github.com/mtlprog/investdash/internal/resample"
)

// weeksPerMonth approximates a calendar month when trimming the history window.
const weeksPerMonth = 4.345

// HistoryOptions controls the shape of a historical net-worth series.
type HistoryOptions struct {
	// Months keeps only the trailing window before AsOf. Zero keeps everything.
	Months      int
	Granularity domain.Granularity
	AsOf        time.Time
}

// HistorySeries is the pivot value of one ticker over the history labels.
type HistorySeries struct {
	Ticker string        `json:"ticker"`
	Values domain.Column `json:"values"`
}

// History is a per-ticker net-worth series in the pivot currency. Series are
// ordered by ascending current value so stacked charts keep a stable layering.
type History struct {
	Pivot  string          `json:"pivot"`
	Labels []string        `json:"labels"`
	Series []HistorySeries `json:"series"`
}

// ValuateNow prices holdings with the latest available values:
// value_usd = rate(ccy→USD) × quantity × price and value_pivot = value_usd / rate(pivot→USD).
// The result is sorted by type then pivot value, both descending, and rounded to
// two decimals.
func ValuateNow(holdings []domain.Holding, latest map[domain.Instrument]decimal.Decimal, pivot string) ([]domain.Holding, error) {
	pivotRate, err := latestRate(latest, pivot)
	if err != nil {
		return nil, fmt.Errorf("pivot rate: %w", err)
	}
	if pivotRate.IsZero() {
		return nil, fmt.Errorf("pivot rate for %s is zero", pivot)
	}

	valued := make([]domain.Holding, 0, len(holdings))
	for _, h := range holdings {
		price, ok := latest[domain.AssetPrice(h.Ticker)]
		if !ok {
			slog.Warn("no price for holding, valuing at zero", "ticker", h.Ticker)
			price = decimal.Zero
		}
		rate, err := latestRate(latest, h.Currency)
		if err != nil {
			return nil, fmt.Errorf("valuing %s: %w", h.Ticker, err)
		}

		h.Price = price
		h.ValueUSD = rate.Mul(h.Quantity).Mul(price)
		h.ValuePivot = h.ValueUSD.Div(pivotRate)
		valued = append(valued, h)
	}

	slices.SortStableFunc(valued, func(a, b domain.Holding) int {
		if c := cmp.Compare(b.Type, a.Type); c != 0 {
			return c
		}
		return b.ValuePivot.Cmp(a.ValuePivot)
	})

	for i := range valued {
		valued[i] = valued[i].Rounded()
	}
	return valued, nil
}

func latestRate(latest map[domain.Instrument]decimal.Decimal, ccy string) (decimal.Decimal, error) {
	if ccy == domain.USD {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := latest[domain.FxRate(ccy)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no %s/USD rate", ccy)
	}
	return rate, nil
}

// ValuateHistory reconstructs held value per date, resamples it, converts it to
// pivot and drops the FX columns. valued supplies the current pivot values used
// to order the output series.
func ValuateHistory(frame domain.Frame, ops []domain.Operation, infos map[string]domain.TickerInfo, valued []domain.Holding, pivot string, opts HistoryOptions) (History, error) {
	if opts.Months > 0 {
		frame = frame.Since(WindowStart(opts.AsOf, opts.Months))
	}

	reconstructed := position.ReconstructFrame(frame, ops)
	table := resample.Resample(reconstructed.Dates, reconstructed.Columns, opts.Granularity)

	currencies := make(map[string]string, len(infos))
	for ticker, info := range infos {
		currencies[ticker] = info.Currency
	}
	converted, err := currency.Normalize(table.Columns, currencies, pivot)
	if err != nil {
		return History{}, fmt.Errorf("normalizing history: %w", err)
	}

	order := slices.Clone(valued)
	slices.SortStableFunc(order, func(a, b domain.Holding) int {
		if c := a.ValuePivot.Cmp(b.ValuePivot); c != 0 {
			return c
		}
		return cmp.Compare(a.Ticker, b.Ticker)
	})

	history := History{Pivot: pivot, Labels: table.Labels, Series: make([]HistorySeries, 0, len(converted))}
	for _, h := range order {
		col, ok := converted[h.Ticker]
		if !ok {
			continue
		}
		history.Series = append(history.Series, HistorySeries{Ticker: h.Ticker, Values: col})
	}
	return history, nil
}

// WindowStart returns the first day of a trailing window of months calendar
// months, approximated as months × 4.345 weeks.
func WindowStart(asOf time.Time, months int) time.Time {
	window := time.Duration(float64(months) * weeksPerMonth * 7 * 24 * float64(time.Hour))
	return domain.Day(domain.Day(asOf).Add(-window))
}
