// Package split rewrites ledger amounts so that operations recorded before a
// stock split are expressed in post-split shares.
package split

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/mtlprog/investdash/internal/domain"
)

// Source supplies the split history of a ticker. The epoch is passed through to
// the provider's cache; one epoch per calendar day is enough since a ticker
// splits at most once a day.
type Source interface {
	Splits(ctx context.Context, ticker, epoch string) ([]domain.SplitEvent, error)
}

// Correct returns a copy of ops with amounts multiplied by every later split of
// their ticker. Splits on the operation date apply too. Crypto tickers are not
// looked up. The input slice is left untouched.
func Correct(ctx context.Context, ops []domain.Operation, types map[string]domain.AssetType, source Source, epoch string) ([]domain.Operation, error) {
	out := slices.Clone(ops)

	tickers := lo.Uniq(lo.Map(ops, func(op domain.Operation, _ int) string { return op.Ticker }))
	for _, ticker := range tickers {
		if types[ticker] == domain.AssetTypeCrypto {
			continue
		}

		events, err := source.Splits(ctx, ticker, epoch)
		if err != nil {
			return nil, fmt.Errorf("fetching splits for %s: %w", ticker, err)
		}
		Apply(out, ticker, events)
	}

	return out, nil
}

// Apply multiplies in place the amounts of ticker's operations dated on or
// before each split by its ratio, in chronological order. No-op events are skipped.
func Apply(ops []domain.Operation, ticker string, events []domain.SplitEvent) {
	events = slices.SortedFunc(slices.Values(events), func(a, b domain.SplitEvent) int {
		return a.Date.Compare(b.Date)
	})

	for _, ev := range events {
		if ev.IsNoop() {
			continue
		}
		for i := range ops {
			if ops[i].Ticker == ticker && !ops[i].Date.After(ev.Date) {
				ops[i].Amount = ops[i].Amount.Mul(ev.Ratio)
			}
		}
	}
}
