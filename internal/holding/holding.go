// Package holding aggregates a ledger into current per-ticker quantities.
package holding

import (
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
)

// Aggregate returns one holding per ticker in the ledger with quantity equal to
// purchases minus sales, joined with the ticker's currency and type. Tickers
// that net to zero are kept. Holdings are ordered by ticker.
func Aggregate(ops []domain.Operation, infos map[string]domain.TickerInfo) []domain.Holding {
	byTicker := lo.GroupBy(ops, func(op domain.Operation) string { return op.Ticker })

	holdings := make([]domain.Holding, 0, len(byTicker))
	for ticker, tops := range byTicker {
		qty := lo.Reduce(tops, func(acc decimal.Decimal, op domain.Operation, _ int) decimal.Decimal {
			if op.Kind == domain.OperationSale {
				return acc.Sub(op.Amount)
			}
			return acc.Add(op.Amount)
		}, decimal.Zero)

		info := infos[ticker]
		holdings = append(holdings, domain.Holding{
			Ticker:   ticker,
			Currency: info.Currency,
			Type:     info.Type,
			Quantity: qty,
		})
	}

	slices.SortFunc(holdings, func(a, b domain.Holding) int {
		switch {
		case a.Ticker < b.Ticker:
			return -1
		case a.Ticker > b.Ticker:
			return 1
		}
		return 0
	})
	return holdings
}

// Currencies returns the distinct currencies of holdings.
func Currencies(holdings []domain.Holding) []string {
	return lo.Uniq(lo.Map(holdings, func(h domain.Holding, _ int) string { return h.Currency }))
}

// TotalsByType sums pivot values per asset type, largest first.
func TotalsByType(holdings []domain.Holding) []domain.TypeTotal {
	grouped := lo.GroupBy(holdings, func(h domain.Holding) domain.AssetType { return h.Type })
	totals := make([]domain.TypeTotal, 0, len(grouped))
	for typ, hs := range grouped {
		totals = append(totals, domain.TypeTotal{
			Type: typ,
			ValuePivot: lo.Reduce(hs, func(acc decimal.Decimal, h domain.Holding, _ int) decimal.Decimal {
				return acc.Add(h.ValuePivot)
			}, decimal.Zero),
		})
	}
	slices.SortFunc(totals, func(a, b domain.TypeTotal) int { return b.ValuePivot.Cmp(a.ValuePivot) })
	return totals
}
