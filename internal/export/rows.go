// Package export writes valuated holdings and their history to spreadsheets:
// an XLSX workbook for download and a Google Sheets document updated after
// each stored snapshot.
package export

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/valuation"
)

// assetTypes fixes the column order of per-type totals.
var assetTypes = []domain.AssetType{domain.AssetTypeEquity, domain.AssetTypeETF, domain.AssetTypeCrypto}

// holdingRows builds the holdings table.
// Columns: Ticker | Type | Currency | Quantity | Price | Value USD | Value <pivot>
func holdingRows(d valuation.Dashboard) [][]any {
	data := make([][]any, 0, len(d.Holdings)+1)
	data = append(data, []any{"Ticker", "Type", "Currency", "Quantity", "Price", "Value USD", "Value " + d.Pivot})
	for _, h := range d.Holdings {
		data = append(data, []any{
			h.Ticker, string(h.Type), h.Currency,
			toFloat(h.Quantity), toFloat(h.Price), toFloat(h.ValueUSD), toFloat(h.ValuePivot),
		})
	}
	return data
}

// totalRows builds the per-type totals table with a grand total last.
func totalRows(d valuation.Dashboard) [][]any {
	data := [][]any{{"Type", "Value " + d.Pivot}}
	for _, t := range d.Totals {
		data = append(data, []any{string(t.Type), toFloat(t.ValuePivot)})
	}
	data = append(data, []any{"TOTAL", toFloat(d.Total)})
	return data
}

// historyRows builds one row per history label with a column per ticker.
// Missing values stay empty.
func historyRows(h valuation.History) [][]any {
	header := make([]any, 0, len(h.Series)+1)
	header = append(header, "Date")
	for _, s := range h.Series {
		header = append(header, s.Ticker)
	}

	data := make([][]any, 0, len(h.Labels)+1)
	data = append(data, header)
	for i, label := range h.Labels {
		row := make([]any, 0, len(h.Series)+1)
		row = append(row, label)
		for _, s := range h.Series {
			row = append(row, nullFloat(s.Values[i]))
		}
		data = append(data, row)
	}
	return data
}

// netWorthHeader and netWorthRow form the append-only NETWORTH log.
// Columns: Date | Total | EQUITY | ETF | CRYPTO
func netWorthHeader(pivot string) []any {
	header := []any{"Date", "Total " + pivot}
	for _, t := range assetTypes {
		header = append(header, string(t))
	}
	return header
}

func netWorthRow(d valuation.Dashboard, at time.Time) []any {
	byType := lo.SliceToMap(d.Totals, func(t domain.TypeTotal) (domain.AssetType, decimal.Decimal) {
		return t.Type, t.ValuePivot
	})
	row := []any{at.UTC().Format(domain.DateLayout), toFloat(d.Total)}
	for _, t := range assetTypes {
		row = append(row, toFloat(byType[t]))
	}
	return row
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func nullFloat(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return toFloat(d.Decimal)
}
