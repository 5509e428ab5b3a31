// Package currency converts asset-denominated series into a pivot currency.
//
// The market only quotes currencies against USD, so every conversion goes
// through USD: value_pivot = value × rate(ccy→USD) / rate(pivot→USD).
package currency

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
)

// Instruments returns the FX instruments needed to convert the given currencies
// into pivot, sorted by code. USD is implicit and never requested.
func Instruments(currencies []string, pivot string) []domain.Instrument {
	codes := lo.Uniq(append(slices.Clone(currencies), pivot))
	codes = lo.Without(codes, domain.USD)
	slices.Sort(codes)
	return lo.Map(codes, func(c string, _ int) domain.Instrument { return domain.FxRate(c) })
}

// Rate returns the rate column of currency to USD, or a constant 1 column for USD.
func Rate(columns map[domain.Instrument]domain.Column, currency string, rows int) (domain.Column, error) {
	if currency == domain.USD {
		one := make(domain.Column, rows)
		for i := range one {
			one[i] = decimal.NewNullDecimal(decimal.NewFromInt(1))
		}
		return one, nil
	}
	col, ok := columns[domain.FxRate(currency)]
	if !ok {
		return nil, fmt.Errorf("no %s/USD rate series", currency)
	}
	return col, nil
}

// Convert applies the two-hop conversion row by row. A row is missing when any
// operand is missing or the pivot rate is zero.
func Convert(values, assetRate, pivotRate domain.Column) domain.Column {
	out := make(domain.Column, len(values))
	for i := range values {
		if !values[i].Valid || !assetRate[i].Valid || !pivotRate[i].Valid || pivotRate[i].Decimal.IsZero() {
			continue
		}
		out[i] = decimal.NewNullDecimal(values[i].Decimal.Mul(assetRate[i].Decimal).Div(pivotRate[i].Decimal))
	}
	return out
}

// Normalize converts every asset column into pivot using the FX columns present
// in the same table. currencies maps ticker to its quote currency. FX columns are
// dropped from the result, which is keyed by ticker.
func Normalize(columns map[domain.Instrument]domain.Column, currencies map[string]string, pivot string) (map[string]domain.Column, error) {
	rows := 0
	for _, col := range columns {
		rows = len(col)
		break
	}

	pivotRate, err := Rate(columns, pivot, rows)
	if err != nil {
		return nil, fmt.Errorf("pivot currency: %w", err)
	}

	out := make(map[string]domain.Column, len(columns))
	for inst, col := range columns {
		if inst.IsFX() {
			continue
		}
		ccy, ok := currencies[inst.Code]
		if !ok {
			return nil, fmt.Errorf("no currency known for %s", inst.Code)
		}
		assetRate, err := Rate(columns, ccy, rows)
		if err != nil {
			return nil, fmt.Errorf("converting %s: %w", inst.Code, err)
		}
		out[inst.Code] = Convert(col, assetRate, pivotRate)
	}
	return out, nil
}
