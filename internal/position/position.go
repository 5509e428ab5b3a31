// Package position turns a ticker's ledger into the market value of the
// quantity held on each date of a price index.
package position

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
)

// Reconstruct returns price(t) × net quantity held at t for every date of the
// index. Operations of other tickers are ignored. Missing prices stay missing.
// An operation kind other than purchase or sale is a programmer error and panics.
func Reconstruct(dates []time.Time, prices domain.Column, ticker string, ops []domain.Operation) domain.Column {
	own := make([]domain.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Ticker == ticker {
			own = append(own, op)
		}
	}
	slices.SortStableFunc(own, func(a, b domain.Operation) int { return a.Date.Compare(b.Date) })

	out := make(domain.Column, len(prices))
	for i := range prices {
		if prices[i].Valid {
			out[i] = decimal.NewNullDecimal(decimal.Zero)
		}
	}

	for _, op := range own {
		var sign decimal.Decimal
		switch op.Kind {
		case domain.OperationPurchase:
			sign = decimal.NewFromInt(1)
		case domain.OperationSale:
			sign = decimal.NewFromInt(-1)
		default:
			panic(fmt.Sprintf("position: operation %d of %s has unexpected kind %q", op.ID, op.Ticker, op.Kind))
		}

		delta := op.Amount.Mul(sign)
		start, _ := slices.BinarySearchFunc(dates, op.Date, func(d, t time.Time) int { return d.Compare(t) })
		for i := start; i < len(prices); i++ {
			if !prices[i].Valid {
				continue
			}
			out[i].Decimal = out[i].Decimal.Add(prices[i].Decimal.Mul(delta))
		}
	}

	return out
}

// ReconstructFrame applies Reconstruct to every asset column whose ticker has
// operations. FX columns and assets absent from the ledger pass through unchanged.
func ReconstructFrame(frame domain.Frame, ops []domain.Operation) domain.Frame {
	inLedger := make(map[string]bool, len(ops))
	for _, op := range ops {
		inLedger[op.Ticker] = true
	}

	out := domain.Frame{Dates: frame.Dates, Columns: make(map[domain.Instrument]domain.Column, len(frame.Columns))}
	for inst, col := range frame.Columns {
		if inst.IsFX() || !inLedger[inst.Code] {
			out.Columns[inst] = col
			continue
		}
		out.Columns[inst] = Reconstruct(frame.Dates, col, inst.Code, ops)
	}
	return out
}
