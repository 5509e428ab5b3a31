package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one dated observation.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Series is a sequence of observations in ascending date order. It may have gaps.
type Series []PricePoint

// Column is a series aligned to a Frame's date index. Invalid entries are missing values.
type Column []decimal.NullDecimal

// Frame aligns several series on the union of their dates.
type Frame struct {
	Dates   []time.Time
	Columns map[Instrument]Column
}

// Align builds a Frame from raw series. Gaps are forward-filled from the last
// observation; dates before an instrument's first observation stay missing.
func Align(series map[Instrument]Series) Frame {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, s := range series {
		for _, p := range s {
			d := Day(p.Date)
			if !seen[d] {
				seen[d] = true
				dates = append(dates, d)
			}
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	columns := make(map[Instrument]Column, len(series))
	for inst, s := range series {
		col := make(Column, len(dates))
		for _, p := range s {
			col[index[Day(p.Date)]] = decimal.NewNullDecimal(p.Value)
		}
		var last decimal.NullDecimal
		for i := range col {
			if col[i].Valid {
				last = col[i]
			} else {
				col[i] = last
			}
		}
		columns[inst] = col
	}

	return Frame{Dates: dates, Columns: columns}
}

// Since returns the rows dated on or after from. Columns are sliced, not copied.
func (f Frame) Since(from time.Time) Frame {
	start, _ := slices.BinarySearchFunc(f.Dates, from, func(d, t time.Time) int { return d.Compare(t) })
	out := Frame{Dates: f.Dates[start:], Columns: make(map[Instrument]Column, len(f.Columns))}
	for inst, col := range f.Columns {
		out.Columns[inst] = col[start:]
	}
	return out
}

// Latest returns the last value of the instrument's column. Columns are forward-filled
// on alignment, so this is the latest available observation.
func (f Frame) Latest(inst Instrument) (decimal.Decimal, bool) {
	col, ok := f.Columns[inst]
	if !ok || len(col) == 0 || !col[len(col)-1].Valid {
		return decimal.Zero, false
	}
	return col[len(col)-1].Decimal, true
}

// LatestAll returns Latest for every instrument that has a value.
func (f Frame) LatestAll() map[Instrument]decimal.Decimal {
	out := make(map[Instrument]decimal.Decimal, len(f.Columns))
	for inst := range f.Columns {
		if v, ok := f.Latest(inst); ok {
			out[inst] = v
		}
	}
	return out
}
