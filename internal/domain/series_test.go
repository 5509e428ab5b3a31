package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func point(date string, v int64) PricePoint {
	return PricePoint{Date: MustDate(date), Value: decimal.NewFromInt(v)}
}

func TestAlignForwardFillsWithoutBackfill(t *testing.T) {
	a := AssetPrice("A")
	b := AssetPrice("B")
	f := Align(map[Instrument]Series{
		a: {point("2024-01-01", 10), point("2024-01-03", 12)},
		b: {point("2024-01-02", 5)},
	})

	if len(f.Dates) != 3 {
		t.Fatalf("dates = %d, want 3", len(f.Dates))
	}
	if !f.Dates[0].Equal(MustDate("2024-01-01")) || !f.Dates[2].Equal(MustDate("2024-01-03")) {
		t.Errorf("dates not sorted: %v", f.Dates)
	}

	colA := f.Columns[a]
	if !colA[1].Valid || !colA[1].Decimal.Equal(decimal.NewFromInt(10)) {
		t.Errorf("A on 01-02 = %v, want forward-filled 10", colA[1])
	}
	colB := f.Columns[b]
	if colB[0].Valid {
		t.Errorf("B on 01-01 = %v, want missing", colB[0])
	}
	if !colB[2].Valid || !colB[2].Decimal.Equal(decimal.NewFromInt(5)) {
		t.Errorf("B on 01-03 = %v, want 5", colB[2])
	}
}

func TestFrameSince(t *testing.T) {
	a := AssetPrice("A")
	f := Align(map[Instrument]Series{
		a: {point("2024-01-01", 1), point("2024-01-02", 2), point("2024-01-04", 4)},
	})

	got := f.Since(MustDate("2024-01-03"))
	if len(got.Dates) != 1 || !got.Columns[a][0].Decimal.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Since = %+v", got)
	}
	if all := f.Since(MustDate("2023-01-01")); len(all.Dates) != 3 {
		t.Errorf("Since before start = %d rows, want 3", len(all.Dates))
	}
	if none := f.Since(MustDate("2025-01-01")); len(none.Dates) != 0 {
		t.Errorf("Since after end = %d rows, want 0", len(none.Dates))
	}
}

func TestFrameLatest(t *testing.T) {
	a := AssetPrice("A")
	fx := FxRate("PLN")
	f := Align(map[Instrument]Series{
		a:  {point("2024-01-01", 1), point("2024-01-02", 2)},
		fx: {point("2024-01-01", 4)},
	})

	if v, ok := f.Latest(a); !ok || !v.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Latest(A) = %v, %v", v, ok)
	}
	if v, ok := f.Latest(fx); !ok || !v.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Latest(PLN) = %v, %v, want forward-filled 4", v, ok)
	}
	if _, ok := f.Latest(AssetPrice("X")); ok {
		t.Error("Latest(X) found, want missing")
	}
	if got := f.LatestAll(); len(got) != 2 {
		t.Errorf("LatestAll = %v", got)
	}
}
