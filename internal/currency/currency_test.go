package currency

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
)

func column(values ...string) domain.Column {
	out := make(domain.Column, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		out[i] = decimal.NewNullDecimal(decimal.RequireFromString(v))
	}
	return out
}

func equalColumn(t *testing.T, name string, got domain.Column, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len = %d, want %d", name, len(got), len(want))
	}
	for i, w := range want {
		if w == "" {
			if got[i].Valid {
				t.Errorf("%s row %d = %s, want missing", name, i, got[i].Decimal)
			}
			continue
		}
		if !got[i].Valid || !got[i].Decimal.Equal(decimal.RequireFromString(w)) {
			t.Errorf("%s row %d = %s (valid=%v), want %s", name, i, got[i].Decimal, got[i].Valid, w)
		}
	}
}

func TestInstrumentsSkipsUSDAndAddsPivot(t *testing.T) {
	got := Instruments([]string{"USD", "EUR", "EUR", "GBP"}, "PLN")
	want := []domain.Instrument{domain.FxRate("EUR"), domain.FxRate("GBP"), domain.FxRate("PLN")}
	if len(got) != len(want) {
		t.Fatalf("Instruments() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Instruments()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestInstrumentsUSDPivot(t *testing.T) {
	if got := Instruments([]string{"USD"}, "USD"); len(got) != 0 {
		t.Errorf("Instruments() = %v, want none", got)
	}
}

func TestNormalizeUSDToUSDIsIdentity(t *testing.T) {
	columns := map[domain.Instrument]domain.Column{
		domain.AssetPrice("AAPL"): column("100", "250.5", ""),
	}
	got, err := Normalize(columns, map[string]string{"AAPL": "USD"}, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalColumn(t, "AAPL", got["AAPL"], "100", "250.5", "")
}

func TestNormalizeTwoHop(t *testing.T) {
	columns := map[domain.Instrument]domain.Column{
		domain.AssetPrice("AAPL"):   column("1000", "1000"),
		domain.AssetPrice("SAP.DE"): column("100", "100"),
		domain.FxRate("EUR"):        column("1.2", "1.1"),
		domain.FxRate("PLN"):        column("4", "5"),
	}
	currencies := map[string]string{"AAPL": "USD", "SAP.DE": "EUR"}

	got, err := Normalize(columns, currencies, "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d columns, want 2 (FX excluded)", len(got))
	}
	equalColumn(t, "AAPL", got["AAPL"], "250", "200")
	equalColumn(t, "SAP.DE", got["SAP.DE"], "30", "22")
}

func TestNormalizeMissingRateRow(t *testing.T) {
	columns := map[domain.Instrument]domain.Column{
		domain.AssetPrice("X"): column("10", "10"),
		domain.FxRate("PLN"):   column("", "2"),
	}
	got, err := Normalize(columns, map[string]string{"X": "USD"}, "PLN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalColumn(t, "X", got["X"], "", "5")
}

func TestNormalizeMissingFXSeries(t *testing.T) {
	columns := map[domain.Instrument]domain.Column{
		domain.AssetPrice("SAP.DE"): column("1"),
		domain.FxRate("PLN"):        column("4"),
	}
	if _, err := Normalize(columns, map[string]string{"SAP.DE": "EUR"}, "PLN"); err == nil {
		t.Fatal("expected error for missing EUR rate")
	}
}

func TestNormalizeUnknownCurrency(t *testing.T) {
	columns := map[domain.Instrument]domain.Column{domain.AssetPrice("X"): column("1")}
	if _, err := Normalize(columns, map[string]string{}, "USD"); err == nil {
		t.Fatal("expected error for ticker without currency")
	}
}
