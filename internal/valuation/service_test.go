package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mtlprog/investdash/internal/domain"
)

type mockLedger struct {
	ops []domain.Operation
	err error
}

func (m *mockLedger) List(_ context.Context, _ string) ([]domain.Operation, error) {
	return m.ops, m.err
}

type mockTickers struct {
	infos map[string]domain.TickerInfo
}

func (m *mockTickers) Resolve(_ context.Context, ticker string) (domain.TickerInfo, error) {
	info, ok := m.infos[ticker]
	if !ok {
		return domain.TickerInfo{}, errors.New("unknown ticker")
	}
	return info, nil
}

type mockMarket struct {
	series       map[domain.Instrument]domain.Series
	splits       map[string][]domain.SplitEvent
	dropFirst    int
	historyCalls int
	lastEpoch    string
	lastStart    time.Time
}

func (m *mockMarket) Splits(_ context.Context, ticker, _ string) ([]domain.SplitEvent, error) {
	return m.splits[ticker], nil
}

func (m *mockMarket) History(_ context.Context, instruments []domain.Instrument, start time.Time, epoch string) (map[domain.Instrument]domain.Series, error) {
	m.historyCalls++
	m.lastEpoch = epoch
	m.lastStart = start
	out := make(map[domain.Instrument]domain.Series)
	for i, inst := range instruments {
		if m.historyCalls <= m.dropFirst && i == 0 {
			continue
		}
		if s, ok := m.series[inst]; ok {
			out[inst] = s
		}
	}
	return out, nil
}

type mockDemo struct {
	ops []domain.Operation
}

func (m *mockDemo) Generate(_ context.Context, _ string) ([]domain.Operation, error) {
	return m.ops, nil
}

var fixedNow = time.Date(2024, 3, 15, 12, 7, 0, 0, time.UTC)

func aaplScenario() (*mockLedger, *mockTickers, *mockMarket) {
	ledger := &mockLedger{ops: []domain.Operation{
		{ID: 1, Ticker: "AAPL", Amount: d("10"), Date: domain.MustDate("2020-01-01"), Kind: domain.OperationPurchase},
	}}
	tickers := &mockTickers{infos: map[string]domain.TickerInfo{
		"AAPL": {Ticker: "AAPL", Currency: "USD", Type: domain.AssetTypeEquity},
	}}
	market := &mockMarket{series: map[domain.Instrument]domain.Series{
		domain.AssetPrice("AAPL"): {{Date: domain.MustDate("2024-03-14"), Value: d("100")}},
		domain.FxRate("PLN"):      {{Date: domain.MustDate("2024-03-14"), Value: d("4.0")}},
	}}
	return ledger, tickers, market
}

func newTestService(ledger LedgerReader, tickers TickerResolver, market MarketData, demo DemoSource) *Service {
	svc := NewService(ledger, tickers, market, demo, Options{Pivot: "PLN", EpochWindow: 5 * time.Minute})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestDashboardSingleHolding(t *testing.T) {
	ledger, tickers, market := aaplScenario()
	svc := newTestService(ledger, tickers, market, nil)

	got, err := svc.Dashboard(context.Background(), "key", Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(got.Holdings))
	}
	h := got.Holdings[0]
	if !h.ValueUSD.Equal(d("1000")) {
		t.Errorf("expected USD value 1000, got %s", h.ValueUSD)
	}
	if !h.ValuePivot.Equal(d("250")) {
		t.Errorf("expected pivot value 250, got %s", h.ValuePivot)
	}
	if !got.Total.Equal(d("250")) {
		t.Errorf("expected total 250, got %s", got.Total)
	}
	if got.History != nil {
		t.Error("expected no history when not requested")
	}
	if market.lastEpoch != "2024-03-15T12:05:00Z" {
		t.Errorf("unexpected price epoch %q", market.lastEpoch)
	}
	if !market.lastStart.Equal(domain.MustDate("2020-01-01")) {
		t.Errorf("expected history from earliest operation, got %s", market.lastStart)
	}
	if got.MaxMonths != 52 {
		t.Errorf("expected 52 max months, got %d", got.MaxMonths)
	}
}

func TestDashboardAppliesSplits(t *testing.T) {
	ledger, tickers, market := aaplScenario()
	market.splits = map[string][]domain.SplitEvent{
		"AAPL": {{Ticker: "AAPL", Date: domain.MustDate("2020-08-31"), Ratio: d("4")}},
	}
	svc := newTestService(ledger, tickers, market, nil)

	got, err := svc.Dashboard(context.Background(), "key", Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Holdings[0].Quantity.Equal(d("40")) {
		t.Errorf("expected split-adjusted quantity 40, got %s", got.Holdings[0].Quantity)
	}
}

func TestDashboardWithHistory(t *testing.T) {
	ledger, tickers, market := aaplScenario()
	svc := newTestService(ledger, tickers, market, nil)

	got, err := svc.Dashboard(context.Background(), "key", Request{History: true, Granularity: domain.GranularityDay})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.History == nil || len(got.History.Series) != 1 {
		t.Fatalf("expected one history series, got %+v", got.History)
	}
	if v := got.History.Series[0].Values[0]; !v.Valid || !v.Decimal.Equal(d("250")) {
		t.Errorf("expected 250, got %v", v)
	}
}

func TestDashboardRetriesInconsistentData(t *testing.T) {
	ledger, tickers, market := aaplScenario()
	market.dropFirst = 1
	svc := newTestService(ledger, tickers, market, nil)

	if _, err := svc.Dashboard(context.Background(), "key", Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if market.historyCalls != 2 {
		t.Errorf("expected 2 history calls, got %d", market.historyCalls)
	}
}

func TestDashboardSurfacesPersistentInconsistency(t *testing.T) {
	ledger, tickers, market := aaplScenario()
	market.dropFirst = 10
	svc := newTestService(ledger, tickers, market, nil)

	_, err := svc.Dashboard(context.Background(), "key", Request{})
	if !errors.Is(err, ErrDataInconsistency) {
		t.Fatalf("expected ErrDataInconsistency, got %v", err)
	}
	if market.historyCalls != 2 {
		t.Errorf("expected exactly one retry, got %d calls", market.historyCalls)
	}
}

func TestDashboardEmptyLedger(t *testing.T) {
	_, tickers, market := aaplScenario()
	svc := newTestService(&mockLedger{}, tickers, market, nil)

	got, err := svc.Dashboard(context.Background(), "key", Request{History: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Holdings) != 0 || got.Demo {
		t.Errorf("expected empty non-demo dashboard, got %+v", got)
	}
	if market.historyCalls != 0 {
		t.Error("expected no market data calls for an empty ledger")
	}
}

func TestDashboardDemoLedger(t *testing.T) {
	ledger, tickers, market := aaplScenario()
	demo := &mockDemo{ops: ledger.ops}
	svc := newTestService(&mockLedger{}, tickers, market, demo)

	got, err := svc.Dashboard(context.Background(), "key", Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Demo {
		t.Error("expected demo flag")
	}
	if len(got.Holdings) != 1 {
		t.Errorf("expected demo holdings, got %d", len(got.Holdings))
	}
}

func TestDashboardLedgerError(t *testing.T) {
	_, tickers, market := aaplScenario()
	svc := newTestService(&mockLedger{err: errors.New("db down")}, tickers, market, nil)

	if _, err := svc.Dashboard(context.Background(), "key", Request{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewServicePanicsOnNilDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewService(nil, &mockTickers{}, &mockMarket{}, nil, Options{})
}

func TestEpochs(t *testing.T) {
	if got := DayEpoch(fixedNow); got != "2024-03-15" {
		t.Errorf("unexpected day epoch %q", got)
	}
	if WindowEpoch(fixedNow, 5*time.Minute) != WindowEpoch(fixedNow.Add(2*time.Minute), 5*time.Minute) {
		t.Error("expected same window epoch within 5 minutes")
	}
	if WindowEpoch(fixedNow, 5*time.Minute) == WindowEpoch(fixedNow.Add(5*time.Minute), 5*time.Minute) {
		t.Error("expected new window epoch after 5 minutes")
	}
}
