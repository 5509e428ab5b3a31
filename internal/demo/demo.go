// Package demo builds a random starter ledger shown to users who have not
// recorded any operations yet.
package demo

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
)

// purchaseDate is the date every demo operation is bought on.
var purchaseDate = domain.MustDate("2020-01-01")

// fallback is used for asset types the registry has no tickers of yet.
var fallback = map[domain.AssetType][]string{
	domain.AssetTypeEquity: {"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "KO", "JNJ"},
	domain.AssetTypeETF:    {"SPY", "QQQ", "VTI", "VEA", "GLD", "TLT"},
	domain.AssetTypeCrypto: {"BTC-USD", "ETH-USD", "SOL-USD"},
}

// TickerLister lists the registered tickers.
type TickerLister interface {
	List(ctx context.Context) ([]domain.TickerInfo, error)
}

type Generator struct {
	tickers TickerLister
}

func NewGenerator(tickers TickerLister) *Generator {
	if tickers == nil {
		panic("demo.NewGenerator: tickers must not be nil")
	}
	return &Generator{tickers: tickers}
}

// Generate returns 3–6 equity purchases of 1–25 units, 3–6 ETF purchases of
// 5–125 units in steps of 5 and 3 crypto purchases of 0.5–3.0 units, all
// dated 2020-01-01. Tickers are drawn with replacement. The result depends
// only on userKey and the registry contents.
func (g *Generator) Generate(ctx context.Context, userKey string) ([]domain.Operation, error) {
	infos, err := g.tickers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tickers: %w", err)
	}
	byType := lo.GroupBy(infos, func(i domain.TickerInfo) domain.AssetType { return i.Type })
	pool := func(t domain.AssetType) []string {
		if registered := byType[t]; len(registered) > 0 {
			return lo.Map(registered, func(i domain.TickerInfo, _ int) string { return i.Ticker })
		}
		return fallback[t]
	}

	rng := rand.New(seed(userKey))
	var ops []domain.Operation
	buy := func(tickers []string, amount decimal.Decimal) {
		ops = append(ops, domain.Operation{
			ID:     int64(len(ops) + 1),
			Ticker: tickers[rng.IntN(len(tickers))],
			Amount: amount,
			Date:   purchaseDate,
			Kind:   domain.OperationPurchase,
		})
	}

	equities := pool(domain.AssetTypeEquity)
	for range 3 + rng.IntN(4) {
		buy(equities, decimal.NewFromInt(int64(1+rng.IntN(25))))
	}
	etfs := pool(domain.AssetTypeETF)
	for range 3 + rng.IntN(4) {
		buy(etfs, decimal.NewFromInt(int64(5*(1+rng.IntN(25)))))
	}
	cryptos := pool(domain.AssetTypeCrypto)
	for range 3 {
		buy(cryptos, decimal.New(int64(5+rng.IntN(26)), -1))
	}
	return ops, nil
}

func seed(userKey string) rand.Source {
	sum := sha256.Sum256([]byte(userKey))
	return rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16]))
}
