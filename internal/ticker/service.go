// Package ticker maintains the shared registry of ticker currency and asset
// type, filling it lazily from market metadata.
package ticker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/marketdata"
)

var (
	// ErrUnknownTicker indicates the market does not know the ticker.
	ErrUnknownTicker = errors.New("unknown ticker")
	// ErrCurrencyTicker indicates the ticker is a currency pair.
	ErrCurrencyTicker = errors.New("currency tickers cannot be held")
	// ErrUnsupportedType indicates a quote type other than equity, ETF or crypto.
	ErrUnsupportedType = errors.New("unsupported asset type")
)

// MetadataSource reports the currency and quote type of a ticker.
type MetadataSource interface {
	Metadata(ctx context.Context, ticker string) (marketdata.Quote, error)
}

type Service struct {
	repo  Repository
	meta  MetadataSource
	cache *cache.Cache
}

// NewService creates a registry service. Resolved entries are kept in memory for ttl.
func NewService(repo Repository, meta MetadataSource, ttl time.Duration) *Service {
	if repo == nil {
		panic("ticker.NewService: repo must not be nil")
	}
	if meta == nil {
		panic("ticker.NewService: meta must not be nil")
	}
	return &Service{repo: repo, meta: meta, cache: cache.New(ttl, 2*ttl)}
}

// Resolve returns the registry entry of ticker, registering it from market
// metadata on first use.
func (s *Service) Resolve(ctx context.Context, ticker string) (domain.TickerInfo, error) {
	ticker = domain.NormalizeTicker(ticker)
	if cached, found := s.cache.Get(ticker); found {
		return cached.(domain.TickerInfo), nil
	}

	info, ok, err := s.repo.Lookup(ctx, ticker)
	if err != nil {
		return domain.TickerInfo{}, err
	}
	if !ok {
		info, err = s.fromMetadata(ctx, ticker)
		if err != nil {
			return domain.TickerInfo{}, err
		}
		if err := s.repo.Register(ctx, info); err != nil {
			return domain.TickerInfo{}, err
		}
		slog.Info("ticker registered", "ticker", info.Ticker, "currency", info.Currency, "type", info.Type)
	}

	s.cache.Set(ticker, info, cache.DefaultExpiration)
	return info, nil
}

func (s *Service) fromMetadata(ctx context.Context, ticker string) (domain.TickerInfo, error) {
	quote, err := s.meta.Metadata(ctx, ticker)
	if errors.Is(err, marketdata.ErrSymbolNotFound) {
		return domain.TickerInfo{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	if err != nil {
		return domain.TickerInfo{}, fmt.Errorf("fetching metadata: %w", err)
	}
	if quote.Currency == "" {
		return domain.TickerInfo{}, fmt.Errorf("%w: %s has no currency", ErrUnknownTicker, ticker)
	}

	typ, err := domain.ParseQuoteType(quote.QuoteType)
	if errors.Is(err, domain.ErrCurrencyQuote) {
		return domain.TickerInfo{}, fmt.Errorf("%w: %s", ErrCurrencyTicker, ticker)
	}
	if err != nil {
		return domain.TickerInfo{}, fmt.Errorf("%w: %s is %s", ErrUnsupportedType, ticker, quote.QuoteType)
	}

	return domain.TickerInfo{Ticker: ticker, Currency: quote.Currency, Type: typ}, nil
}

// List returns every registered ticker.
func (s *Service) List(ctx context.Context) ([]domain.TickerInfo, error) {
	return s.repo.List(ctx)
}
