package domain

import (
	"errors"
	"fmt"
	"strings"
)

// AssetType classifies a ticker.
type AssetType string

const (
	AssetTypeEquity AssetType = "EQUITY"
	AssetTypeETF    AssetType = "ETF"
	AssetTypeCrypto AssetType = "CRYPTO"
)

// ErrCurrencyQuote is returned by ParseQuoteType for currency pairs, which cannot be held.
var ErrCurrencyQuote = errors.New("quote is a currency")

// ParseQuoteType maps a market quote type to an AssetType.
// "CRYPTOCURRENCY" is the market spelling of CRYPTO.
func ParseQuoteType(quoteType string) (AssetType, error) {
	switch strings.ToUpper(quoteType) {
	case "EQUITY":
		return AssetTypeEquity, nil
	case "ETF":
		return AssetTypeETF, nil
	case "CRYPTO", "CRYPTOCURRENCY":
		return AssetTypeCrypto, nil
	case "CURRENCY":
		return "", ErrCurrencyQuote
	default:
		return "", fmt.Errorf("unsupported quote type %q", quoteType)
	}
}

// TickerInfo is the static metadata of a ticker.
type TickerInfo struct {
	Ticker   string    `json:"ticker"`
	Currency string    `json:"currency"`
	Type     AssetType `json:"type"`
}

// NormalizeTicker upper-cases and trims user input.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
