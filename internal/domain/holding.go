package domain

import "github.com/shopspring/decimal"

// presentationPrecision is the number of decimals holdings are rounded to for display.
const presentationPrecision = 2

// Holding is the derived position of one ticker. It is never persisted.
type Holding struct {
	Ticker     string          `json:"ticker"`
	Currency   string          `json:"currency"`
	Type       AssetType       `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ValueUSD   decimal.Decimal `json:"valueUsd"`
	ValuePivot decimal.Decimal `json:"valuePivot"`
}

// Rounded returns a copy with numeric fields rounded for presentation.
func (h Holding) Rounded() Holding {
	h.Quantity = h.Quantity.Round(presentationPrecision)
	h.Price = h.Price.Round(presentationPrecision)
	h.ValueUSD = h.ValueUSD.Round(presentationPrecision)
	h.ValuePivot = h.ValuePivot.Round(presentationPrecision)
	return h
}

// TypeTotal is the pivot value of all holdings of one asset type.
type TypeTotal struct {
	Type       AssetType       `json:"type"`
	ValuePivot decimal.Decimal `json:"valuePivot"`
}
