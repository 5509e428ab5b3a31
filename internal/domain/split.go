package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitEvent is a corporate action multiplying the share count of Ticker by Ratio.
// A zero ratio is the feed's way of saying "no split".
type SplitEvent struct {
	Ticker string          `json:"ticker"`
	Date   time.Time       `json:"date"`
	Ratio  decimal.Decimal `json:"ratio"`
}

// IsNoop reports whether applying the event would leave amounts unchanged.
func (e SplitEvent) IsNoop() bool {
	return e.Ratio.IsZero() || e.Ratio.Equal(decimal.NewFromInt(1))
}
