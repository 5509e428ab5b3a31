package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OperationKind distinguishes purchases from sales in the ledger.
type OperationKind string

const (
	OperationPurchase OperationKind = "purchase"
	OperationSale     OperationKind = "sale"
)

// ParseOperationKind accepts the two ledger operation kinds.
func ParseOperationKind(s string) (OperationKind, error) {
	switch OperationKind(s) {
	case OperationPurchase, OperationSale:
		return OperationKind(s), nil
	default:
		return "", fmt.Errorf("unknown operation kind %q", s)
	}
}

// Operation is one immutable row of a user's ledger.
type Operation struct {
	ID     int64           `json:"id"`
	Ticker string          `json:"ticker"`
	Amount decimal.Decimal `json:"amount"`
	Date   time.Time       `json:"date"`
	Kind   OperationKind   `json:"kind"`
}

// NetQuantity returns purchases minus sales of ticker dated on or before asOf.
func NetQuantity(ops []Operation, ticker string, asOf time.Time) decimal.Decimal {
	net := decimal.Zero
	for _, op := range ops {
		if op.Ticker != ticker || op.Date.After(asOf) {
			continue
		}
		switch op.Kind {
		case OperationPurchase:
			net = net.Add(op.Amount)
		case OperationSale:
			net = net.Sub(op.Amount)
		}
	}
	return net
}
