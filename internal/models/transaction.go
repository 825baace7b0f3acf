package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single signed contribution toward a destination.
// Positive amounts are deposits, negative amounts are withdrawals.
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	Destination string          `json:"destination"`
	FunderLabel string          `json:"funderName"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// IsWithdrawal reports whether the transaction reverses funds.
func (t Transaction) IsWithdrawal() bool {
	return t.Amount.IsNegative()
}
