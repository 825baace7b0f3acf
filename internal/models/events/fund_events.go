package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicFundRecorded     = "fund.recorded"
	TopicDestinationWiped = "destination.wiped"
	TopicOwnerDeleted     = "owner.deleted"
)

type FundRecorded struct {
	TransactionID string          `json:"transaction_id"`
	OwnerID       string          `json:"owner_id"`
	Destination   string          `json:"destination"`
	FunderLabel   string          `json:"funder_label"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type DestinationWiped struct {
	OwnerID     string    `json:"owner_id"`
	Destination string    `json:"destination"`
	Removed     int       `json:"removed"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type OwnerDeleted struct {
	OwnerID    string    `json:"owner_id"`
	Removed    int       `json:"removed"`
	OccurredAt time.Time `json:"occurred_at"`
}
