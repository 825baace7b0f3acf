package models

import "time"

// IntentKind names the dual-copy operation an Intent guards.
type IntentKind string

const (
	IntentAppend      IntentKind = "append"
	IntentWipe        IntentKind = "wipe"
	IntentDeleteOwner IntentKind = "delete-owner"
)

// Intent is written before a sequential two-copy write and cleared once both
// copies agree. Leftover intents are replayed by the reconciler.
type Intent struct {
	ID            string     `json:"id"`
	Kind          IntentKind `json:"kind"`
	OwnerID       string     `json:"ownerId"`
	Destination   string     `json:"destination,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	// TransactionIDs lists the embedded entries a wipe pulled. Replays
	// delete exactly these global rows.
	TransactionIDs []string  `json:"transactionIds,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
