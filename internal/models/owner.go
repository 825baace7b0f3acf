package models

import "time"

// Owner is the account record that carries the embedded copy of a ledger.
type Owner struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	FunderUsername     string        `json:"funderUsername,omitempty"`
	Continent          string        `json:"continent,omitempty"`
	FirstLoginComplete bool          `json:"firstLoginComplete"`
	Funds              []Transaction `json:"funds"`
	CreatedAt          time.Time     `json:"createdAt"`
}
