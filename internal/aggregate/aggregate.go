// Package aggregate folds a flat transaction list into per-destination and
// per-currency totals. Currency buckets are never merged; conversion happens
// in package rates.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/fund-ledger/internal/models"
)

// Totals maps a currency code to a signed sum.
type Totals map[string]decimal.Decimal

// Loose adds every bucket as if they shared a currency. The result is only
// meaningful for ordering when no conversion is available.
func (t Totals) Loose() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t {
		sum = sum.Add(v)
	}
	return sum
}

// Destination is the derived summary of one destination's transactions.
type Destination struct {
	Name           string               `json:"destination"`
	Totals         Totals               `json:"totals"`
	Count          int                  `json:"count"`
	LastActivity   time.Time            `json:"lastActivity"`
	LatestCurrency string               `json:"latestCurrency"`
	History        []models.Transaction `json:"history"`
}

// ByDestination returns destination -> currency -> signed total.
func ByDestination(txs []models.Transaction) map[string]Totals {
	totals := make(map[string]Totals)
	for _, tx := range txs {
		bucket, ok := totals[tx.Destination]
		if !ok {
			bucket = make(Totals)
			totals[tx.Destination] = bucket
		}
		bucket[tx.Currency] = bucket[tx.Currency].Add(tx.Amount)
	}
	return totals
}

// ByCurrency returns currency -> signed total across every destination.
func ByCurrency(txs []models.Transaction) Totals {
	totals := make(Totals)
	for _, tx := range txs {
		totals[tx.Currency] = totals[tx.Currency].Add(tx.Amount)
	}
	return totals
}

// LatestCurrency returns, per destination, the currency of the transaction
// with the greatest CreatedAt. Ties go to the later one in input order.
func LatestCurrency(txs []models.Transaction) map[string]string {
	latest := make(map[string]string)
	seen := make(map[string]time.Time)
	for _, tx := range txs {
		at, ok := seen[tx.Destination]
		if ok && tx.CreatedAt.Before(at) {
			continue
		}
		seen[tx.Destination] = tx.CreatedAt
		latest[tx.Destination] = tx.Currency
	}
	return latest
}

// Destinations builds one Destination per distinct destination, each with
// its history newest first. The result is ordered by name.
func Destinations(txs []models.Transaction) []Destination {
	totals := ByDestination(txs)
	latest := LatestCurrency(txs)

	byName := make(map[string]*Destination, len(totals))
	for name, t := range totals {
		byName[name] = &Destination{Name: name, Totals: t, LatestCurrency: latest[name]}
	}
	for _, tx := range txs {
		d := byName[tx.Destination]
		d.Count++
		d.History = append(d.History, tx)
		if tx.CreatedAt.After(d.LastActivity) {
			d.LastActivity = tx.CreatedAt
		}
	}

	out := make([]Destination, 0, len(byName))
	for _, d := range byName {
		d.History = History(d.History)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns a copy of txs ordered newest first. Equal timestamps keep
// their input order.
func History(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// SortKey selects the destination ordering.
type SortKey string

const (
	SortByAmount  SortKey = "amount"
	SortByRecency SortKey = "recency"
)

// ParseSortKey accepts "amount", "recency" and the legacy "date".
func ParseSortKey(s string) (SortKey, bool) {
	switch s {
	case "", string(SortByAmount):
		return SortByAmount, true
	case string(SortByRecency), "date":
		return SortByRecency, true
	}
	return "", false
}

// SortDestinations orders aggregates in place. SortByAmount uses the loose
// cross-currency sum (see Totals.Loose), descending; SortByRecency uses
// LastActivity, descending. Ties fall back to name.
func SortDestinations(aggs []Destination, key SortKey) {
	if key == SortByRecency {
		sort.SliceStable(aggs, func(i, j int) bool {
			if !aggs[i].LastActivity.Equal(aggs[j].LastActivity) {
				return aggs[i].LastActivity.After(aggs[j].LastActivity)
			}
			return aggs[i].Name < aggs[j].Name
		})
		return
	}
	SortDestinationsBy(aggs, func(d Destination) decimal.Decimal { return d.Totals.Loose() })
}

// SortDestinationsBy orders aggregates by a caller supplied total,
// descending. Used with converted totals when a display currency is known.
func SortDestinationsBy(aggs []Destination, total func(Destination) decimal.Decimal) {
	keys := make(map[string]decimal.Decimal, len(aggs))
	for _, d := range aggs {
		keys[d.Name] = total(d)
	}
	sort.SliceStable(aggs, func(i, j int) bool {
		a, b := keys[aggs[i].Name], keys[aggs[j].Name]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return aggs[i].Name < aggs[j].Name
	})
}

// Summary is the read model returned to owners.
type Summary struct {
	Destinations []Destination `json:"destinations"`
	ByCurrency   Totals        `json:"byCurrency"`
	Count        int           `json:"count"`
}

// Summarize builds the full read model with destinations ordered by key.
func Summarize(txs []models.Transaction, key SortKey) Summary {
	dests := Destinations(txs)
	SortDestinations(dests, key)
	return Summary{
		Destinations: dests,
		ByCurrency:   ByCurrency(txs),
		Count:        len(txs),
	}
}
