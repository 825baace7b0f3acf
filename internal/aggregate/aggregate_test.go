package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/fund-ledger/internal/models"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(id, dest, amount, currency string, offset time.Duration) models.Transaction {
	return models.Transaction{
		ID:          id,
		OwnerID:     "owner-1",
		Destination: dest,
		FunderLabel: "Alice",
		Amount:      decimal.RequireFromString(amount),
		Currency:    currency,
		CreatedAt:   base.Add(offset),
	}
}

func requireAmount(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("amount = %s, want %s", got, want)
	}
}

func TestByDestinationKeepsCurrenciesApart(t *testing.T) {
	t.Parallel()

	txs := []models.Transaction{
		tx("1", "Japan", "100", "USD", 0),
		tx("2", "Japan", "50", "EUR", time.Minute),
	}
	totals := ByDestination(txs)

	japan, ok := totals["Japan"]
	if !ok {
		t.Fatalf("expected Japan bucket, got %v", totals)
	}
	if len(japan) != 2 {
		t.Fatalf("expected 2 currency buckets, got %d", len(japan))
	}
	requireAmount(t, japan["USD"], "100")
	requireAmount(t, japan["EUR"], "50")
}

func TestByDestinationSignedSum(t *testing.T) {
	t.Parallel()

	txs := []models.Transaction{
		tx("1", "France", "100", "EUR", 0),
		tx("2", "France", "-30", "EUR", time.Minute),
	}
	totals := ByDestination(txs)
	requireAmount(t, totals["France"]["EUR"], "70")
}

func TestAggregatesAreOrderIndependent(t *testing.T) {
	t.Parallel()

	txs := []models.Transaction{
		tx("1", "Japan", "100.10", "USD", 0),
		tx("2", "Japan", "50", "EUR", time.Minute),
		tx("3", "France", "100", "EUR", 2*time.Minute),
		tx("4", "France", "-30", "EUR", 3*time.Minute),
		tx("5", "Peru", "0.20", "USD", 4*time.Minute),
		tx("6", "Japan", "-0.10", "USD", 5*time.Minute),
	}
	want := ByDestination(txs)
	wantCurrency := ByCurrency(txs)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Transaction(nil), txs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := ByDestination(shuffled)
		for dest, totals := range want {
			for code, amount := range totals {
				if !got[dest][code].Equal(amount) {
					t.Fatalf("shuffle %d: %s/%s = %s, want %s", i, dest, code, got[dest][code], amount)
				}
			}
		}
		gotCurrency := ByCurrency(shuffled)
		for code, amount := range wantCurrency {
			if !gotCurrency[code].Equal(amount) {
				t.Fatalf("shuffle %d: currency %s = %s, want %s", i, code, gotCurrency[code], amount)
			}
		}
	}
	requireAmount(t, want["Japan"]["USD"], "100")
}

func TestByCurrency(t *testing.T) {
	t.Parallel()

	totals := ByCurrency([]models.Transaction{
		tx("1", "Japan", "100", "USD", 0),
		tx("2", "France", "20", "USD", 0),
		tx("3", "France", "50", "EUR", 0),
	})
	requireAmount(t, totals["USD"], "120")
	requireAmount(t, totals["EUR"], "50")
}

func TestLatestCurrency(t *testing.T) {
	t.Parallel()

	latest := LatestCurrency([]models.Transaction{
		tx("1", "Japan", "100", "USD", 2*time.Minute),
		tx("2", "Japan", "50", "EUR", time.Minute),
		tx("3", "France", "10", "EUR", 0),
		tx("4", "France", "10", "GBP", 0),
	})
	if latest["Japan"] != "USD" {
		t.Fatalf("Japan latest = %q, want USD", latest["Japan"])
	}
	// Equal timestamps: the later one in input order wins.
	if latest["France"] != "GBP" {
		t.Fatalf("France latest = %q, want GBP", latest["France"])
	}
}

func TestEmptyInput(t *testing.T) {
	t.Parallel()

	if got := ByDestination(nil); len(got) != 0 {
		t.Fatalf("ByDestination(nil) = %v, want empty", got)
	}
	if got := ByCurrency(nil); len(got) != 0 {
		t.Fatalf("ByCurrency(nil) = %v, want empty", got)
	}
	if got := LatestCurrency(nil); len(got) != 0 {
		t.Fatalf("LatestCurrency(nil) = %v, want empty", got)
	}
	sum := Summarize(nil, SortByAmount)
	if len(sum.Destinations) != 0 || sum.Count != 0 {
		t.Fatalf("Summarize(nil) = %+v, want empty", sum)
	}
}

func TestDestinationsHistoryNewestFirst(t *testing.T) {
	t.Parallel()

	dests := Destinations([]models.Transaction{
		tx("1", "Japan", "100", "USD", 0),
		tx("2", "Japan", "-10", "USD", 2*time.Minute),
		tx("3", "Japan", "5", "EUR", time.Minute),
	})
	if len(dests) != 1 {
		t.Fatalf("expected 1 destination, got %d", len(dests))
	}
	d := dests[0]
	if d.Count != 3 {
		t.Fatalf("count = %d, want 3", d.Count)
	}
	if !d.LastActivity.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("last activity = %v, want %v", d.LastActivity, base.Add(2*time.Minute))
	}
	if d.LatestCurrency != "USD" {
		t.Fatalf("latest currency = %q, want USD", d.LatestCurrency)
	}
	var ids []string
	for _, h := range d.History {
		ids = append(ids, h.ID)
	}
	if len(ids) != 3 || ids[0] != "2" || ids[1] != "3" || ids[2] != "1" {
		t.Fatalf("history order = %v, want [2 3 1]", ids)
	}
}

func TestSortDestinations(t *testing.T) {
	t.Parallel()

	txs := []models.Transaction{
		tx("1", "Japan", "100", "USD", 0),
		tx("2", "France", "300", "EUR", time.Minute),
		tx("3", "Peru", "200", "USD", 2*time.Minute),
		tx("4", "Japan", "5", "USD", 3*time.Minute),
	}

	cases := []struct {
		key  SortKey
		want []string
	}{
		{SortByAmount, []string{"France", "Peru", "Japan"}},
		{SortByRecency, []string{"Japan", "Peru", "France"}},
	}
	for _, tc := range cases {
		dests := Destinations(txs)
		SortDestinations(dests, tc.key)
		for i, name := range tc.want {
			if dests[i].Name != name {
				t.Fatalf("%s order[%d] = %s, want %s", tc.key, i, dests[i].Name, name)
			}
		}
	}
}

func TestSortDestinationsByConvertedTotal(t *testing.T) {
	t.Parallel()

	dests := Destinations([]models.Transaction{
		tx("1", "Japan", "10000", "JPY", 0),
		tx("2", "France", "100", "EUR", 0),
	})
	rates := map[string]decimal.Decimal{
		"JPY": decimal.RequireFromString("0.0067"),
		"EUR": decimal.RequireFromString("1.08"),
	}
	SortDestinationsBy(dests, func(d Destination) decimal.Decimal {
		sum := decimal.Zero
		for code, amount := range d.Totals {
			sum = sum.Add(amount.Mul(rates[code]))
		}
		return sum
	})
	if dests[0].Name != "France" {
		t.Fatalf("first = %s, want France", dests[0].Name)
	}
}

func TestParseSortKey(t *testing.T) {
	t.Parallel()

	cases := map[string]SortKey{
		"":        SortByAmount,
		"amount":  SortByAmount,
		"recency": SortByRecency,
		"date":    SortByRecency,
	}
	for in, want := range cases {
		got, ok := ParseSortKey(in)
		if !ok || got != want {
			t.Fatalf("ParseSortKey(%q) = %q, %v, want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseSortKey("alphabetical"); ok {
		t.Fatal("expected alphabetical to be rejected")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	sum := Summarize([]models.Transaction{
		tx("1", "Japan", "100", "USD", 0),
		tx("2", "Japan", "50", "EUR", time.Minute),
		tx("3", "France", "-30", "EUR", 2*time.Minute),
	}, SortByRecency)
	if sum.Count != 3 {
		t.Fatalf("count = %d, want 3", sum.Count)
	}
	if sum.Destinations[0].Name != "France" {
		t.Fatalf("first = %s, want France", sum.Destinations[0].Name)
	}
	requireAmount(t, sum.ByCurrency["EUR"], "20")
	requireAmount(t, sum.ByCurrency["USD"], "100")
}
