// Package rates converts per-currency totals into a single display currency
// using exchange rates from an ordered chain of providers.
package rates

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultProviderTimeout = 3 * time.Second
	DefaultRefreshInterval = 30 * time.Second

	// maxParallelLookups bounds the provider fan-out of one ConvertTotals.
	maxParallelLookups = 4

	sourceIdentity = "identity"
	sourceFallback = "fallback"
)

// Entry is a cached rate for an ordered (Base, Target) pair.
type Entry struct {
	Base      string    `json:"base"`
	Target    string    `json:"target"`
	Rate      float64   `json:"rate"`
	FetchedAt time.Time `json:"fetchedAt"`
	Source    string    `json:"source"`
	// Approximate is set when every provider failed and Rate is the
	// identity fallback.
	Approximate bool `json:"approximate"`

	checkedAt time.Time
}

type pair struct {
	base, target string
}

// Cache memoizes rates per ordered pair. (A,B) and (B,A) are independent
// entries; neither is ever derived from the other.
type Cache struct {
	providers []Provider
	timeout   time.Duration
	refresh   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	entries map[pair]Entry
	group   singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

func WithProviderTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRefreshInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.refresh = d
		}
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache that tries providers in the given order.
func NewCache(providers []Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		providers: providers,
		timeout:   DefaultProviderTimeout,
		refresh:   DefaultRefreshInterval,
		logger:    slog.Default(),
		now:       time.Now,
		entries:   make(map[pair]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshInterval is the age after which an entry is fetched again.
func (c *Cache) RefreshInterval() time.Duration {
	return c.refresh
}

// Rate returns the multiplier converting base into target. It never fails:
// identical codes yield 1 without network access and a pair no provider can
// price yields 1 as well.
func (c *Cache) Rate(ctx context.Context, base, target string) float64 {
	return c.Lookup(ctx, base, target).Rate
}

// Lookup is Rate with the cache entry metadata.
func (c *Cache) Lookup(ctx context.Context, base, target string) Entry {
	p := normalize(base, target)
	if p.base == p.target {
		return c.identity(p)
	}
	if entry, ok := c.get(p); ok && c.now().Sub(entry.checkedAt) < c.refresh {
		return entry
	}
	return c.fetch(ctx, p)
}

// Refresh fetches the pair again regardless of the cached entry's age.
func (c *Cache) Refresh(ctx context.Context, base, target string) Entry {
	p := normalize(base, target)
	if p.base == p.target {
		return c.identity(p)
	}
	return c.fetch(ctx, p)
}

// Convert returns amount * Rate(base, target).
func (c *Cache) Convert(ctx context.Context, amount decimal.Decimal, base, target string) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(c.Rate(ctx, base, target)))
}

// ConvertTotals converts every currency bucket into target and sums them.
// Rates for distinct buckets are looked up concurrently, at most
// maxParallelLookups at a time. approximate is true when at least one bucket
// used the fallback rate. Once ctx ends no further lookups start; buckets
// left over use whatever the cache holds, or the fallback.
func (c *Cache) ConvertTotals(ctx context.Context, totals map[string]decimal.Decimal, target string) (sum decimal.Decimal, approximate bool) {
	currencies := make([]string, 0, len(totals))
	for code := range totals {
		currencies = append(currencies, code)
	}
	entries := make([]Entry, len(currencies))
	resolved := make([]bool, len(currencies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, code := range currencies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i] = c.Lookup(gctx, code, target)
			resolved[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug("conversion cut short", "target", target, "error", err)
	}

	sum = decimal.Zero
	for i, code := range currencies {
		if !resolved[i] {
			entries[i] = c.cachedOrFallback(normalize(code, target))
		}
		sum = sum.Add(totals[code].Mul(decimal.NewFromFloat(entries[i].Rate)))
		approximate = approximate || entries[i].Approximate
	}
	return sum, approximate
}

// Watch emits the pair's entry immediately and then a freshly fetched one
// every refresh interval until ctx is done.
func (c *Cache) Watch(ctx context.Context, base, target string) <-chan Entry {
	out := make(chan Entry, 1)
	go func() {
		defer close(out)
		out <- c.Lookup(ctx, base, target)

		ticker := time.NewTicker(c.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			entry := c.Refresh(ctx, base, target)
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Entries returns a snapshot of every cached entry.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

func (c *Cache) identity(p pair) Entry {
	return Entry{Base: p.base, Target: p.target, Rate: 1, FetchedAt: c.now(), Source: sourceIdentity}
}

// cachedOrFallback answers without touching a provider and without
// caching anything.
func (c *Cache) cachedOrFallback(p pair) Entry {
	if p.base == p.target {
		return c.identity(p)
	}
	if entry, ok := c.get(p); ok {
		return entry
	}
	return Entry{Base: p.base, Target: p.target, Rate: 1, FetchedAt: c.now(), Source: sourceFallback, Approximate: true}
}

func (c *Cache) get(p pair) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[p]
	return e, ok
}

func (c *Cache) put(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pair{e.Base, e.Target}] = e
}

// fetch queries the providers once per pair no matter how many callers
// are waiting on it.
func (c *Cache) fetch(ctx context.Context, p pair) Entry {
	v, _, _ := c.group.Do(p.base+"->"+p.target, func() (any, error) {
		now := c.now()
		entry, ok := c.query(ctx, p)
		if !ok {
			if stale, had := c.get(p); had && !stale.Approximate {
				// Keep the last real rate rather than degrading to 1.
				stale.checkedAt = now
				c.put(stale)
				return stale, nil
			}
			c.logger.Warn("exchange rate unavailable, using 1", "base", p.base, "target", p.target)
			entry = Entry{Base: p.base, Target: p.target, Rate: 1, Source: sourceFallback, Approximate: true}
		}
		entry.FetchedAt = now
		entry.checkedAt = now
		c.put(entry)
		return entry, nil
	})
	return v.(Entry)
}

// query walks the provider chain. A provider error, timeout or missing rate
// moves on to the next provider without retry.
func (c *Cache) query(ctx context.Context, p pair) (Entry, bool) {
	// Callers leaving early must not cancel a fetch others share.
	base := context.WithoutCancel(ctx)
	for _, provider := range c.providers {
		pctx, cancel := context.WithTimeout(base, c.timeout)
		rate, err := provider.Rate(pctx, p.base, p.target)
		cancel()
		if err != nil {
			c.logger.Warn("exchange rate provider failed", "provider", provider.Name(), "base", p.base, "target", p.target, "error", err)
			continue
		}
		if rate <= 0 {
			c.logger.Warn("exchange rate provider returned non-positive rate", "provider", provider.Name(), "base", p.base, "target", p.target)
			continue
		}
		return Entry{Base: p.base, Target: p.target, Rate: rate, Source: provider.Name()}, true
	}
	return Entry{}, false
}

func normalize(base, target string) pair {
	return pair{
		base:   strings.ToUpper(strings.TrimSpace(base)),
		target: strings.ToUpper(strings.TrimSpace(target)),
	}
}
