package oracle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"stablevault/native/vault"
)

var (
	// ErrUnknownFeed is returned when a reference does not name a registered feed.
	ErrUnknownFeed = errors.New("oracle: unknown feed")
	// ErrNoQuote indicates the feed has not observed a price yet.
	ErrNoQuote = errors.New("oracle: no quote available")
	// ErrStaleQuote indicates the latest quote is older than the freshness window.
	ErrStaleQuote = errors.New("oracle: quote is stale")
)

// Quote captures a collateral price expressed as 18-decimal stable units per
// whole collateral unit, together with the observation time and source.
type Quote struct {
	Price     *uint256.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(uint256.Int).Set(q.Price)
	}
	return clone
}

// Feed is a price source the registry can hand to the vault engine.
type Feed interface {
	vault.PriceOracle
	Latest() (Quote, error)
}

// freshness implements the max-age check shared by all feeds.
type freshness struct {
	maxAge time.Duration
	nowFn  func() time.Time
}

func (f freshness) check(q Quote) error {
	if q.Price == nil || q.Price.IsZero() {
		return ErrNoQuote
	}
	if f.maxAge <= 0 || q.Timestamp.IsZero() {
		return nil
	}
	now := time.Now
	if f.nowFn != nil {
		now = f.nowFn
	}
	if now().Sub(q.Timestamp) > f.maxAge {
		return fmt.Errorf("%w: observed %s", ErrStaleQuote, q.Timestamp.UTC().Format(time.RFC3339))
	}
	return nil
}

// ManualFeed serves prices pushed by an operator.
type ManualFeed struct {
	mu    sync.RWMutex
	quote Quote
	fresh freshness
}

// NewManualFeed constructs an empty manual feed. A zero maxAge disables the
// freshness check.
func NewManualFeed(maxAge time.Duration) *ManualFeed {
	return &ManualFeed{fresh: freshness{maxAge: maxAge}}
}

// SetNowFunc overrides the clock used for freshness checks.
func (m *ManualFeed) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	m.fresh.nowFn = now
	m.mu.Unlock()
}

// SetDecimal records a decimal price such as "500.25".
func (m *ManualFeed) SetDecimal(price string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual feed not configured")
	}
	parsed, err := vault.ParseUnits(price)
	if err != nil {
		return fmt.Errorf("manual feed: invalid price %q: %w", price, err)
	}
	return m.Set(parsed, ts)
}

// Set stores the provided fixed-point price.
func (m *ManualFeed) Set(price *uint256.Int, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual feed not configured")
	}
	if price == nil || price.IsZero() {
		return fmt.Errorf("manual feed: price must be positive")
	}
	m.mu.Lock()
	m.quote = Quote{Price: new(uint256.Int).Set(price), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
	return nil
}

// Latest returns the last stored quote without freshness checks.
func (m *ManualFeed) Latest() (Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.quote.Price == nil {
		return Quote{}, ErrNoQuote
	}
	return m.quote.Clone(), nil
}

// Price implements vault.PriceOracle.
func (m *ManualFeed) Price() (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fresh.check(m.quote); err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(m.quote.Price), nil
}

// Registry resolves oracle references to feeds. References are matched
// case-insensitively.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]Feed
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]Feed)}
}

func normaliseRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// Register adds or replaces the feed under name.
func (r *Registry) Register(name string, feed Feed) error {
	key := normaliseRef(name)
	if key == "" {
		return fmt.Errorf("oracle: feed name required")
	}
	if feed == nil {
		return fmt.Errorf("oracle: feed %q is nil", name)
	}
	r.mu.Lock()
	r.feeds[key] = feed
	r.mu.Unlock()
	return nil
}

// Feed returns the feed registered under ref.
func (r *Registry) Feed(ref string) (Feed, error) {
	r.mu.RLock()
	feed, ok := r.feeds[normaliseRef(ref)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeed, ref)
	}
	return feed, nil
}

// Resolve implements vault.OracleResolver.
func (r *Registry) Resolve(ref string) (vault.PriceOracle, error) {
	feed, err := r.Feed(ref)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// Names lists the registered feed names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.feeds))
	for name := range r.feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
