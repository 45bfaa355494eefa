package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"stablevault/native/vault"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed polls a JSON price endpoint and caches the latest quote. The
// endpoint must answer with {"price": "500.25", "timestamp": 1700000000}.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	apiKey   string
	logger   *slog.Logger

	mu    sync.RWMutex
	quote Quote
	fresh freshness
}

// NewHTTPFeed constructs a polling feed. When the client is nil
// http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint, apiKey string, maxAge time.Duration) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{
		client:   client,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		logger:   slog.Default(),
		fresh:    freshness{maxAge: maxAge},
	}
}

// SetLogger overrides the logger used by Run.
func (f *HTTPFeed) SetLogger(logger *slog.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// SetNowFunc overrides the clock used for freshness checks.
func (f *HTTPFeed) SetNowFunc(now func() time.Time) {
	f.mu.Lock()
	f.fresh.nowFn = now
	f.mu.Unlock()
}

// Refresh fetches a new quote from the endpoint and caches it.
func (f *HTTPFeed) Refresh(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("http feed: decode: %w", err)
	}
	price, err := vault.ParseUnits(payload.Price)
	if err != nil || price.IsZero() {
		return Quote{}, fmt.Errorf("http feed: invalid price %q", payload.Price)
	}
	ts := time.Unix(payload.Timestamp, 0)
	if payload.Timestamp <= 0 {
		ts = time.Now().UTC()
	}
	quote := Quote{Price: price, Timestamp: ts, Source: f.endpoint}
	f.mu.Lock()
	f.quote = quote
	f.mu.Unlock()
	return quote.Clone(), nil
}

// Run refreshes the quote every interval until ctx is cancelled. Refresh
// failures are logged and the previous quote is kept.
func (f *HTTPFeed) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if _, err := f.Refresh(ctx); err != nil {
		f.logger.Warn("price refresh failed", "endpoint", f.endpoint, "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.Refresh(ctx); err != nil {
				f.logger.Warn("price refresh failed", "endpoint", f.endpoint, "error", err)
			}
		}
	}
}

// Latest returns the cached quote without freshness checks.
func (f *HTTPFeed) Latest() (Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.quote.Price == nil {
		return Quote{}, ErrNoQuote
	}
	return f.quote.Clone(), nil
}

// Price implements vault.PriceOracle from the cached quote.
func (f *HTTPFeed) Price() (*uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := f.fresh.check(f.quote); err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(f.quote.Price), nil
}
