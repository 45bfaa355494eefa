// Package vaultd assembles the vault engine, its persistence and the HTTP
// surface into a runnable daemon.
package vaultd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stablevault/config"
	"stablevault/core/events"
	"stablevault/core/state"
	"stablevault/crypto"
	"stablevault/native/oracle"
	"stablevault/native/vault"
	"stablevault/observability"
	"stablevault/services/vaultd/eventlog"
	"stablevault/services/vaultd/server"
	"stablevault/storage"
)

const (
	gaugeInterval   = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// PauseFlag is a PauseView toggled by the operator.
type PauseFlag struct {
	paused atomic.Bool
}

// IsPaused implements common.PauseView.
func (p *PauseFlag) IsPaused(module string) bool {
	return module == vault.ModuleName && p.paused.Load()
}

// Set toggles the flag.
func (p *PauseFlag) Set(paused bool) { p.paused.Store(paused) }

type polledFeed struct {
	name     string
	feed     *oracle.HTTPFeed
	interval time.Duration
}

// Node owns every long-lived component of the daemon.
type Node struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      storage.Database
	state   *state.Manager
	engine  *vault.Engine
	oracles *oracle.Registry
	polled  []polledFeed
	archive *eventlog.Archive
	auth    *server.Authenticator
	access  vault.AccessControl
	pauses  *PauseFlag
	server  *server.Server
}

// New wires a node from cfg. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("vaultd: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	governor, err := cfg.GovernorAddress()
	if err != nil {
		return nil, err
	}
	custody, err := cfg.CustodyAddress()
	if err != nil {
		return nil, err
	}
	params, err := cfg.VaultParams()
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:    cfg,
		logger: logger,
		access: vault.NewStaticGovernor(governor),
		pauses: &PauseFlag{},
	}
	n.pauses.Set(cfg.Paused)

	n.db, err = storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	n.state = state.NewManager(n.db)

	if n.oracles, n.polled, err = buildOracles(cfg.Oracles, logger); err != nil {
		n.Close()
		return nil, err
	}

	emitters := events.Fanout{observability.Events(), logEmitter{logger: logger}}
	if cfg.EventArchive != "" {
		n.archive, err = eventlog.Open(cfg.EventArchive)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.archive.SetLogger(logger)
		emitters = append(emitters, n.archive)
	}

	assets := vault.Assets{Stable: cfg.Assets.Stable, Collateral: cfg.Assets.Collateral}
	n.engine = vault.NewEngine(custody, assets)
	n.engine.SetStateAndLedger(n.state)
	n.engine.SetOracles(n.oracles)
	n.engine.SetAccessControl(n.access)
	n.engine.SetPauses(n.pauses)
	n.engine.SetEmitter(emitters)
	if err := n.engine.SetDefaultParams(params); err != nil {
		n.Close()
		return nil, fmt.Errorf("default params: %w", err)
	}

	if err := n.seedAllocations(); err != nil {
		n.Close()
		return nil, err
	}

	n.auth = server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	srvCfg := server.Config{
		Engine:      n.engine,
		Feeds:       n.oracles,
		Access:      n.access,
		Auth:        n.auth,
		RateLimit:   cfg.RateLimit.RequestsPerSecond,
		Burst:       cfg.RateLimit.Burst,
		ServiceName: "vaultd",
	}
	if n.archive != nil {
		srvCfg.Events = n.archive
	}
	n.server = server.New(srvCfg)
	return n, nil
}

func buildOracles(feeds []config.Oracle, logger *slog.Logger) (*oracle.Registry, []polledFeed, error) {
	registry := oracle.NewRegistry()
	var polled []polledFeed
	client := &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	for _, fc := range feeds {
		maxAge, err := fc.MaxAgeDuration()
		if err != nil {
			return nil, nil, fmt.Errorf("oracle %s: %w", fc.Name, err)
		}
		switch fc.Type {
		case config.OracleHTTP:
			interval, err := fc.PollIntervalDuration()
			if err != nil {
				return nil, nil, fmt.Errorf("oracle %s: %w", fc.Name, err)
			}
			feed := oracle.NewHTTPFeed(client, fc.Endpoint, fc.APIKey, maxAge)
			feed.SetLogger(logger.With(slog.String("component", "oracle"), slog.String("feed", fc.Name)))
			if err := registry.Register(fc.Name, feed); err != nil {
				return nil, nil, err
			}
			polled = append(polled, polledFeed{name: fc.Name, feed: feed, interval: interval})
		default:
			feed := oracle.NewManualFeed(maxAge)
			if fc.Price != "" {
				// Seeded prices carry no timestamp and so never go stale.
				if err := feed.SetDecimal(fc.Price, time.Time{}); err != nil {
					return nil, nil, fmt.Errorf("oracle %s: %w", fc.Name, err)
				}
			}
			if err := registry.Register(fc.Name, feed); err != nil {
				return nil, nil, err
			}
		}
	}
	return registry, polled, nil
}

// seedAllocations credits the configured genesis balances once, while both
// assets still have zero supply.
func (n *Node) seedAllocations() error {
	if len(n.cfg.Allocations) == 0 {
		return nil
	}
	for _, asset := range []string{n.cfg.Assets.Stable, n.cfg.Assets.Collateral} {
		supply, err := n.state.TokenSupply(asset)
		if err != nil {
			return fmt.Errorf("seed allocations: %w", err)
		}
		if !supply.IsZero() {
			return nil
		}
	}
	snap := n.state.Snapshot()
	for _, alloc := range n.cfg.Allocations {
		account, err := crypto.DecodeAddress(alloc.Account)
		if err != nil {
			n.state.RevertToSnapshot(snap)
			return fmt.Errorf("seed allocations: %w", err)
		}
		amount, err := vault.ParseUnits(alloc.Amount)
		if err != nil {
			n.state.RevertToSnapshot(snap)
			return fmt.Errorf("seed allocations: %w", err)
		}
		if err := n.state.Mint(alloc.Asset, account, amount); err != nil {
			n.state.RevertToSnapshot(snap)
			return fmt.Errorf("seed allocations: %w", err)
		}
	}
	if err := n.state.Commit(); err != nil {
		return fmt.Errorf("seed allocations: %w", err)
	}
	n.logger.Info("seeded genesis allocations", slog.Int("count", len(n.cfg.Allocations)))
	return nil
}

// Engine exposes the vault engine.
func (n *Node) Engine() *vault.Engine { return n.engine }

// State exposes the state manager backing the engine.
func (n *Node) State() *state.Manager { return n.state }

// Authenticator exposes the token verifier, mainly for issuing dev tokens.
func (n *Node) Authenticator() *server.Authenticator { return n.auth }

// Pauses exposes the module pause flag.
func (n *Node) Pauses() *PauseFlag { return n.pauses }

// Handler returns the HTTP handler.
func (n *Node) Handler() http.Handler { return n.server.Handler() }

// Run serves HTTP on the configured address until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.ListenAddress, err)
	}
	return n.Serve(ctx, listener)
}

// Serve runs the background loops and the HTTP server on listener.
func (n *Node) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, p := range n.polled {
		wg.Add(1)
		go func(p polledFeed) {
			defer wg.Done()
			p.feed.Run(ctx, p.interval)
		}(p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		n.runGauges(ctx)
	}()

	httpServer := &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		n.logger.Info("vaultd listening", slog.String("address", listener.Addr().String()))
		serverErr <- httpServer.Serve(listener)
	}()

	var result error
	select {
	case <-ctx.Done():
		n.logger.Info("shutdown signal received")
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			n.logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("serve http: %w", err)
		}
	}
	cancel()
	wg.Wait()
	return result
}

func (n *Node) runGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	n.refreshGauges()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshGauges()
		}
	}
}

// refreshGauges publishes supply, price and delinquency gauges.
func (n *Node) refreshGauges() {
	metrics := observability.Vault()
	for _, asset := range []string{n.cfg.Assets.Stable, n.cfg.Assets.Collateral} {
		supply, err := n.state.TokenSupply(asset)
		if err != nil {
			n.logger.Warn("read supply failed", slog.String("asset", asset), slog.Any("error", err))
			continue
		}
		metrics.RecordSupply(asset, supply.ToBig())
	}
	price, err := n.engine.CollateralPrice()
	if err != nil {
		n.logger.Debug("collateral price unavailable", slog.Any("error", err))
		return
	}
	metrics.RecordPrice(price.ToBig())
	delinquent, err := n.engine.Delinquent()
	if err != nil {
		n.logger.Warn("delinquency scan failed", slog.Any("error", err))
		return
	}
	metrics.SetDelinquent(len(delinquent))
}

// Close releases storage and the event archive.
func (n *Node) Close() error {
	var errs []error
	if n.archive != nil {
		errs = append(errs, n.archive.Close())
	}
	if n.db != nil {
		n.db.Close()
	}
	return errors.Join(errs...)
}

// logEmitter writes each event to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	rendered := events.Render(evt)
	if rendered == nil {
		return
	}
	attrs := make([]any, 0, len(rendered.Attributes)+1)
	attrs = append(attrs, slog.String("type", rendered.Type))
	for k, v := range rendered.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	l.logger.Info("vault event", attrs...)
}
