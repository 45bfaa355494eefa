package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stablevault/native/oracle"
	"stablevault/native/vault"
	"stablevault/observability"
	"stablevault/services/vaultd/eventlog"
)

// EventSource lists archived events.
type EventSource interface {
	Recent(ctx context.Context, limit int, eventType string) ([]eventlog.Record, error)
}

// FeedDirectory looks up price feeds by name.
type FeedDirectory interface {
	Feed(ref string) (oracle.Feed, error)
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine      *vault.Engine
	Events      EventSource
	Feeds       FeedDirectory
	Access      vault.AccessControl
	Auth        *Authenticator
	RateLimit   float64
	Burst       int
	ServiceName string
}

// Server exposes the vault engine over HTTP/JSON.
type Server struct {
	engine  *vault.Engine
	events  EventSource
	feeds   FeedDirectory
	access  vault.AccessControl
	auth    *Authenticator
	limiter *RateLimiter
	ops     *observability.VaultMetrics
	name    string

	router http.Handler
}

// New constructs the router with authentication, rate limiting and
// instrumentation installed.
func New(cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vaultd"
	}
	requests := observability.ModuleMetrics()
	srv := &Server{
		engine:  cfg.Engine,
		events:  cfg.Events,
		feeds:   cfg.Feeds,
		access:  cfg.Access,
		auth:    cfg.Auth,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.Burst, requests),
		ops:     observability.Vault(),
		name:    cfg.ServiceName,
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(requests), cfg.ServiceName)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(requests observabilityRecorder) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(observe(requests))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)

		api.Get("/vaults/delinquent", s.delinquent)
		api.Get("/vaults/{address}", s.getVault)
		api.Get("/minters", s.minters)
		api.Get("/params", s.params)
		api.Get("/price", s.price)
		api.Get("/events", s.listEvents)

		api.Group(func(protected chi.Router) {
			protected.Use(s.auth.Middleware)
			protected.Post("/vaults/mint", s.mint)
			protected.Post("/vaults/repay", s.repay)
			protected.Post("/vaults/liquidate", s.liquidate)
			protected.Post("/governance/{param}", s.governance)
			protected.Post("/oracles/{name}/price", s.pushPrice)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": s.name})
}

// track records the outcome of an engine call.
func (s *Server) track(op string, start time.Time, err error) {
	s.ops.Observe(op, vault.KindOf(err).String(), time.Since(start))
}
