package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stablevault/config"
	"stablevault/crypto"
	"stablevault/observability/logging"
	telemetry "stablevault/observability/otel"
	"stablevault/services/vaultd"
	"stablevault/services/vaultd/server"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var cfgPath string
	var issueFor string
	var tokenTTL time.Duration
	flag.StringVar(&cfgPath, "config", "vaultd.toml", "path to vaultd configuration (toml or yaml)")
	flag.StringVar(&issueFor, "issue-token", "", "DEV ONLY: print a bearer token for the given account and exit")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service: "vaultd",
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		File: logging.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		},
	})

	if strings.TrimSpace(issueFor) != "" {
		if err := issueToken(cfg, issueFor, tokenTTL); err != nil {
			logger.Error("issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("vaultd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Instance:       cfg.Telemetry.Instance,
		Environment:    cfg.Env,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"vault.stable_asset":     cfg.Assets.Stable,
			"vault.collateral_asset": cfg.Assets.Collateral,
			"vault.storage_backend":  cfg.Storage.Backend,
		},
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	logger.Info("starting vaultd",
		slog.String("storage", cfg.Storage.Backend),
		slog.String("governor", cfg.Governor),
		logging.MaskField("jwt_secret", cfg.Auth.JWTSecret),
		slog.Bool("paused", cfg.Paused))

	node, err := vaultd.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("close node", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return node.Run(ctx)
}

func issueToken(cfg *config.Config, account string, ttl time.Duration) error {
	addr, err := crypto.DecodeAddress(account)
	if err != nil {
		return err
	}
	token, err := server.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(addr, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
