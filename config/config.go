package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the vaultd runtime configuration.
type Config struct {
	Env           string `toml:"Env" yaml:"env"`
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
	DataDir       string `toml:"DataDir" yaml:"data_dir"`
	// EventArchive is the sqlite file backing the event log. Relative paths
	// resolve against DataDir; ":memory:" keeps the archive in memory.
	EventArchive string `toml:"EventArchive" yaml:"event_archive"`
	Governor     string `toml:"Governor" yaml:"governor"`
	// Custody optionally overrides the account holding locked collateral.
	Custody string `toml:"Custody" yaml:"custody"`
	Paused  bool   `toml:"Paused" yaml:"paused"`

	Storage     Storage      `toml:"Storage" yaml:"storage"`
	Assets      Assets       `toml:"Assets" yaml:"assets"`
	Params      Params       `toml:"Params" yaml:"params"`
	Oracles     []Oracle     `toml:"Oracles" yaml:"oracles"`
	Auth        Auth         `toml:"Auth" yaml:"auth"`
	RateLimit   RateLimit    `toml:"RateLimit" yaml:"rate_limit"`
	Telemetry   Telemetry    `toml:"Telemetry" yaml:"telemetry"`
	Log         Log          `toml:"Log" yaml:"log"`
	Allocations []Allocation `toml:"Allocations" yaml:"allocations"`
}

// Environment variables that override file values.
const (
	EnvListen         = "VAULTD_LISTEN"
	EnvDataDir        = "VAULTD_DATA_DIR"
	EnvStorageBackend = "VAULTD_STORAGE_BACKEND"
	EnvGovernor       = "VAULTD_GOVERNOR"
	EnvJWTSecret      = "VAULTD_JWT_SECRET"
	EnvEnv            = "VAULTD_ENV"
	EnvLogLevel       = "VAULTD_LOG_LEVEL"
	EnvPaused         = "VAULTD_PAUSED"
	EnvRateLimit      = "VAULTD_RATE_LIMIT_RPS"
)

// Load loads the configuration from the given path. TOML and YAML are
// selected by extension; a missing file is created with defaults in TOML.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	} else if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config %s: unknown field %q", path, undecoded[0].String())
		}
	}
	return nil
}

// Default returns a single-node development configuration.
func Default() *Config {
	return &Config{
		Env:           "local",
		ListenAddress: ":8088",
		DataDir:       "./vault-data",
		EventArchive:  "events.db",
		Governor:      DevGovernor,
		Storage:       Storage{Backend: "leveldb", Path: "state"},
		Assets:        Assets{Stable: "VUSD", Collateral: "VCOL"},
		Params: Params{
			BurnFeeBps:                 50,
			RequiredRatioPercent:       120,
			MaxInstalmentPeriodSeconds: 30 * 24 * 60 * 60,
			MinInstalmentAmount:        "10",
			Oracle:                     "default",
		},
		Oracles: []Oracle{{
			Name:  "default",
			Type:  OracleManual,
			Price: "500",
		}},
		Auth:      Auth{JWTSecret: "change-me-dev-secret", Issuer: "vaultd"},
		RateLimit: RateLimit{RequestsPerSecond: 20, Burst: 40},
		Log:       Log{Level: "info"},
	}
}

// DevGovernor is the governance account used by the default configuration.
var DevGovernor = DeriveAccount("vaultd/dev-governor").String()

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8088"
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = "memory"
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) && c.DataDir != "" {
		c.Storage.Path = filepath.Join(c.DataDir, c.Storage.Path)
	}
	if c.EventArchive != "" && c.EventArchive != ":memory:" && !filepath.IsAbs(c.EventArchive) && c.DataDir != "" {
		c.EventArchive = filepath.Join(c.DataDir, c.EventArchive)
	}
	if c.Assets.Stable == "" {
		c.Assets.Stable = "VUSD"
	}
	if c.Assets.Collateral == "" {
		c.Assets.Collateral = "VCOL"
	}
	c.Assets.Stable = strings.ToUpper(strings.TrimSpace(c.Assets.Stable))
	c.Assets.Collateral = strings.ToUpper(strings.TrimSpace(c.Assets.Collateral))
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "vaultd"
	}
	if c.Params.MinInstalmentAmount == "" {
		c.Params.MinInstalmentAmount = "0"
	}
	if c.RateLimit.Burst <= 0 && c.RateLimit.RequestsPerSecond > 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) + 1
	}
	for i := range c.Oracles {
		c.Oracles[i].Type = strings.ToLower(strings.TrimSpace(c.Oracles[i].Type))
		if c.Oracles[i].Type == "" {
			c.Oracles[i].Type = OracleManual
		}
	}
}

func applyEnv(cfg *Config) {
	cfg.ListenAddress = stringFromEnv(EnvListen, cfg.ListenAddress)
	cfg.DataDir = stringFromEnv(EnvDataDir, cfg.DataDir)
	cfg.Storage.Backend = stringFromEnv(EnvStorageBackend, cfg.Storage.Backend)
	cfg.Governor = stringFromEnv(EnvGovernor, cfg.Governor)
	cfg.Auth.JWTSecret = stringFromEnv(EnvJWTSecret, cfg.Auth.JWTSecret)
	cfg.Env = stringFromEnv(EnvEnv, cfg.Env)
	cfg.Log.Level = stringFromEnv(EnvLogLevel, cfg.Log.Level)
	cfg.Paused = boolFromEnv(EnvPaused, cfg.Paused)
	cfg.RateLimit.RequestsPerSecond = floatFromEnv(EnvRateLimit, cfg.RateLimit.RequestsPerSecond)
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		log.Printf("invalid boolean value for %s: %q, using default %v", key, trimmed, fallback)
		return fallback
	}
	return parsed
}

func floatFromEnv(key string, fallback float64) float64 {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		log.Printf("invalid numeric value for %s: %q, using default %v", key, trimmed, fallback)
		return fallback
	}
	return parsed
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
