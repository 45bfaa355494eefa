package config

// Storage selects the key-value backend holding vault state.
type Storage struct {
	Backend string `toml:"Backend" yaml:"backend"`
	Path    string `toml:"Path" yaml:"path"`
}

// Assets names the ledger symbols the engine operates on.
type Assets struct {
	Stable     string `toml:"Stable" yaml:"stable"`
	Collateral string `toml:"Collateral" yaml:"collateral"`
}

// Params seeds the governance parameters until governance persists its own.
type Params struct {
	BurnFeeBps                 uint64 `toml:"BurnFeeBps" yaml:"burn_fee_bps"`
	RequiredRatioPercent       uint64 `toml:"RequiredRatioPercent" yaml:"required_ratio_percent"`
	MaxInstalmentPeriodSeconds uint64 `toml:"MaxInstalmentPeriodSeconds" yaml:"max_instalment_period_seconds"`
	// MinInstalmentAmount is a decimal amount in whole stable units.
	MinInstalmentAmount string `toml:"MinInstalmentAmount" yaml:"min_instalment_amount"`
	Oracle              string `toml:"Oracle" yaml:"oracle"`
}

// Oracle describes one price feed.
type Oracle struct {
	Name string `toml:"Name" yaml:"name"`
	// Type is "manual" or "http".
	Type string `toml:"Type" yaml:"type"`
	// Price seeds a manual feed, as a decimal.
	Price        string `toml:"Price" yaml:"price"`
	Endpoint     string `toml:"Endpoint" yaml:"endpoint"`
	APIKey       string `toml:"APIKey" yaml:"api_key"`
	MaxAge       string `toml:"MaxAge" yaml:"max_age"`
	PollInterval string `toml:"PollInterval" yaml:"poll_interval"`
}

// Auth configures bearer token verification.
type Auth struct {
	JWTSecret string `toml:"JWTSecret" yaml:"jwt_secret"`
	Issuer    string `toml:"Issuer" yaml:"issuer"`
}

// RateLimit bounds requests per caller.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Telemetry wires OTLP exporters.
type Telemetry struct {
	// ServiceName labels exported spans and metrics; it defaults to vaultd.
	ServiceName string  `toml:"ServiceName" yaml:"service_name"`
	Instance    string  `toml:"Instance" yaml:"instance"`
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio"`
}

// Log controls the structured logger.
type Log struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Allocation credits an account at startup when the state is empty.
type Allocation struct {
	Account string `toml:"Account" yaml:"account"`
	Asset   string `toml:"Asset" yaml:"asset"`
	Amount  string `toml:"Amount" yaml:"amount"`
}
