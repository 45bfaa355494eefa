package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stablevault/crypto"
	"stablevault/native/vault"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "vaultd.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8088", cfg.ListenAddress)
	require.Equal(t, "leveldb", cfg.Storage.Backend)
	require.Equal(t, filepath.Join("./vault-data", "state"), cfg.Storage.Path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Governor, reloaded.Governor)
	require.Equal(t, cfg.Params, reloaded.Params)
}

func TestLoadYAML(t *testing.T) {
	governor := DeriveAccount("yaml-governor").String()
	holder := DeriveAccount("holder").String()
	body := `
env: test
listen: "127.0.0.1:9000"
governor: ` + governor + `
storage:
  backend: memory
assets:
  stable: vusd
  collateral: vcol
params:
  burn_fee_bps: 25
  required_ratio_percent: 150
  max_instalment_period_seconds: 3600
  min_instalment_amount: "2.5"
  oracle: spot
oracles:
  - name: spot
    type: manual
    price: "420.5"
    max_age: 1m
auth:
  jwt_secret: secret
telemetry:
  instance: vaultd-1
allocations:
  - account: ` + holder + `
    asset: vcol
    amount: "3"
`
	path := filepath.Join(t.TempDir(), "vaultd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "VUSD", cfg.Assets.Stable)
	require.Equal(t, "VCOL", cfg.Assets.Collateral)
	require.Equal(t, "vaultd", cfg.Telemetry.ServiceName)
	require.Equal(t, "vaultd-1", cfg.Telemetry.Instance)

	params, err := cfg.VaultParams()
	require.NoError(t, err)
	require.Equal(t, uint64(25), params.BurnFeeBps)
	require.Equal(t, uint64(150), params.RequiredRatioPercent)
	require.Equal(t, uint64(3600), params.MaxInstalmentPeriod)
	require.Equal(t, "spot", params.OracleRef)
	require.Equal(t, vault.MustParseUnits("2.5"), params.MinInstalmentAmount)

	maxAge, err := cfg.Oracles[0].MaxAgeDuration()
	require.NoError(t, err)
	require.Equal(t, "1m0s", maxAge.String())
}

func TestLoadRejectsUnknownTOMLField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultd.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bogus = 1\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown field")
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultd.toml")
	t.Setenv(EnvListen, ":9999")
	t.Setenv(EnvStorageBackend, "memory")
	t.Setenv(EnvPaused, "true")
	t.Setenv(EnvRateLimit, "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddress)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.True(t, cfg.Paused)
	require.Equal(t, float64(20), cfg.RateLimit.RequestsPerSecond)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "redis" },
			wantErr: "unsupported backend",
		},
		{
			name:    "same assets",
			mutate:  func(c *Config) { c.Assets.Collateral = c.Assets.Stable },
			wantErr: "must differ",
		},
		{
			name:    "bad governor",
			mutate:  func(c *Config) { c.Governor = "not-an-address" },
			wantErr: "governor",
		},
		{
			name:    "ratio below par",
			mutate:  func(c *Config) { c.Params.RequiredRatioPercent = 99 },
			wantErr: "params",
		},
		{
			name:    "fee above denominator",
			mutate:  func(c *Config) { c.Params.BurnFeeBps = 10001 },
			wantErr: "params",
		},
		{
			name:    "unconfigured oracle",
			mutate:  func(c *Config) { c.Params.Oracle = "missing" },
			wantErr: "not configured",
		},
		{
			name: "http feed without endpoint",
			mutate: func(c *Config) {
				c.Oracles = append(c.Oracles, Oracle{Name: "remote", Type: OracleHTTP})
			},
			wantErr: "endpoint required",
		},
		{
			name: "duplicate oracle",
			mutate: func(c *Config) {
				c.Oracles = append(c.Oracles, Oracle{Name: "Default", Type: OracleManual})
			},
			wantErr: "duplicate",
		},
		{
			name: "negative max age",
			mutate: func(c *Config) {
				c.Oracles[0].MaxAge = "-1s"
			},
			wantErr: "max_age",
		},
		{
			name: "allocation with unknown asset",
			mutate: func(c *Config) {
				c.Allocations = []Allocation{{Account: DeriveAccount("a").String(), Asset: "XYZ", Amount: "1"}}
			},
			wantErr: "unknown asset",
		},
		{
			name:    "sample ratio",
			mutate:  func(c *Config) { c.Telemetry.SampleRatio = 2 },
			wantErr: "sample_ratio",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			cfg.applyDefaults()
			err := cfg.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestCustodyAddress(t *testing.T) {
	cfg := Default()
	derived, err := cfg.CustodyAddress()
	require.NoError(t, err)
	require.False(t, derived.IsZero())
	require.Equal(t, crypto.AccountPrefix, derived.Prefix())

	explicit := DeriveAccount("explicit")
	cfg.Custody = explicit.String()
	got, err := cfg.CustodyAddress()
	require.NoError(t, err)
	require.True(t, explicit.Equal(got))
}
