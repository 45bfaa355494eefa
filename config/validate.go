package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"stablevault/crypto"
	"stablevault/native/vault"
	"stablevault/storage"
)

// Oracle feed types.
const (
	OracleManual = "manual"
	OracleHTTP   = "http"
)

const defaultOracleMaxAge = 5 * time.Minute

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendLevelDB, storage.BackendBolt:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage: path required for %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}
	if c.Assets.Stable == c.Assets.Collateral {
		return fmt.Errorf("assets: stable and collateral must differ")
	}
	if _, err := c.GovernorAddress(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Custody) != "" {
		if _, err := crypto.DecodeAddress(c.Custody); err != nil {
			return fmt.Errorf("custody: %w", err)
		}
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth: jwt secret required")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit: requests_per_second must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	params, err := c.VaultParams()
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Oracles))
	for i, o := range c.Oracles {
		name := strings.ToLower(strings.TrimSpace(o.Name))
		if name == "" {
			return fmt.Errorf("oracles[%d]: name required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("oracles[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		if _, err := o.MaxAgeDuration(); err != nil {
			return fmt.Errorf("oracles[%d]: %w", i, err)
		}
		switch o.Type {
		case OracleManual:
			if strings.TrimSpace(o.Price) != "" {
				if _, err := vault.ParseUnits(o.Price); err != nil {
					return fmt.Errorf("oracles[%d]: price: %w", i, err)
				}
			}
		case OracleHTTP:
			if strings.TrimSpace(o.Endpoint) == "" {
				return fmt.Errorf("oracles[%d]: endpoint required for http feed", i)
			}
			if _, err := o.PollIntervalDuration(); err != nil {
				return fmt.Errorf("oracles[%d]: %w", i, err)
			}
		default:
			return fmt.Errorf("oracles[%d]: unsupported type %q", i, o.Type)
		}
	}
	if _, ok := seen[strings.ToLower(params.OracleRef)]; !ok {
		return fmt.Errorf("params: oracle %q is not configured", params.OracleRef)
	}
	for i, alloc := range c.Allocations {
		if _, err := crypto.DecodeAddress(alloc.Account); err != nil {
			return fmt.Errorf("allocations[%d]: %w", i, err)
		}
		asset := strings.ToUpper(strings.TrimSpace(alloc.Asset))
		if asset != c.Assets.Stable && asset != c.Assets.Collateral {
			return fmt.Errorf("allocations[%d]: unknown asset %q", i, alloc.Asset)
		}
		if _, err := vault.ParseUnits(alloc.Amount); err != nil {
			return fmt.Errorf("allocations[%d]: amount: %w", i, err)
		}
	}
	return nil
}

// GovernorAddress decodes the configured governance account.
func (c *Config) GovernorAddress() (crypto.Address, error) {
	if strings.TrimSpace(c.Governor) == "" {
		return crypto.Address{}, fmt.Errorf("governor: address required")
	}
	addr, err := crypto.DecodeAddress(c.Governor)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("governor: %w", err)
	}
	return addr, nil
}

// CustodyAddress returns the configured custody account or the one derived
// from the collateral symbol.
func (c *Config) CustodyAddress() (crypto.Address, error) {
	if strings.TrimSpace(c.Custody) == "" {
		return DeriveAccount("vault/custody/" + c.Assets.Collateral), nil
	}
	addr, err := crypto.DecodeAddress(c.Custody)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("custody: %w", err)
	}
	return addr, nil
}

// VaultParams converts the configured parameters into engine defaults.
func (c *Config) VaultParams() (vault.Params, error) {
	minimum := uint256.NewInt(0)
	if amount := strings.TrimSpace(c.Params.MinInstalmentAmount); amount != "" {
		parsed, err := vault.ParseUnits(amount)
		if err != nil {
			return vault.Params{}, fmt.Errorf("params: min_instalment_amount: %w", err)
		}
		minimum = parsed
	}
	params := vault.Params{
		BurnFeeBps:           c.Params.BurnFeeBps,
		RequiredRatioPercent: c.Params.RequiredRatioPercent,
		MaxInstalmentPeriod:  c.Params.MaxInstalmentPeriodSeconds,
		MinInstalmentAmount:  minimum,
		OracleRef:            strings.ToLower(strings.TrimSpace(c.Params.Oracle)),
	}
	if err := params.Validate(); err != nil {
		return vault.Params{}, fmt.Errorf("params: %w", err)
	}
	return params, nil
}

// MaxAgeDuration parses the staleness bound, defaulting to five minutes.
func (o Oracle) MaxAgeDuration() (time.Duration, error) {
	return parseDuration("max_age", o.MaxAge, defaultOracleMaxAge)
}

// PollIntervalDuration parses the http refresh interval.
func (o Oracle) PollIntervalDuration() (time.Duration, error) {
	return parseDuration("poll_interval", o.PollInterval, 30*time.Second)
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

// DeriveAccount maps a label to a deterministic account identifier.
func DeriveAccount(label string) crypto.Address {
	digest := ethcrypto.Keccak256([]byte(label))
	return crypto.MustNewAddress(crypto.AccountPrefix, digest[len(digest)-crypto.AddressLength:])
}
