package vault

import (
	"github.com/holiman/uint256"

	"stablevault/crypto"
)

// Vault is the per-account collateralised debt position. Amounts carry 18
// decimals of fixed-point precision.
type Vault struct {
	// Collateral is the amount of collateral asset locked in custody.
	Collateral *uint256.Int
	// Debt is the outstanding stable units that must be burned to unlock
	// the collateral.
	Debt *uint256.Int
	// LastInstalment is the unix timestamp (seconds) of vault creation or of
	// the most recent repayment.
	LastInstalment uint64
}

// NewVault returns the zero vault.
func NewVault() *Vault {
	return &Vault{Collateral: new(uint256.Int), Debt: new(uint256.Int)}
}

// Clone returns a deep copy of the vault.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return NewVault()
	}
	clone := &Vault{LastInstalment: v.LastInstalment}
	clone.Collateral = cloneOrZero(v.Collateral)
	clone.Debt = cloneOrZero(v.Debt)
	return clone
}

// IsZero reports whether both collateral and debt are cleared.
func (v *Vault) IsZero() bool {
	if v == nil {
		return true
	}
	return (v.Collateral == nil || v.Collateral.IsZero()) && (v.Debt == nil || v.Debt.IsZero())
}

func (v *Vault) normalise() *Vault {
	if v == nil {
		return NewVault()
	}
	if v.Collateral == nil {
		v.Collateral = new(uint256.Int)
	}
	if v.Debt == nil {
		v.Debt = new(uint256.Int)
	}
	return v
}

// Params groups the governance controlled knobs. They are only mutated
// through the governance setters on Engine.
type Params struct {
	// BurnFeeBps is charged on released collateral, in basis points.
	BurnFeeBps uint64
	// RequiredRatioPercent is the target collateralisation ratio, e.g. 120.
	RequiredRatioPercent uint64
	// MaxInstalmentPeriod is the number of seconds a vault may go without a
	// repayment before becoming eligible for liquidation.
	MaxInstalmentPeriod uint64
	// MinInstalmentAmount is the smallest partial repayment accepted.
	MinInstalmentAmount *uint256.Int
	// OracleRef names the price feed consulted for the collateral price.
	OracleRef string
}

// DefaultParams mirrors the reference deployment: 0.5% burn fee, 120%
// required ratio, 30 day instalment period, 10 unit minimum instalment.
func DefaultParams() Params {
	return Params{
		BurnFeeBps:           50,
		RequiredRatioPercent: 120,
		MaxInstalmentPeriod:  30 * 24 * 60 * 60,
		MinInstalmentAmount:  new(uint256.Int).Mul(uint256.NewInt(10), Scale),
		OracleRef:            "default",
	}
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.MinInstalmentAmount = cloneOrZero(p.MinInstalmentAmount)
	return clone
}

// Validate checks the invariants every parameter set must satisfy.
func (p Params) Validate() error {
	if p.BurnFeeBps > basisPointsDenominator {
		return ErrInvalidParameter
	}
	if p.RequiredRatioPercent < 100 {
		return ErrInvalidParameter
	}
	if p.OracleRef == "" {
		return ErrInvalidParameter
	}
	return nil
}

// Assets names the ledger symbols the engine operates on.
type Assets struct {
	Stable     string
	Collateral string
}

// MintResult reports the outcome of a successful mint.
type MintResult struct {
	// Minted is the newly issued stable amount, possibly zero when the whole
	// deposit was absorbed by a collateral shortfall.
	Minted *uint256.Int
	// Shortfall is the part of the deposit used to restore the required
	// ratio before issuing new debt.
	Shortfall *uint256.Int
	Vault     *Vault
}

// RepayResult reports the outcome of a successful repayment.
type RepayResult struct {
	Burned   *uint256.Int
	Unlocked *uint256.Int
	Fee      *uint256.Int
	Vault    *Vault
}

// LiquidationResult reports the outcome of a successful liquidation.
type LiquidationResult struct {
	Repaid *uint256.Int
	Seized *uint256.Int
}

// Position is a read-only view of a registered vault.
type Position struct {
	Account        crypto.Address
	Collateral     *uint256.Int
	Debt           *uint256.Int
	RatioPercent   *uint256.Int
	LastInstalment uint64
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
