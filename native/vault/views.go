package vault

import (
	"github.com/holiman/uint256"

	"stablevault/crypto"
)

// Vault returns a snapshot of the account's position.
func (e *Engine) Vault(addr crypto.Address) (*Vault, error) {
	var out *Vault
	err := e.view("vault", false, func(*opContext) error {
		v, err := e.loadVault(addr)
		out = v
		return err
	})
	return out, err
}

// CollateralOf returns the collateral locked for addr.
func (e *Engine) CollateralOf(addr crypto.Address) (*uint256.Int, error) {
	v, err := e.Vault(addr)
	if err != nil {
		return nil, err
	}
	return v.Collateral, nil
}

// DebtOf returns the outstanding debt of addr.
func (e *Engine) DebtOf(addr crypto.Address) (*uint256.Int, error) {
	v, err := e.Vault(addr)
	if err != nil {
		return nil, err
	}
	return v.Debt, nil
}

// LastInstalmentOf returns the unix timestamp of the vault's last repayment
// or creation.
func (e *Engine) LastInstalmentOf(addr crypto.Address) (uint64, error) {
	v, err := e.Vault(addr)
	if err != nil {
		return 0, err
	}
	return v.LastInstalment, nil
}

// CollateralRatioOf returns the integer collateralisation percentage of addr
// at the current price. Vaults without debt report zero.
func (e *Engine) CollateralRatioOf(addr crypto.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view("collateralRatioOf", true, func(ctx *opContext) error {
		v, err := e.loadVault(addr)
		if err != nil {
			return err
		}
		out, _, err = RatioPercent(v.Collateral, v.Debt, ctx.price)
		return err
	})
	return out, err
}

// CollateralPrice returns the price quoted by the configured oracle.
func (e *Engine) CollateralPrice() (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view("collateralPrice", true, func(ctx *opContext) error {
		out = ctx.price
		return nil
	})
	return out, err
}

// Params returns the parameter set currently in force.
func (e *Engine) Params() (Params, error) {
	var out Params
	err := e.view("params", false, func(ctx *opContext) error {
		out = ctx.params.Clone()
		return nil
	})
	return out, err
}

// BurnFeeBps returns the fee, in basis points, withheld from released
// collateral.
func (e *Engine) BurnFeeBps() (uint64, error) {
	p, err := e.Params()
	return p.BurnFeeBps, err
}

// RequiredRatio returns the minimum collateral ratio in whole percent.
func (e *Engine) RequiredRatio() (uint64, error) {
	p, err := e.Params()
	return p.RequiredRatioPercent, err
}

// MaxInstalmentPeriod returns the seconds a vault may go without an
// instalment before it becomes liquidatable.
func (e *Engine) MaxInstalmentPeriod() (uint64, error) {
	p, err := e.Params()
	return p.MaxInstalmentPeriod, err
}

// MinInstalmentAmount returns the smallest partial repayment accepted.
func (e *Engine) MinInstalmentAmount() (*uint256.Int, error) {
	p, err := e.Params()
	if err != nil {
		return nil, err
	}
	return p.MinInstalmentAmount, nil
}

// RegisteredMinterAt returns the index-th account that ever minted.
func (e *Engine) RegisteredMinterAt(index uint64) (crypto.Address, error) {
	var out crypto.Address
	err := e.view("registeredMinterAt", false, func(*opContext) error {
		count, err := e.state.MinterCount()
		if err != nil {
			return err
		}
		if index >= count {
			return ErrInvalidParameter
		}
		out, err = e.state.MinterAt(index)
		return err
	})
	return out, err
}

// RegisteredMinterCount returns the number of accounts that ever minted.
func (e *Engine) RegisteredMinterCount() (uint64, error) {
	var out uint64
	err := e.view("registeredMinterCount", false, func(*opContext) error {
		var err error
		out, err = e.state.MinterCount()
		return err
	})
	return out, err
}

// Positions lists registered vaults in registry order starting at offset.
// A zero limit returns every remaining entry.
func (e *Engine) Positions(offset, limit uint64) ([]Position, error) {
	var out []Position
	err := e.view("positions", true, func(ctx *opContext) error {
		return e.scan(ctx, func(pos Position, _ *Vault) bool {
			return true
		}, offset, limit, &out)
	})
	return out, err
}

// Delinquent lists every registered vault that could be liquidated right
// now: under the required ratio and past the instalment period.
func (e *Engine) Delinquent() ([]Position, error) {
	var out []Position
	err := e.view("delinquent", true, func(ctx *opContext) error {
		return e.scan(ctx, func(pos Position, v *Vault) bool {
			return checkLiquidatable(v, v.Debt, ctx) == nil
		}, 0, 0, &out)
	})
	return out, err
}

func (e *Engine) scan(ctx *opContext, keep func(Position, *Vault) bool, offset, limit uint64, out *[]Position) error {
	count, err := e.state.MinterCount()
	if err != nil {
		return err
	}
	for i := offset; i < count; i++ {
		if limit > 0 && uint64(len(*out)) >= limit {
			break
		}
		addr, err := e.state.MinterAt(i)
		if err != nil {
			return err
		}
		v, err := e.loadVault(addr)
		if err != nil {
			return err
		}
		ratio, _, err := RatioPercent(v.Collateral, v.Debt, ctx.price)
		if err != nil {
			return err
		}
		pos := Position{
			Account:        addr,
			Collateral:     v.Collateral,
			Debt:           v.Debt,
			RatioPercent:   ratio,
			LastInstalment: v.LastInstalment,
		}
		if keep(pos, v) {
			*out = append(*out, pos)
		}
	}
	return nil
}
