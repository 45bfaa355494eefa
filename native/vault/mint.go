package vault

import (
	"github.com/holiman/uint256"

	"stablevault/core/events"
	"stablevault/crypto"
)

// Mint locks amount of collateral from caller and issues stable units to the
// beneficiary up to the required ratio. When the beneficiary's vault is
// under-collateralised, the deposit first covers the shortfall and only the
// remainder backs new debt.
func (e *Engine) Mint(caller, beneficiary crypto.Address, amount *uint256.Int) (*MintResult, error) {
	const op = "mint"
	if amount == nil || amount.IsZero() {
		return nil, opError(op, ErrInvalidAmount)
	}
	if beneficiary.IsZero() {
		return nil, opError(op, ErrInvalidBeneficiary)
	}

	var result *MintResult
	err := e.execute(op, true, true, func(ctx *opContext) error {
		balance, err := e.ledger.BalanceOf(e.assets.Collateral, caller)
		if err != nil {
			return err
		}
		if balance == nil || balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}

		v, err := e.loadVault(beneficiary)
		if err != nil {
			return err
		}

		required := ctx.params.RequiredRatioPercent
		consumed := new(uint256.Int)
		remaining := new(uint256.Int).Set(amount)
		if !v.Collateral.IsZero() {
			ratio, defined, err := RatioPercent(v.Collateral, v.Debt, ctx.price)
			if err != nil {
				return err
			}
			if defined && ratio.Cmp(uint256.NewInt(required)) < 0 {
				shortfall, err := Shortfall(v.Collateral, v.Debt, ctx.price, required)
				if err != nil {
					return err
				}
				if amount.Cmp(shortfall) < 0 {
					consumed.Set(amount)
				} else {
					consumed.Set(shortfall)
				}
				remaining.Sub(amount, consumed)
			}
		} else {
			v.LastInstalment = ctx.now
		}

		minted, err := IssuableDebt(remaining, ctx.price, required)
		if err != nil {
			return err
		}

		if v.Collateral, err = add(v.Collateral, amount); err != nil {
			return err
		}
		if v.Debt, err = add(v.Debt, minted); err != nil {
			return err
		}

		if err := e.ledger.Transfer(e.assets.Collateral, caller, e.custody, amount); err != nil {
			return err
		}
		if !minted.IsZero() {
			if err := e.ledger.Mint(e.assets.Stable, beneficiary, minted); err != nil {
				return err
			}
		}
		if err := e.state.PutVault(beneficiary, v); err != nil {
			return err
		}
		if _, err := e.state.RegisterMinter(beneficiary); err != nil {
			return err
		}

		ctx.emit(events.StableMinted{
			Caller:      caller,
			Beneficiary: beneficiary,
			Collateral:  new(uint256.Int).Set(amount),
			Shortfall:   new(uint256.Int).Set(consumed),
			Amount:      new(uint256.Int).Set(minted),
		})
		result = &MintResult{Minted: minted, Shortfall: consumed, Vault: v.Clone()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
