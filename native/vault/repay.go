package vault

import (
	"github.com/holiman/uint256"

	"stablevault/core/events"
	"stablevault/crypto"
)

// Repay burns up to requested stable units from payer against the
// beneficiary's debt and releases a matching share of collateral, minus the
// burn fee, to the beneficiary.
func (e *Engine) Repay(payer, beneficiary crypto.Address, requested *uint256.Int) (*RepayResult, error) {
	const op = "repay"
	if requested == nil || requested.IsZero() {
		return nil, opError(op, ErrInvalidAmount)
	}
	if beneficiary.IsZero() {
		return nil, opError(op, ErrInvalidBeneficiary)
	}

	var result *RepayResult
	err := e.execute(op, true, true, func(ctx *opContext) error {
		v, err := e.loadVault(beneficiary)
		if err != nil {
			return err
		}
		debt := v.Debt
		if debt.IsZero() && v.Collateral.IsZero() {
			return ErrNoDebt
		}

		// A deposit too small to issue any debt leaves collateral behind with
		// nothing to burn; it is released in full.
		effective := new(uint256.Int)
		if !debt.IsZero() {
			balance, err := e.ledger.BalanceOf(e.assets.Stable, payer)
			if err != nil {
				return err
			}
			if balance == nil || balance.IsZero() {
				return ErrInsufficientBalance
			}
			if requested.Cmp(debt) < 0 && requested.Cmp(ctx.params.MinInstalmentAmount) < 0 {
				return ErrBelowMinimumInstalment
			}
			effective = minOf(requested, balance, debt)
		}

		var unlocked *uint256.Int
		if effective.Eq(debt) {
			unlocked = new(uint256.Int).Set(v.Collateral)
		} else {
			unlocked, err = partialUnlock(v, effective, ctx.price, ctx.params.RequiredRatioPercent)
			if err != nil {
				return err
			}
		}
		fee, err := BurnFee(unlocked, ctx.params.BurnFeeBps)
		if err != nil {
			return err
		}
		payout, err := sub(unlocked, fee)
		if err != nil {
			return err
		}

		if !effective.IsZero() {
			if err := e.ledger.Burn(e.assets.Stable, payer, effective); err != nil {
				return err
			}
		}
		if v.Collateral, err = sub(v.Collateral, unlocked); err != nil {
			return err
		}
		if v.Debt, err = sub(v.Debt, effective); err != nil {
			return err
		}
		v.LastInstalment = ctx.now
		if err := e.state.PutVault(beneficiary, v); err != nil {
			return err
		}

		if sink := e.access.Governor(); !fee.IsZero() && !sink.IsZero() {
			if err := e.ledger.Transfer(e.assets.Collateral, e.custody, sink, fee); err != nil {
				return err
			}
		}
		if !payout.IsZero() {
			if err := e.ledger.Transfer(e.assets.Collateral, e.custody, beneficiary, payout); err != nil {
				return err
			}
		}

		ctx.emit(events.StableBurned{
			Payer:       payer,
			Beneficiary: beneficiary,
			Amount:      new(uint256.Int).Set(effective),
			Unlocked:    new(uint256.Int).Set(unlocked),
			Fee:         new(uint256.Int).Set(fee),
		})
		result = &RepayResult{Burned: effective, Unlocked: unlocked, Fee: fee, Vault: v.Clone()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// partialUnlock releases collateral in proportion to the repaid share of the
// debt, at whole-percent granularity, then rescales so that the remaining
// position lands near the required ratio. Over-collateralised vaults release
// more than the proportional share and under-collateralised vaults less.
func partialUnlock(v *Vault, repaid, price *uint256.Int, requiredPercent uint64) (*uint256.Int, error) {
	percent, err := mulDiv(repaid, hundred, v.Debt)
	if err != nil {
		return nil, err
	}
	unlocked, err := mulDiv(percent, v.Collateral, hundred)
	if err != nil {
		return nil, err
	}

	current, _, err := RatioPercent(v.Collateral, v.Debt, price)
	if err != nil {
		return nil, err
	}
	required := uint256.NewInt(requiredPercent)
	if current.Eq(required) {
		return unlocked, nil
	}
	if current.IsZero() {
		return new(uint256.Int), nil
	}

	rest, err := sub(v.Collateral, unlocked)
	if err != nil {
		return nil, err
	}
	scaled, err := mul(required, hundred)
	if err != nil {
		return nil, err
	}
	retained, err := mulDiv(rest, scaled, current)
	if err != nil {
		return nil, err
	}
	retained.Div(retained, hundred)
	if retained.Cmp(v.Collateral) > 0 {
		retained.Set(v.Collateral)
	}
	return new(uint256.Int).Sub(v.Collateral, retained), nil
}

func minOf(values ...*uint256.Int) *uint256.Int {
	var out *uint256.Int
	for _, v := range values {
		if out == nil || v.Cmp(out) < 0 {
			out = v
		}
	}
	return new(uint256.Int).Set(out)
}
