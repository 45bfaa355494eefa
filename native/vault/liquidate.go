package vault

import (
	"github.com/holiman/uint256"

	"stablevault/core/events"
	"stablevault/crypto"
)

// Liquidate seizes the minter's entire collateral for the liquidator once
// the vault is both under-collateralised and overdue. amount must cover the
// whole outstanding debt; partial liquidation is not supported.
func (e *Engine) Liquidate(liquidator, minter crypto.Address, amount *uint256.Int) (*LiquidationResult, error) {
	const op = "liquidate"
	if amount == nil || amount.IsZero() {
		return nil, opError(op, ErrInvalidAmount)
	}
	if minter.IsZero() {
		return nil, opError(op, ErrInvalidBeneficiary)
	}

	var result *LiquidationResult
	err := e.execute(op, true, true, func(ctx *opContext) error {
		v, err := e.loadVault(minter)
		if err != nil {
			return err
		}
		if err := checkLiquidatable(v, amount, ctx); err != nil {
			return err
		}

		debt := new(uint256.Int).Set(v.Debt)
		seized := new(uint256.Int).Set(v.Collateral)
		balance, err := e.ledger.BalanceOf(e.assets.Stable, liquidator)
		if err != nil {
			return err
		}
		if balance == nil || balance.Cmp(debt) < 0 {
			return ErrInsufficientBalance
		}

		if err := e.ledger.Burn(e.assets.Stable, liquidator, debt); err != nil {
			return err
		}
		if !seized.IsZero() {
			if err := e.ledger.Transfer(e.assets.Collateral, e.custody, liquidator, seized); err != nil {
				return err
			}
		}
		if err := e.state.PutVault(minter, NewVault()); err != nil {
			return err
		}

		ctx.emit(events.VaultLiquidated{
			Liquidator: liquidator,
			Minter:     minter,
			Repaid:     new(uint256.Int).Set(debt),
			Seized:     new(uint256.Int).Set(seized),
		})
		result = &LiquidationResult{Repaid: debt, Seized: seized}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkLiquidatable evaluates the liquidation gate in order: amount covers
// the debt, the ratio is strictly below the requirement and the instalment
// period has been exceeded. The first failing condition is reported.
func checkLiquidatable(v *Vault, amount *uint256.Int, ctx *opContext) error {
	if amount.Cmp(v.Debt) < 0 {
		return ErrAmountTooLow
	}
	ratio, defined, err := RatioPercent(v.Collateral, v.Debt, ctx.price)
	if err != nil {
		return err
	}
	if !defined || ratio.Cmp(uint256.NewInt(ctx.params.RequiredRatioPercent)) >= 0 {
		return ErrRatioNotBelowThreshold
	}
	if elapsed(v.LastInstalment, ctx.now) <= ctx.params.MaxInstalmentPeriod {
		return ErrInstalmentPeriodNotExceeded
	}
	return nil
}

func elapsed(since, now uint64) uint64 {
	if now <= since {
		return 0
	}
	return now - since
}
