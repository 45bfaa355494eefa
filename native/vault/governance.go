package vault

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"stablevault/core/events"
	"stablevault/crypto"
)

// Parameter names carried on vault.param.updated events.
const (
	ParamBurnFee             = "burnFeeBps"
	ParamRequiredRatio       = "requiredRatioPercent"
	ParamMaxInstalmentPeriod = "maxInstalmentPeriod"
	ParamMinInstalmentAmount = "minInstalmentAmount"
	ParamOracle              = "oracle"
)

// SetBurnFee updates the fee charged on released collateral.
func (e *Engine) SetBurnFee(caller crypto.Address, bps uint64) error {
	return e.updateParam("setBurnFee", caller, ParamBurnFee, strconv.FormatUint(bps, 10), func(p *Params) error {
		if bps > basisPointsDenominator {
			return fmt.Errorf("%w: burn fee %d exceeds %d bps", ErrInvalidParameter, bps, basisPointsDenominator)
		}
		p.BurnFeeBps = bps
		return nil
	})
}

// SetRequiredRatio updates the collateralisation target in whole percent.
func (e *Engine) SetRequiredRatio(caller crypto.Address, percent uint64) error {
	return e.updateParam("setRequiredRatio", caller, ParamRequiredRatio, strconv.FormatUint(percent, 10), func(p *Params) error {
		if percent < percentDenominator {
			return fmt.Errorf("%w: required ratio %d below 100%%", ErrInvalidParameter, percent)
		}
		p.RequiredRatioPercent = percent
		return nil
	})
}

// SetMaxInstalmentPeriod updates the grace period in seconds.
func (e *Engine) SetMaxInstalmentPeriod(caller crypto.Address, seconds uint64) error {
	return e.updateParam("setMaxInstalmentPeriod", caller, ParamMaxInstalmentPeriod, strconv.FormatUint(seconds, 10), func(p *Params) error {
		p.MaxInstalmentPeriod = seconds
		return nil
	})
}

// SetMinInstalmentAmount updates the smallest accepted partial repayment.
func (e *Engine) SetMinInstalmentAmount(caller crypto.Address, amount *uint256.Int) error {
	value := "0"
	if amount != nil {
		value = amount.Dec()
	}
	return e.updateParam("setMinInstalmentAmount", caller, ParamMinInstalmentAmount, value, func(p *Params) error {
		if amount == nil {
			return fmt.Errorf("%w: minimum instalment must be set", ErrInvalidParameter)
		}
		p.MinInstalmentAmount = new(uint256.Int).Set(amount)
		return nil
	})
}

// SetOracle switches the price feed to the one registered under ref.
func (e *Engine) SetOracle(caller crypto.Address, ref string) error {
	ref = strings.TrimSpace(ref)
	return e.updateParam("setOracle", caller, ParamOracle, ref, func(p *Params) error {
		if ref == "" {
			return fmt.Errorf("%w: oracle reference must be set", ErrInvalidParameter)
		}
		if e.oracles == nil {
			return ErrOracleUnavailable
		}
		if _, err := e.oracles.Resolve(ref); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		p.OracleRef = ref
		return nil
	})
}

func (e *Engine) updateParam(op string, caller crypto.Address, name, value string, apply func(*Params) error) error {
	return e.execute(op, false, false, func(ctx *opContext) error {
		if !e.access.IsGovernor(caller) {
			return ErrUnauthorized
		}
		params := ctx.params.Clone()
		if err := apply(&params); err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return err
		}
		if err := e.state.PutParams(params); err != nil {
			return err
		}
		ctx.emit(events.ParamUpdated{Caller: caller, Param: name, Value: value})
		return nil
	})
}
