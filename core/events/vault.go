package events

import (
	"strings"

	"github.com/holiman/uint256"

	"stablevault/core/types"
	"stablevault/crypto"
)

const (
	// TypeStableMinted is emitted whenever collateral is locked and stable
	// units are issued against it.
	TypeStableMinted = "stable.minted"
	// TypeStableBurned is emitted whenever debt is repaid and collateral is
	// released.
	TypeStableBurned = "stable.burned"
	// TypeVaultLiquidated is emitted when a delinquent vault is seized.
	TypeVaultLiquidated = "vault.liquidated"
)

// StableMinted captures the issuance side of a mint.
type StableMinted struct {
	Caller      crypto.Address
	Beneficiary crypto.Address
	Collateral  *uint256.Int
	Shortfall   *uint256.Int
	Amount      *uint256.Int
}

func (StableMinted) EventType() string { return TypeStableMinted }

func (e StableMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeStableMinted,
		Attributes: map[string]string{
			"caller":      e.Caller.String(),
			"beneficiary": e.Beneficiary.String(),
			"collateral":  amountString(e.Collateral),
			"shortfall":   amountString(e.Shortfall),
			"amount":      amountString(e.Amount),
		},
	}
}

// StableBurned captures a repayment. The payer and beneficiary may differ.
type StableBurned struct {
	Payer       crypto.Address
	Beneficiary crypto.Address
	Amount      *uint256.Int
	Unlocked    *uint256.Int
	Fee         *uint256.Int
}

func (StableBurned) EventType() string { return TypeStableBurned }

func (e StableBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeStableBurned,
		Attributes: map[string]string{
			"payer":       e.Payer.String(),
			"beneficiary": e.Beneficiary.String(),
			"amount":      amountString(e.Amount),
			"unlocked":    amountString(e.Unlocked),
			"fee":         amountString(e.Fee),
		},
	}
}

// VaultLiquidated captures a full seizure of a vault by a liquidator.
type VaultLiquidated struct {
	Liquidator crypto.Address
	Minter     crypto.Address
	Repaid     *uint256.Int
	Seized     *uint256.Int
}

func (VaultLiquidated) EventType() string { return TypeVaultLiquidated }

func (e VaultLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultLiquidated,
		Attributes: map[string]string{
			"liquidator": e.Liquidator.String(),
			"minter":     e.Minter.String(),
			"repaid":     amountString(e.Repaid),
			"seized":     amountString(e.Seized),
		},
	}
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func normalizeParam(name string) string {
	return strings.TrimSpace(name)
}
