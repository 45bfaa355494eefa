package vault

import (
	"errors"
	"fmt"

	nativecommon "stablevault/native/common"
)

// Kind classifies every failure surfaced by the engine. Callers branch on the
// kind (or on the sentinel via errors.Is), never on message text.
type Kind uint8

const (
	KindNone Kind = iota
	KindInvalidAmount
	KindInvalidBeneficiary
	KindInsufficientBalance
	KindBelowMinimumInstalment
	KindAmountTooLow
	KindRatioNotBelowThreshold
	KindInstalmentPeriodNotExceeded
	KindUnauthorized
	KindInvalidParameter
	KindOverflow
	KindOracleUnavailable
	KindPaused
	KindInternal
)

var kindNames = map[Kind]string{
	KindNone:                        "none",
	KindInvalidAmount:               "invalid_amount",
	KindInvalidBeneficiary:          "invalid_beneficiary",
	KindInsufficientBalance:         "insufficient_balance",
	KindBelowMinimumInstalment:      "below_minimum_instalment",
	KindAmountTooLow:                "amount_too_low",
	KindRatioNotBelowThreshold:      "ratio_not_below_threshold",
	KindInstalmentPeriodNotExceeded: "instalment_period_not_exceeded",
	KindUnauthorized:                "unauthorized",
	KindInvalidParameter:            "invalid_parameter",
	KindOverflow:                    "overflow",
	KindOracleUnavailable:           "oracle_unavailable",
	KindPaused:                      "paused",
	KindInternal:                    "internal",
}

// String implements fmt.Stringer for logging and metrics labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var (
	ErrInvalidAmount               = errors.New("vault engine: amount must be positive")
	ErrInvalidBeneficiary          = errors.New("vault engine: beneficiary must be set")
	ErrInsufficientBalance         = errors.New("vault engine: insufficient balance")
	ErrBelowMinimumInstalment      = errors.New("vault engine: repayment below minimum instalment")
	ErrNoDebt                      = errors.New("vault engine: no outstanding debt to repay")
	ErrAmountTooLow                = errors.New("vault engine: amount does not cover outstanding debt")
	ErrRatioNotBelowThreshold      = errors.New("vault engine: collateral ratio not below threshold")
	ErrInstalmentPeriodNotExceeded = errors.New("vault engine: instalment period not exceeded")
	ErrUnauthorized                = errors.New("vault engine: caller is not the governance actor")
	ErrInvalidParameter            = errors.New("vault engine: invalid parameter")
	ErrOverflow                    = errors.New("vault engine: arithmetic overflow")
	ErrOracleUnavailable           = errors.New("vault engine: collateral price unavailable")
	ErrNotConfigured               = errors.New("vault engine: collaborators not configured")
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInvalidBeneficiary, KindInvalidBeneficiary},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrNoDebt, KindInvalidAmount},
	{ErrBelowMinimumInstalment, KindBelowMinimumInstalment},
	{ErrAmountTooLow, KindAmountTooLow},
	{ErrRatioNotBelowThreshold, KindRatioNotBelowThreshold},
	{ErrInstalmentPeriodNotExceeded, KindInstalmentPeriodNotExceeded},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidParameter, KindInvalidParameter},
	{ErrOverflow, KindOverflow},
	{ErrOracleUnavailable, KindOracleUnavailable},
	{nativecommon.ErrModulePaused, KindPaused},
	{ErrNotConfigured, KindInternal},
}

// Error is the typed failure returned by every engine operation.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from an engine error. Nil maps to KindNone
// and foreign errors map to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Op: op, Kind: classify(err), Err: err}
}
