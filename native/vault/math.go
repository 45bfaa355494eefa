package vault

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// Decimals is the fixed-point precision shared by amounts and prices.
	Decimals = 18

	basisPointsDenominator = 10_000
	percentDenominator     = 100
)

// Scale is 10^Decimals, the fixed-point unit.
var Scale = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

var (
	basisPoints = uint256.NewInt(basisPointsDenominator)
	hundred     = uint256.NewInt(percentDenominator)
)

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// mulDiv computes a*b/d with a 512-bit intermediate and truncation toward
// zero. d must be non-zero.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// mulDivUp is mulDiv rounded toward positive infinity.
func mulDivUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	out, err := mulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, d).IsZero() {
		return out, nil
	}
	return add(out, uint256.NewInt(1))
}

// CollateralValue returns the stable-denominated value of collateral at
// price: collateral * price / 1e18, truncated.
func CollateralValue(collateral, price *uint256.Int) (*uint256.Int, error) {
	return mulDiv(collateral, price, Scale)
}

// RatioPercent returns the integer collateralisation percentage
// value(collateral, price) * 100 / debt, truncated. ok is false when the
// debt is zero and the ratio is therefore undefined.
func RatioPercent(collateral, debt, price *uint256.Int) (ratio *uint256.Int, ok bool, err error) {
	if debt == nil || debt.IsZero() {
		return new(uint256.Int), false, nil
	}
	value, err := CollateralValue(collateral, price)
	if err != nil {
		return nil, false, err
	}
	ratio, err = mulDiv(value, hundred, debt)
	if err != nil {
		return nil, false, err
	}
	return ratio, true, nil
}

// BurnFee returns amount * bps / 10000, truncated.
func BurnFee(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulDiv(amount, uint256.NewInt(bps), basisPoints)
}

// IssuableDebt returns the stable units backed by collateral at the given
// required ratio: value / required * 100. The division happens first so
// the result is always a multiple of 100 base units.
func IssuableDebt(collateral, price *uint256.Int, requiredPercent uint64) (*uint256.Int, error) {
	if requiredPercent == 0 {
		return nil, ErrInvalidParameter
	}
	value, err := CollateralValue(collateral, price)
	if err != nil {
		return nil, err
	}
	perPercent := new(uint256.Int).Div(value, uint256.NewInt(requiredPercent))
	return mul(perPercent, hundred)
}

// Shortfall returns the collateral needed to lift a vault back to the
// required ratio, rounded up. It returns zero when the vault is already at
// or above the ratio.
func Shortfall(collateral, debt, price *uint256.Int, requiredPercent uint64) (*uint256.Int, error) {
	if debt == nil || debt.IsZero() {
		return new(uint256.Int), nil
	}
	if price == nil || price.IsZero() {
		return nil, ErrOracleUnavailable
	}
	target, err := mulDivUp(debt, uint256.NewInt(requiredPercent), hundred)
	if err != nil {
		return nil, err
	}
	value, err := CollateralValue(collateral, price)
	if err != nil {
		return nil, err
	}
	if value.Cmp(target) >= 0 {
		return new(uint256.Int), nil
	}
	gap := new(uint256.Int).Sub(target, value)
	return mulDivUp(gap, Scale, price)
}

// ParseUnits parses a decimal string such as "416.5" into an 18-decimal
// fixed-point amount. Excess fractional digits are rejected.
func ParseUnits(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && frac == "" {
		return nil, fmt.Errorf("%w: malformed amount %q", ErrInvalidAmount, s)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("%w: amount %q exceeds %d decimals", ErrInvalidAmount, s, Decimals)
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: malformed amount %q", ErrInvalidAmount, s)
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return out, nil
}

// MustParseUnits is ParseUnits that panics on malformed input. It is meant
// for constants and tests.
func MustParseUnits(s string) *uint256.Int {
	v, err := ParseUnits(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders an 18-decimal amount as a decimal string without
// trailing fractional zeros.
func FormatUnits(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	whole, rem := new(uint256.Int).DivMod(v, Scale, new(uint256.Int))
	if rem.IsZero() {
		return whole.Dec()
	}
	frac := rem.Dec()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	return whole.Dec() + "." + strings.TrimRight(frac, "0")
}
