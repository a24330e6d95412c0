// Package weimath converts between display decimal strings and integer
// base units ("wei"). Every balance, bet, payout, and deposit elsewhere
// in the engine is a *big.Int; decimal.Decimal is used only here, at the
// wire boundary, for parsing (ToDecimal formats the digits by hand).
package weimath

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrBadAmount is returned when an amount cannot be interpreted as a
// non-negative wei value under the accepted input policy.
var ErrBadAmount = errors.New("weimath: bad amount")

// ether is 10^18 wei, the base-unit scale for all decimal-string inputs.
var ether = decimal.New(1, 18)

// ToWei parses a decimal string or integer literal into base units.
//
// Policy: a string with a decimal point and up to 18 fractional digits is
// treated as decimal ether and scaled by 10^18; a string with no decimal
// point and length <= 10 is treated as a small decimal-ether integer and
// scaled the same way; a string with no decimal point and length > 10 is
// treated as an already-integer wei value and passed through unscaled.
// Anything else, or any negative value, fails with ErrBadAmount.
func ToWei(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrBadAmount)
	}

	if strings.Contains(amount, ".") {
		frac := amount[strings.Index(amount, ".")+1:]
		if len(frac) > 18 {
			return nil, fmt.Errorf("%w: more than 18 fractional digits", ErrBadAmount)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadAmount, amount)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%w: negative amount", ErrBadAmount)
		}
		return d.Mul(ether).BigInt(), nil
	}

	if len(amount) > 10 {
		wei, ok := new(big.Int).SetString(amount, 10)
		if !ok || wei.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s", ErrBadAmount, amount)
		}
		return wei, nil
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadAmount, amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount", ErrBadAmount)
	}
	return d.Mul(ether).BigInt(), nil
}

// ToDecimal formats an integer base-unit value as a decimal-ether string,
// exact to 18 fractional digits (decimal.Div's fixed precision would
// truncate digits below 10^-16, breaking the round trip with ToWei).
func ToDecimal(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)

	digits := abs.String()
	for len(digits) <= 18 {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-18]
	fracPart := strings.TrimRight(digits[len(digits)-18:], "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	} else if len(intPart) > 10 {
		// ToWei reads a point-free string longer than 10 digits as wei,
		// so keep a point on large whole-ether values.
		out += ".0"
	}
	if neg {
		out = "-" + out
	}
	return out
}
