// Package balance holds the bond arithmetic. All decisions are made on
// integers in the chain's smallest unit; decimal formatting and parsing
// exist only at the display edges.
package balance

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// displayPlaces bounds the fractional digits shown in logs and alerts.
const displayPlaces = 4

var zero = big.NewInt(0)

// BondCap returns max(0, free - reserve): the largest bond the account can
// post while keeping the configured reserve liquid. Saturates at zero.
func BondCap(free, reserve *big.Int) *big.Int {
	if free == nil {
		return new(big.Int)
	}
	out := new(big.Int).Set(free)
	if reserve != nil {
		out.Sub(out, reserve)
	}
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

// Cmp is a nil-safe big.Int comparison; nil counts as zero.
func Cmp(a, b *big.Int) int {
	if a == nil {
		a = zero
	}
	if b == nil {
		b = zero
	}
	return a.Cmp(b)
}

// Add returns a+b without mutating either operand.
func Add(a, b *big.Int) *big.Int {
	out := new(big.Int)
	if a != nil {
		out.Set(a)
	}
	if b != nil {
		out.Add(out, b)
	}
	return out
}

// Format renders a smallest-unit amount as a human token value, trimming to
// at most four fractional digits.
func Format(amount *big.Int, decimals uint8, symbol string) string {
	if amount == nil {
		amount = zero
	}
	d := decimal.NewFromBigInt(amount, -int32(decimals))
	return fmt.Sprintf("%s %s", d.Truncate(displayPlaces).String(), symbol)
}

// Parse converts a human-entered token amount to smallest units. Amounts
// with more fractional digits than the chain supports are rejected rather
// than rounded, as are negative values.
func Parse(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q exceeds chain precision of %d decimals", s, decimals)
	}
	return shifted.BigInt(), nil
}
