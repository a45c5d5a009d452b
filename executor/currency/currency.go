// Package currency implements the fixed-point decimal arithmetic exposed
// to contracts as the sandbox's `currency` host object (spec.md §4.2,
// §6). All monetary math in contracts goes through here: no binary
// floating point, ever.
//
// Grounded on the teacher's pervasive use of *big.Int for exact
// arithmetic throughout core/types (balances, difficulty, gas); Amount
// reuses that same "exact integer, scaled by a known power of ten"
// discipline instead of float64.
package currency

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is a decimal value represented as an integer mantissa scaled by
// 10^-precision, e.g. mantissa=500, precision=2 means "5.00".
type Amount struct {
	mantissa  *big.Int
	precision uint8
}

// Zero returns the zero amount at the given precision.
func Zero(precision uint8) Amount {
	return Amount{mantissa: big.NewInt(0), precision: precision}
}

// Parse parses a decimal string like "12.345" at the given precision,
// rejecting values with more fractional digits than precision allows.
func Parse(s string, precision uint8) (Amount, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > int(precision) {
		return Amount{}, fmt.Errorf("currency: %q has more than %d decimal places", s, precision)
	}
	fracPart = fracPart + strings.Repeat("0", int(precision)-len(fracPart))

	digits := intPart + fracPart
	if digits == "" {
		digits = "0"
	}

	mantissa, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("currency: invalid amount %q", s)
	}
	if neg {
		mantissa.Neg(mantissa)
	}
	return Amount{mantissa: mantissa, precision: precision}, nil
}

func (a Amount) requirePrecision(b Amount) {
	if a.precision != b.precision {
		panic(fmt.Sprintf("currency: precision mismatch %d != %d", a.precision, b.precision))
	}
}

// Add returns a+b. Both operands must share the same precision.
func (a Amount) Add(b Amount) Amount {
	a.requirePrecision(b)
	return Amount{mantissa: new(big.Int).Add(a.mantissa, b.mantissa), precision: a.precision}
}

// Sub returns a-b. Both operands must share the same precision.
func (a Amount) Sub(b Amount) Amount {
	a.requirePrecision(b)
	return Amount{mantissa: new(big.Int).Sub(a.mantissa, b.mantissa), precision: a.precision}
}

// Mul returns a*b, truncating back down to a's precision.
func (a Amount) Mul(b Amount) Amount {
	a.requirePrecision(b)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.precision)), nil)
	product := new(big.Int).Mul(a.mantissa, b.mantissa)
	product.Quo(product, scale)
	return Amount{mantissa: product, precision: a.precision}
}

// Cmp compares a and b; both operands must share the same precision.
func (a Amount) Cmp(b Amount) int {
	a.requirePrecision(b)
	return a.mantissa.Cmp(b.mantissa)
}

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.mantissa.Sign() < 0 }

// String renders the decimal form, e.g. "12.345".
func (a Amount) String() string {
	neg := a.mantissa.Sign() < 0
	digits := new(big.Int).Abs(a.mantissa).String()
	for len(digits) <= int(a.precision) {
		digits = "0" + digits
	}
	split := len(digits) - int(a.precision)
	intPart, fracPart := digits[:split], digits[split:]
	out := intPart
	if a.precision > 0 {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}
