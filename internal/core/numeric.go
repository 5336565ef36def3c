package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SpotPlaces is the number of fractional digits sent for spot prices and amounts.
const SpotPlaces = 10

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// FormatFixed renders value with exactly places fractional digits, truncating extra digits.
func FormatFixed(value decimal.Decimal, places int32) string {
	if places < 0 {
		places = 0
	}
	return value.Truncate(places).StringFixed(places)
}

// PrecisionFromStep returns the number of fractional digits of a price or size step, e.g. "0.01" -> 2.
func PrecisionFromStep(step string) (int32, bool) {
	trimmed := strings.TrimSpace(step)
	if trimmed == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	if !strings.Contains(trimmed, ".") {
		return 0, true
	}
	parts := strings.SplitN(trimmed, ".", 2)
	decimals := strings.TrimRight(parts[1], "0")
	return int32(len(decimals)), true
}

// Executed returns |size| - |left|, never negative.
func Executed(size, left decimal.Decimal) decimal.Decimal {
	out := size.Abs().Sub(left.Abs())
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// ParseDecimal parses s, treating blank input as zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
