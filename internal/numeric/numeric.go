// Package numeric provides decimal helpers shared by parsers and the venue
// client. Canonical payloads carry decimal strings end to end; arithmetic
// happens here.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/exwrap/martin/errs"
)

// Parse converts a decimal string into a decimal value.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errs.Validation("empty decimal string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errs.New("", errs.CodeValidation,
			errs.WithMessage("bad decimal string"), errs.WithCause(err))
	}
	return d, nil
}

// Truncate rounds value toward zero to the largest multiple of step.
// A non-positive step returns value unchanged.
func Truncate(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	q, _ := value.QuoRem(step, 0)
	return q.Mul(step)
}

// FormatFixed renders d with the given fractional precision, then strips
// trailing zeros and a dangling decimal point.
func FormatFixed(d decimal.Decimal, precision int) string {
	if precision < 0 {
		precision = 0
	}
	s := d.StringFixed(int32(precision))
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// Refine truncates value down to the step grid and formats it at the
// symbol's precision. Used for both quantity (stepSize) and price (tickSize).
func Refine(value, step decimal.Decimal, precision int) string {
	return FormatFixed(Truncate(value, step), precision)
}

// RefineString is Refine over decimal strings.
func RefineString(value, step string, precision int) (string, error) {
	v, err := Parse(value)
	if err != nil {
		return "", err
	}
	s, err := Parse(step)
	if err != nil {
		return "", err
	}
	return Refine(v, s, precision), nil
}
