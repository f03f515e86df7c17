// Package core holds the expense domain: users, expenses, categories, amount
// parsing and the error taxonomy shared by every layer.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest accepted amount; it fits NUMERIC(14, 2).
var MaxAmount = decimal.RequireFromString("999999999999.99")

const (
	maxAmountIntegerDigits = 12
	// Inputs with more fractional digits than this are rejected before
	// rounding.
	maxAmountFractionDigits = 32
	maxAmountInputLength    = 64
)

func init() {
	// Amounts travel as JSON numbers, matching what clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount parses a positive decimal amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted. The value is
// rounded half-up to cents.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("-1")     -> ErrInvalidAmount
//	ParseAmount("1e12")   -> ErrAmountTooLarge
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountInputLength {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	// Bound the exponent and the integer part before any rescaling:
	// "1e2000000000" is a valid decimal.
	exp := d.Exponent()
	if exp < -maxAmountFractionDigits {
		return decimal.Zero, ErrInvalidAmount
	}
	if exp > maxAmountIntegerDigits || d.NumDigits()+int(exp) > maxAmountIntegerDigits {
		if d.IsPositive() {
			return decimal.Zero, ErrAmountTooLarge
		}
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return d, nil
}

// FormatAmount renders d with two decimals, e.g. "12.30".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
