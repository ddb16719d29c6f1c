// Money parsing and handling.
//
// Amounts are stored as integer cents. Parsing and formatting go through
// shopspring/decimal so no float arithmetic touches stored values.

package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64 `json:"cents"`
}

var maxCents = decimal.NewFromInt(1<<63 - 1)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	if !cents.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseMoney is ParseDecimalToCents wrapped in a Money.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

func Cents(c int64) Money {
	return Money{Cents: c}
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// Mul multiplies by an integer count (e.g. months).
func (m Money) Mul(n int) Money {
	return Money{Cents: m.Cents * int64(n)}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with two decimals, e.g. "12.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
