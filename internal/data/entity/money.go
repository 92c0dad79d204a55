package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents).
type Money int64

var hundred = decimal.NewFromInt(100)

// ParseMoney parses a major-unit string such as "100.00".
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", d.String())
	}
	return Money(cents.IntPart()), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// PercentFloor returns floor(m * percent / 100) in minor units.
func (m Money) PercentFloor(percent decimal.Decimal) Money {
	return Money(decimal.NewFromInt(int64(m)).Mul(percent).Div(hundred).Floor().IntPart())
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
