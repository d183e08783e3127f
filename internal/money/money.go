package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits persisted for every money column.
const Scale = 8

// InputScale bounds the precision accepted from user input (USDT cents).
const InputScale = 2

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Parse reads a user supplied amount such as "100", "99.5" or "+12.30".
func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.Exponent() < -InputScale {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

// ParsePositive is Parse restricted to amounts greater than zero.
func ParsePositive(input string) (decimal.Decimal, error) {
	value, err := Parse(input)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// ParsePrice accepts up to Scale fractional digits, prices are not cents.
func ParsePrice(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.Exponent() < -Scale {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

func Round(value decimal.Decimal) decimal.Decimal {
	return value.Round(Scale)
}

// Format renders an amount with two decimals the way balances are displayed.
func Format(value decimal.Decimal) string {
	return value.StringFixedBank(InputScale)
}

func FormatSigned(value decimal.Decimal) string {
	if value.IsNegative() {
		return Format(value)
	}
	return "+" + Format(value)
}
