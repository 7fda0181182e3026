package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Scale is the number of fractional digits every stored amount carries.
const Scale = 2

// Parse reads a plain decimal literal with at most two fractional digits.
// Exponents, thousands separators and empty input are rejected.
func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	unsigned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "-"), "+")
	parts := strings.SplitN(unsigned, ".", 2)
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	if !isDigits(parts[0]) {
		return decimal.Zero, ErrInvalidAmount
	}
	if len(parts) == 2 {
		if !isDigits(parts[1]) {
			return decimal.Zero, ErrInvalidAmount
		}
		if len(parts[1]) > Scale {
			return decimal.Zero, ErrTooManyDecimals
		}
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
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

func Format(value decimal.Decimal) string {
	return value.StringFixed(Scale)
}

// Amount decodes from either a JSON number or a JSON string so request
// bodies can carry "12.50" or 12.50.
type Amount struct {
	Raw string
	Set bool
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrInvalidAmount
		}
	}
	*a = Amount{Raw: raw, Set: true}
	return nil
}

// Decimal validates the decoded literal.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if !a.Set {
		return decimal.Zero, ErrInvalidAmount
	}
	return Parse(a.Raw)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
