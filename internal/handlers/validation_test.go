package handlers

import (
	"encoding/json"
	"errors"
	"testing"

	"bankledger/internal/money"
)

func decodeAmount(t *testing.T, raw string) money.Amount {
	t.Helper()
	var body struct {
		Amount money.Amount `json:"amount"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return body.Amount
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		body string
		want string
		err  error
	}{
		{`{"amount": "12.50"}`, "12.5", nil},
		{`{"amount": 0.01}`, "0.01", nil},
		{`{"amount": "0"}`, "", money.ErrInvalidAmount},
		{`{"amount": -3}`, "", money.ErrInvalidAmount},
		{`{"amount": "1.234"}`, "", money.ErrTooManyDecimals},
		{`{"amount": "1e3"}`, "", money.ErrInvalidAmount},
		{`{}`, "", money.ErrInvalidAmount},
		{`{"amount": null}`, "", money.ErrInvalidAmount},
	}
	for _, tc := range cases {
		value, err := parseAmount(decodeAmount(t, tc.body))
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%s: expected %v, got %v", tc.body, tc.err, err)
			}
			continue
		}
		if err != nil || value.String() != tc.want {
			t.Fatalf("%s: expected %s, got %s (%v)", tc.body, tc.want, value, err)
		}
	}
}

func TestParseOpeningBalance(t *testing.T) {
	value, err := parseOpeningBalance(decodeAmount(t, `{}`))
	if err != nil || !value.IsZero() {
		t.Fatalf("expected zero for a missing balance, got %s (%v)", value, err)
	}
	value, err = parseOpeningBalance(decodeAmount(t, `{"amount": "0.00"}`))
	if err != nil || !value.IsZero() {
		t.Fatalf("expected zero balance to be accepted, got %s (%v)", value, err)
	}
	if _, err := parseOpeningBalance(decodeAmount(t, `{"amount": "-0.01"}`)); !errors.Is(err, money.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
