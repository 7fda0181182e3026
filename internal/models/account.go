package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeChecking AccountType = "Checking"
	AccountTypeSavings  AccountType = "Savings"
)

func ParseAccountType(raw string) (AccountType, error) {
	switch AccountType(raw) {
	case AccountTypeChecking, AccountTypeSavings:
		return AccountType(raw), nil
	}
	return "", ErrInvalidAccountType
}

type Account struct {
	ID            string          `db:"id" json:"account_id"`
	UserID        string          `db:"user_id" json:"user_id"`
	AccountType   AccountType     `db:"account_type" json:"account_type"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	AccountNumber string          `db:"account_number" json:"account_number"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// AccountInput is the creation payload. A zero Balance opens an empty
// account; an empty AccountNumber asks for a generated one.
type AccountInput struct {
	UserID        string
	AccountType   string
	Balance       decimal.Decimal
	AccountNumber string
}

func NewAccount(input AccountInput, now time.Time) (Account, error) {
	accountType, err := ParseAccountType(input.AccountType)
	if err != nil {
		return Account{}, err
	}
	if input.Balance.IsNegative() || !hasMoneyScale(input.Balance) {
		return Account{}, ErrInvalidAmount
	}
	number := input.AccountNumber
	if number == "" {
		number = GenerateAccountNumber()
	}
	return Account{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		AccountType:   accountType,
		Balance:       input.Balance.Round(2),
		AccountNumber: number,
		Active:        true,
		CreatedAt:     now.UTC(),
	}, nil
}

// GenerateAccountNumber returns "10" followed by seven digits taken from a
// random UUID. Uniqueness is enforced by the caller against storage.
func GenerateAccountNumber() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	digits := n.String()
	for len(digits) < 7 {
		digits = "0" + digits
	}
	return fmt.Sprintf("10%s", digits[:7])
}

func (a *Account) Deposit(amount decimal.Decimal) (decimal.Decimal, error) {
	if !isPositiveMoney(amount) {
		return a.Balance, ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	return a.Balance, nil
}

func (a *Account) Withdraw(amount decimal.Decimal) (decimal.Decimal, error) {
	if !isPositiveMoney(amount) {
		return a.Balance, ErrInvalidAmount
	}
	if amount.GreaterThan(a.Balance) {
		return a.Balance, ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return a.Balance, nil
}

// Close deactivates the account. Only an exactly empty account can be closed.
func (a *Account) Close() error {
	if !a.Balance.IsZero() {
		return ErrNonZeroBalance
	}
	a.Active = false
	return nil
}

// AccountPatch lists the account fields a caller may change after creation.
// Balance, owner and active flag are only reachable through ledger operations.
type AccountPatch struct {
	AccountType *string `json:"account_type"`
}

func (a *Account) Apply(patch AccountPatch) error {
	if patch.AccountType == nil {
		return nil
	}
	accountType, err := ParseAccountType(*patch.AccountType)
	if err != nil {
		return err
	}
	a.AccountType = accountType
	return nil
}

func isPositiveMoney(amount decimal.Decimal) bool {
	return amount.IsPositive() && hasMoneyScale(amount)
}

func hasMoneyScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}
