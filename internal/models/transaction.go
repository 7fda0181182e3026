package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
)

// Transaction is an append-only ledger entry. AccountID is the source
// account; DestinationAccountID is set for transfers only.
type Transaction struct {
	ID                   string          `db:"id" json:"transaction_id"`
	AccountID            string          `db:"account_id" json:"account_id"`
	TransactionType      TransactionType `db:"transaction_type" json:"transaction_type"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	Description          *string         `db:"description" json:"description,omitempty"`
	DestinationAccountID *string         `db:"destination_account_id" json:"destination_account_id,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

type TransactionInput struct {
	AccountID            string
	TransactionType      TransactionType
	Amount               decimal.Decimal
	Description          *string
	DestinationAccountID *string
}

func NewTransaction(input TransactionInput, now time.Time) (Transaction, error) {
	if !isPositiveMoney(input.Amount) {
		return Transaction{}, ErrInvalidAmount
	}
	switch input.TransactionType {
	case TransactionDeposit, TransactionWithdrawal:
		if input.DestinationAccountID != nil {
			return Transaction{}, ErrInvalidTransaction
		}
	case TransactionTransfer:
		if input.DestinationAccountID == nil || *input.DestinationAccountID == "" {
			return Transaction{}, ErrInvalidTransaction
		}
	default:
		return Transaction{}, ErrInvalidTransaction
	}
	return Transaction{
		ID:                   uuid.NewString(),
		AccountID:            input.AccountID,
		TransactionType:      input.TransactionType,
		Amount:               input.Amount,
		Description:          input.Description,
		DestinationAccountID: input.DestinationAccountID,
		CreatedAt:            now.UTC(),
	}, nil
}

// Involves reports whether accountID is the source or the destination.
func (t Transaction) Involves(accountID string) bool {
	if t.AccountID == accountID {
		return true
	}
	return t.DestinationAccountID != nil && *t.DestinationAccountID == accountID
}

// SortNewestFirst orders by creation time descending, ties by id ascending.
func SortNewestFirst(transactions []Transaction) {
	sort.SliceStable(transactions, func(i, j int) bool {
		left, right := transactions[i], transactions[j]
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.After(right.CreatedAt)
		}
		return left.ID < right.ID
	})
}
