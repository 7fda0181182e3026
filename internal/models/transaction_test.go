package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionDestinationOnlyForTransfers(t *testing.T) {
	dest := "acc-2"
	now := time.Now()

	_, err := NewTransaction(TransactionInput{AccountID: "acc-1", TransactionType: TransactionTransfer, Amount: dec(t, "10")}, now)
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	_, err = NewTransaction(TransactionInput{AccountID: "acc-1", TransactionType: TransactionDeposit, Amount: dec(t, "10"), DestinationAccountID: &dest}, now)
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	_, err = NewTransaction(TransactionInput{AccountID: "acc-1", TransactionType: "refund", Amount: dec(t, "10")}, now)
	assert.ErrorIs(t, err, ErrInvalidTransaction)

	tx, err := NewTransaction(TransactionInput{AccountID: "acc-1", TransactionType: TransactionTransfer, Amount: dec(t, "10"), DestinationAccountID: &dest}, now)
	require.NoError(t, err)
	assert.True(t, tx.Involves("acc-1"))
	assert.True(t, tx.Involves("acc-2"))
	assert.False(t, tx.Involves("acc-3"))
}

func TestNewTransactionRequiresPositiveAmount(t *testing.T) {
	_, err := NewTransaction(TransactionInput{AccountID: "acc-1", TransactionType: TransactionWithdrawal, Amount: dec(t, "0")}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	transactions := []Transaction{
		{ID: "b", CreatedAt: base},
		{ID: "c", CreatedAt: base.Add(time.Minute)},
		{ID: "a", CreatedAt: base},
	}
	SortNewestFirst(transactions)

	ids := []string{transactions[0].ID, transactions[1].ID, transactions[2].ID}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}
