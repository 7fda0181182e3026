package store

import (
	"context"

	"bankledger/internal/models"
)

type TransactionStore struct {
	db DB
}

const transactionColumns = `id, account_id, transaction_type, amount, description, destination_account_id, created_at`

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, transaction models.Transaction) error {
	query := `
		INSERT INTO transactions (id, account_id, transaction_type, amount, description, destination_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		transaction.ID, transaction.AccountID, transaction.TransactionType, transaction.Amount,
		transaction.Description, transaction.DestinationAccountID, transaction.CreatedAt,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

// ListByAccount returns transactions where the account is either the source
// or the transfer destination, newest first.
func (s *TransactionStore) ListByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows := []models.Transaction{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC, id ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	rows := []models.Transaction{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT t.id, t.account_id, t.transaction_type, t.amount, t.description,
		       t.destination_account_id, t.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id OR a.id = t.destination_account_id
		WHERE a.user_id = $1
		ORDER BY t.created_at DESC, t.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
