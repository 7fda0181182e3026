package store

import (
	"context"

	"bankledger/internal/models"

	"github.com/shopspring/decimal"
)

type AccountStore struct {
	db DB
}

const accountColumns = `id, user_id, account_type, balance, account_number, active, created_at`

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, account_type, balance, account_number, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		account.ID, account.UserID, account.AccountType, account.Balance,
		account.AccountNumber, account.Active, account.CreatedAt,
	)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) ([]models.Account, error) {
	rows := []models.Account{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}

func (s *AccountStore) UpdateAccountType(ctx context.Context, tx Execer, accountID string, accountType models.AccountType) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET account_type = $1, updated_at = NOW()
		WHERE id = $2
	`, accountType, accountID)
	return err
}

func (s *AccountStore) SetActive(ctx context.Context, tx Execer, accountID string, active bool) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET active = $1, updated_at = NOW()
		WHERE id = $2
	`, active, accountID)
	return err
}

func (s *AccountStore) AccountNumberExists(ctx context.Context, tx Getter, accountNumber string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)
	`, accountNumber)
	return exists, err
}
