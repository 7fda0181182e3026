package store

import (
	"context"

	"bankledger/internal/models"
)

type LoanStore struct {
	db DB
}

const loanColumns = `id, user_id, loan_type, amount, interest_rate, term_months, purpose, status, balance, created_at, approved_at`

func NewLoanStore(db DB) *LoanStore {
	return &LoanStore{db: db}
}

func (s *LoanStore) Create(ctx context.Context, tx Execer, loan models.Loan) error {
	query := `
		INSERT INTO loans (id, user_id, loan_type, amount, interest_rate, term_months, purpose, status, balance, created_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		loan.ID, loan.UserID, loan.LoanType, loan.Amount, loan.InterestRate, loan.TermMonths,
		loan.Purpose, loan.Status, loan.Balance, loan.CreatedAt, loan.ApprovedAt,
	)
	return err
}

func (s *LoanStore) GetByID(ctx context.Context, loanID string) (models.Loan, error) {
	var row models.Loan
	err := s.db.GetContext(ctx, &row, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) GetForUpdate(ctx context.Context, tx Getter, loanID string) (models.Loan, error) {
	var row models.Loan
	err := tx.GetContext(ctx, &row, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) GetByUser(ctx context.Context, userID string) ([]models.Loan, error) {
	rows := []models.Loan{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+loanColumns+`
		FROM loans
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *LoanStore) ListAll(ctx context.Context, status string) ([]models.Loan, error) {
	rows := []models.Loan{}
	query := `SELECT ` + loanColumns + ` FROM loans`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// Update persists every mutable loan column; the caller holds the row lock.
func (s *LoanStore) Update(ctx context.Context, tx Execer, loan models.Loan) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET loan_type = $1, amount = $2, interest_rate = $3, term_months = $4, purpose = $5,
		    status = $6, balance = $7, approved_at = $8, updated_at = NOW()
		WHERE id = $9
	`, loan.LoanType, loan.Amount, loan.InterestRate, loan.TermMonths, loan.Purpose,
		loan.Status, loan.Balance, loan.ApprovedAt, loan.ID)
	return err
}
