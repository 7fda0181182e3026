package handlers

import (
	"context"

	"bankledger/internal/models"
	"bankledger/internal/services"
	"bankledger/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, user models.User) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	Roles(ctx context.Context, userID string) ([]string, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context, tx store.Getter) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

type LedgerService interface {
	CreateAccount(ctx context.Context, input models.AccountInput) (models.Account, error)
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	UpdateAccount(ctx context.Context, accountID string, patch models.AccountPatch) (models.Account, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error)
	Transfer(ctx context.Context, req services.TransferRequest) (models.Transaction, error)
	CloseAccount(ctx context.Context, accountID string) (models.Account, error)
	ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
	ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error)
}

type LoanService interface {
	ApplyForLoan(ctx context.Context, input models.LoanInput) (models.Loan, error)
	GetLoan(ctx context.Context, loanID string) (models.Loan, error)
	ListUserLoans(ctx context.Context, userID string) ([]models.Loan, error)
	ListLoans(ctx context.Context, status *models.LoanStatus) ([]models.Loan, error)
	UpdateLoan(ctx context.Context, loanID string, update models.LoanUpdate) (models.Loan, error)
	Approve(ctx context.Context, loanID string) (models.Loan, error)
	Reject(ctx context.Context, loanID string) (models.Loan, error)
	Activate(ctx context.Context, loanID string) (models.Loan, error)
	MakePayment(ctx context.Context, loanID string, amount decimal.Decimal) (decimal.Decimal, error)
	MakePaymentFromAccount(ctx context.Context, loanID, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
	CalculateMonthlyPayment(ctx context.Context, loanID string) (services.PaymentQuote, error)
}
