package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"bankledger/internal/auth"
	"bankledger/internal/config"
	"bankledger/internal/db"
	"bankledger/internal/models"
	"bankledger/internal/observability"
	"bankledger/internal/services"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const testSecret = "secret"

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, user models.User) error
	getByEmailFn    func(ctx context.Context, email string) (models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (models.User, error)
	getByIDFn       func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, user models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, user)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	if s.getByUsernameFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	rolesFn       func(ctx context.Context, userID string) ([]string, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context, tx store.Getter) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) Roles(ctx context.Context, userID string) ([]string, error) {
	if s.rolesFn == nil {
		return []string{}, nil
	}
	return s.rolesFn(ctx, userID)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context, tx store.Getter) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx, tx)
}

// onlyAdmin is an admin store in which adminID is the single super admin.
func onlyAdmin(adminID string) stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(_ context.Context, userID string) (bool, bool, error) {
			return userID == adminID, userID == adminID, nil
		},
	}
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return []store.AuditEntry{}, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubLedger struct {
	createAccountFn        func(ctx context.Context, input models.AccountInput) (models.Account, error)
	getAccountFn           func(ctx context.Context, accountID string) (models.Account, error)
	listAccountsFn         func(ctx context.Context, userID string) ([]models.Account, error)
	updateAccountFn        func(ctx context.Context, accountID string, patch models.AccountPatch) (models.Account, error)
	depositFn              func(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error)
	withdrawFn             func(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error)
	transferFn             func(ctx context.Context, req services.TransferRequest) (models.Transaction, error)
	closeAccountFn         func(ctx context.Context, accountID string) (models.Account, error)
	listTransactionsFn     func(ctx context.Context, accountID string) ([]models.Transaction, error)
	listUserTransactionsFn func(ctx context.Context, userID string) ([]models.Transaction, error)
	getTransactionFn       func(ctx context.Context, transactionID string) (models.Transaction, error)
}

func (s stubLedger) CreateAccount(ctx context.Context, input models.AccountInput) (models.Account, error) {
	if s.createAccountFn == nil {
		return models.Account{}, nil
	}
	return s.createAccountFn(ctx, input)
}

func (s stubLedger) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	if s.getAccountFn == nil {
		return models.Account{}, services.ErrAccountNotFound
	}
	return s.getAccountFn(ctx, accountID)
}

func (s stubLedger) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	if s.listAccountsFn == nil {
		return nil, nil
	}
	return s.listAccountsFn(ctx, userID)
}

func (s stubLedger) UpdateAccount(ctx context.Context, accountID string, patch models.AccountPatch) (models.Account, error) {
	if s.updateAccountFn == nil {
		return models.Account{}, nil
	}
	return s.updateAccountFn(ctx, accountID, patch)
}

func (s stubLedger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error) {
	if s.depositFn == nil {
		return decimal.Zero, nil
	}
	return s.depositFn(ctx, accountID, amount, description)
}

func (s stubLedger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error) {
	if s.withdrawFn == nil {
		return decimal.Zero, nil
	}
	return s.withdrawFn(ctx, accountID, amount, description)
}

func (s stubLedger) Transfer(ctx context.Context, req services.TransferRequest) (models.Transaction, error) {
	if s.transferFn == nil {
		return models.Transaction{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubLedger) CloseAccount(ctx context.Context, accountID string) (models.Account, error) {
	if s.closeAccountFn == nil {
		return models.Account{}, nil
	}
	return s.closeAccountFn(ctx, accountID)
}

func (s stubLedger) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	if s.listTransactionsFn == nil {
		return nil, nil
	}
	return s.listTransactionsFn(ctx, accountID)
}

func (s stubLedger) ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	if s.listUserTransactionsFn == nil {
		return nil, nil
	}
	return s.listUserTransactionsFn(ctx, userID)
}

func (s stubLedger) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	if s.getTransactionFn == nil {
		return models.Transaction{}, services.ErrTransactionNotFound
	}
	return s.getTransactionFn(ctx, transactionID)
}

type stubLoans struct {
	applyFn          func(ctx context.Context, input models.LoanInput) (models.Loan, error)
	getLoanFn        func(ctx context.Context, loanID string) (models.Loan, error)
	listUserLoansFn  func(ctx context.Context, userID string) ([]models.Loan, error)
	listLoansFn      func(ctx context.Context, status *models.LoanStatus) ([]models.Loan, error)
	updateLoanFn     func(ctx context.Context, loanID string, update models.LoanUpdate) (models.Loan, error)
	approveFn        func(ctx context.Context, loanID string) (models.Loan, error)
	rejectFn         func(ctx context.Context, loanID string) (models.Loan, error)
	activateFn       func(ctx context.Context, loanID string) (models.Loan, error)
	makePaymentFn    func(ctx context.Context, loanID string, amount decimal.Decimal) (decimal.Decimal, error)
	payFromAccountFn func(ctx context.Context, loanID, accountID string, amount decimal.Decimal) (decimal.Decimal, error)
	quoteFn          func(ctx context.Context, loanID string) (services.PaymentQuote, error)
}

func (s stubLoans) ApplyForLoan(ctx context.Context, input models.LoanInput) (models.Loan, error) {
	if s.applyFn == nil {
		return models.Loan{}, nil
	}
	return s.applyFn(ctx, input)
}

func (s stubLoans) GetLoan(ctx context.Context, loanID string) (models.Loan, error) {
	if s.getLoanFn == nil {
		return models.Loan{}, services.ErrLoanNotFound
	}
	return s.getLoanFn(ctx, loanID)
}

func (s stubLoans) ListUserLoans(ctx context.Context, userID string) ([]models.Loan, error) {
	if s.listUserLoansFn == nil {
		return nil, nil
	}
	return s.listUserLoansFn(ctx, userID)
}

func (s stubLoans) ListLoans(ctx context.Context, status *models.LoanStatus) ([]models.Loan, error) {
	if s.listLoansFn == nil {
		return nil, nil
	}
	return s.listLoansFn(ctx, status)
}

func (s stubLoans) UpdateLoan(ctx context.Context, loanID string, update models.LoanUpdate) (models.Loan, error) {
	if s.updateLoanFn == nil {
		return models.Loan{}, nil
	}
	return s.updateLoanFn(ctx, loanID, update)
}

func (s stubLoans) Approve(ctx context.Context, loanID string) (models.Loan, error) {
	if s.approveFn == nil {
		return models.Loan{}, nil
	}
	return s.approveFn(ctx, loanID)
}

func (s stubLoans) Reject(ctx context.Context, loanID string) (models.Loan, error) {
	if s.rejectFn == nil {
		return models.Loan{}, nil
	}
	return s.rejectFn(ctx, loanID)
}

func (s stubLoans) Activate(ctx context.Context, loanID string) (models.Loan, error) {
	if s.activateFn == nil {
		return models.Loan{}, nil
	}
	return s.activateFn(ctx, loanID)
}

func (s stubLoans) MakePayment(ctx context.Context, loanID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if s.makePaymentFn == nil {
		return decimal.Zero, nil
	}
	return s.makePaymentFn(ctx, loanID, amount)
}

func (s stubLoans) MakePaymentFromAccount(ctx context.Context, loanID, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if s.payFromAccountFn == nil {
		return decimal.Zero, nil
	}
	return s.payFromAccountFn(ctx, loanID, accountID, amount)
}

func (s stubLoans) CalculateMonthlyPayment(ctx context.Context, loanID string) (services.PaymentQuote, error) {
	if s.quoteFn == nil {
		return services.PaymentQuote{}, nil
	}
	return s.quoteFn(ctx, loanID)
}

type testDeps struct {
	txRunner db.TxRunner
	users    UserStore
	admin    AdminStore
	audit    AuditStore
	ledger   LedgerService
	loans    LoanService
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      testSecret,
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	if deps.txRunner == nil {
		deps.txRunner = fakeTxRunner{}
	}
	if deps.users == nil {
		deps.users = stubUserStore{}
	}
	if deps.admin == nil {
		deps.admin = stubAdminStore{}
	}
	if deps.audit == nil {
		deps.audit = stubAuditStore{}
	}
	if deps.ledger == nil {
		deps.ledger = stubLedger{}
	}
	if deps.loans == nil {
		deps.loans = stubLoans{}
	}
	return New(deps.txRunner, cfg, deps.users, deps.admin, deps.audit, deps.ledger, deps.loans, websocket.NewHub(), observability.NewMetrics(), nil)
}

// doRequest sends the request through the full router, authenticated as
// userID when it is non-empty.
func doRequest(t *testing.T, handler *Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func accountOwnedBy(userID, accountID string, balance string) models.Account {
	return models.Account{
		ID:            accountID,
		UserID:        userID,
		AccountType:   models.AccountTypeChecking,
		Balance:       decimal.RequireFromString(balance),
		AccountNumber: "101234567",
		Active:        true,
	}
}
