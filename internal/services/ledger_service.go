package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bankledger/internal/db"
	"bankledger/internal/models"
	"bankledger/internal/money"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	initialDepositDescription = "initial deposit"
	maxAccountNumberAttempts  = 10
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, account models.Account) error
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetByUser(ctx context.Context, userID string) ([]models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal) error
	UpdateAccountType(ctx context.Context, tx store.Execer, accountID string, accountType models.AccountType) error
	SetActive(ctx context.Context, tx store.Execer, accountID string, active bool) error
	AccountNumberExists(ctx context.Context, tx store.Getter, accountNumber string) (bool, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, transaction models.Transaction) error
	GetByID(ctx context.Context, transactionID string) (models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]models.Transaction, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

// LedgerService owns account balances and the transaction history. Every
// balance change and its transaction record commit together.
type LedgerService struct {
	txRunner     db.TxRunner
	accounts     AccountStore
	transactions TransactionStore
	audit        AuditStore
	notifier     Notifier
	metrics      MetricsRecorder
	logger       *zap.Logger
	now          func() time.Time
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, transactions TransactionStore, audit AuditStore, notifier Notifier, metrics MetricsRecorder, logger *zap.Logger) *LedgerService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		txRunner:     txRunner,
		accounts:     accounts,
		transactions: transactions,
		audit:        audit,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type TransferRequest struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Description   *string
}

func (s *LedgerService) CreateAccount(ctx context.Context, input models.AccountInput) (_ models.Account, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "create_account", attribute.String("user.id", input.UserID))
	defer func() { finish(err) }()

	account, err := models.NewAccount(input, s.now())
	if err != nil {
		return models.Account{}, err
	}
	generated := input.AccountNumber == ""
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.reserveAccountNumber(ctx, tx, &account, generated); err != nil {
			return err
		}
		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if account.Balance.IsPositive() {
			description := initialDepositDescription
			opening, err := models.NewTransaction(models.TransactionInput{
				AccountID:       account.ID,
				TransactionType: models.TransactionDeposit,
				Amount:          account.Balance,
				Description:     &description,
			}, account.CreatedAt)
			if err != nil {
				return err
			}
			if err := s.transactions.Create(ctx, tx, opening); err != nil {
				return fmt.Errorf("record initial deposit: %w", err)
			}
		}
		return s.logAudit(ctx, tx, "account.create", "account", account.ID, map[string]string{
			"account_type":   string(account.AccountType),
			"account_number": account.AccountNumber,
			"balance":        money.Format(account.Balance),
		})
	})
	if err != nil {
		return models.Account{}, err
	}
	s.logger.Debug("account created",
		zap.String("account_id", account.ID),
		zap.String("user_id", account.UserID),
		zap.String("account_type", string(account.AccountType)),
	)
	s.notifyBalance(account)
	return account, nil
}

// reserveAccountNumber regenerates a colliding generated number; a caller
// supplied number that is taken is an error.
func (s *LedgerService) reserveAccountNumber(ctx context.Context, tx *sqlx.Tx, account *models.Account, generated bool) error {
	for attempt := 0; attempt < maxAccountNumberAttempts; attempt++ {
		exists, err := s.accounts.AccountNumberExists(ctx, tx, account.AccountNumber)
		if err != nil {
			return fmt.Errorf("check account number: %w", err)
		}
		if !exists {
			return nil
		}
		if !generated {
			return ErrDuplicateAccountNumber
		}
		account.AccountNumber = models.GenerateAccountNumber()
	}
	return ErrDuplicateAccountNumber
}

func (s *LedgerService) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return models.Account{}, notFound(err, ErrAccountNotFound)
	}
	return account, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	return s.accounts.GetByUser(ctx, userID)
}

func (s *LedgerService) UpdateAccount(ctx context.Context, accountID string, patch models.AccountPatch) (_ models.Account, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "update_account", attribute.String("account.id", accountID))
	defer func() { finish(err) }()

	var account models.Account
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return notFound(err, ErrAccountNotFound)
		}
		if err := locked.Apply(patch); err != nil {
			return err
		}
		if err := s.accounts.UpdateAccountType(ctx, tx, accountID, locked.AccountType); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		account = locked
		return s.logAudit(ctx, tx, "account.update", "account", accountID, map[string]string{
			"account_type": string(locked.AccountType),
		})
	})
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

func (s *LedgerService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (_ decimal.Decimal, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "deposit", attribute.String("account.id", accountID))
	defer func() { finish(err) }()

	account, err := s.applyToAccount(ctx, accountID, models.TransactionDeposit, amount, description, (*models.Account).Deposit)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *LedgerService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (_ decimal.Decimal, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "withdraw", attribute.String("account.id", accountID))
	defer func() { finish(err) }()

	account, err := s.applyToAccount(ctx, accountID, models.TransactionWithdrawal, amount, description, (*models.Account).Withdraw)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// applyToAccount runs a single-account balance change and records it.
func (s *LedgerService) applyToAccount(ctx context.Context, accountID string, txType models.TransactionType, amount decimal.Decimal, description *string, change func(*models.Account, decimal.Decimal) (decimal.Decimal, error)) (models.Account, error) {
	var account models.Account
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return notFound(err, ErrAccountNotFound)
		}
		if !locked.Active {
			return ErrAccountInactive
		}
		if _, err := change(&locked, amount); err != nil {
			return err
		}
		record, err := models.NewTransaction(models.TransactionInput{
			AccountID:       accountID,
			TransactionType: txType,
			Amount:          amount,
			Description:     description,
		}, s.now())
		if err != nil {
			return err
		}
		if err := s.accounts.UpdateBalance(ctx, tx, accountID, locked.Balance); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if err := s.transactions.Create(ctx, tx, record); err != nil {
			return fmt.Errorf("record %s: %w", txType, err)
		}
		account = locked
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	s.notifyBalance(account)
	return account, nil
}

func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (_ models.Transaction, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "transfer",
		attribute.String("account.from", req.FromAccountID),
		attribute.String("account.to", req.ToAccountID),
	)
	defer func() { finish(err) }()

	var record models.Transaction
	var from, to models.Account
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if req.FromAccountID == req.ToAccountID {
			if _, err := s.accounts.GetForUpdate(ctx, tx, req.FromAccountID); err != nil {
				return notFound(err, ErrAccountNotFound)
			}
			return ErrSameAccountTransfer
		}
		fromAccount, toAccount, err := lockTwoAccounts(ctx, tx, s.accounts, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		if !fromAccount.Active || !toAccount.Active {
			return ErrAccountInactive
		}
		if _, err := fromAccount.Withdraw(req.Amount); err != nil {
			return err
		}
		if _, err := toAccount.Deposit(req.Amount); err != nil {
			return err
		}
		destination := req.ToAccountID
		record, err = models.NewTransaction(models.TransactionInput{
			AccountID:            req.FromAccountID,
			TransactionType:      models.TransactionTransfer,
			Amount:               req.Amount,
			Description:          req.Description,
			DestinationAccountID: &destination,
		}, s.now())
		if err != nil {
			return err
		}
		if err := s.accounts.UpdateBalance(ctx, tx, req.FromAccountID, fromAccount.Balance); err != nil {
			return fmt.Errorf("debit source: %w", err)
		}
		if err := s.accounts.UpdateBalance(ctx, tx, req.ToAccountID, toAccount.Balance); err != nil {
			return fmt.Errorf("credit destination: %w", err)
		}
		if err := s.transactions.Create(ctx, tx, record); err != nil {
			return fmt.Errorf("record transfer: %w", err)
		}
		from, to = fromAccount, toAccount
		return s.logAudit(ctx, tx, "transfer", "transaction", record.ID, map[string]string{
			"from_account_id": req.FromAccountID,
			"to_account_id":   req.ToAccountID,
			"amount":          money.Format(req.Amount),
		})
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.notifyBalance(from)
	s.notifyBalance(to)
	return record, nil
}

func (s *LedgerService) CloseAccount(ctx context.Context, accountID string) (_ models.Account, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "close_account", attribute.String("account.id", accountID))
	defer func() { finish(err) }()

	var account models.Account
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return notFound(err, ErrAccountNotFound)
		}
		if err := locked.Close(); err != nil {
			return err
		}
		if err := s.accounts.SetActive(ctx, tx, accountID, false); err != nil {
			return fmt.Errorf("close account: %w", err)
		}
		account = locked
		return s.logAudit(ctx, tx, "account.close", "account", accountID, nil)
	})
	if err != nil {
		return models.Account{}, err
	}
	s.notifyBalance(account)
	return account, nil
}

// ListTransactions returns every transaction touching the account, as source
// or as transfer destination, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.transactions.ListByAccount(ctx, accountID)
}

func (s *LedgerService) ListUserTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.transactions.ListByUser(ctx, userID)
}

func (s *LedgerService) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	record, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, notFound(err, ErrTransactionNotFound)
	}
	return record, nil
}

func (s *LedgerService) logAudit(ctx context.Context, tx store.Execer, action, entityType, entityID string, data map[string]string) error {
	payload := []byte("{}")
	if len(data) > 0 {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = encoded
	}
	if err := s.audit.Log(ctx, tx, ActorFromContext(ctx), action, entityType, entityID, string(payload)); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}

func (s *LedgerService) notifyBalance(account models.Account) {
	s.notifier.BroadcastBalance(account.UserID, websocket.BalanceUpdate{
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		Balance:       money.Format(account.Balance),
		Active:        account.Active,
	})
}

// lockTwoAccounts takes both row locks in id order so concurrent transfers in
// opposite directions cannot deadlock, then returns them in argument order.
func lockTwoAccounts(ctx context.Context, tx store.Getter, accounts AccountStore, firstID, secondID string) (models.Account, models.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	leftAccount, err := accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return models.Account{}, models.Account{}, notFound(err, ErrAccountNotFound)
	}
	rightAccount, err := accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return models.Account{}, models.Account{}, notFound(err, ErrAccountNotFound)
	}
	if firstID == leftID {
		return leftAccount, rightAccount, nil
	}
	return rightAccount, leftAccount, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}
