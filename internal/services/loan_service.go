package services

import (
	"context"
	"encoding/json"
	"errors"
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

type LoanStore interface {
	Create(ctx context.Context, tx store.Execer, loan models.Loan) error
	GetByID(ctx context.Context, loanID string) (models.Loan, error)
	GetByUser(ctx context.Context, userID string) ([]models.Loan, error)
	ListAll(ctx context.Context, status string) ([]models.Loan, error)
	GetForUpdate(ctx context.Context, tx store.Getter, loanID string) (models.Loan, error)
	Update(ctx context.Context, tx store.Execer, loan models.Loan) error
}

// AccountFunds moves money in and out of a single account, each call in its
// own committed transaction. LedgerService implements it.
type AccountFunds interface {
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error)
}

type LoanService struct {
	txRunner db.TxRunner
	loans    LoanStore
	funds    AccountFunds
	audit    AuditStore
	notifier Notifier
	metrics  MetricsRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewLoanService(txRunner db.TxRunner, loans LoanStore, funds AccountFunds, audit AuditStore, notifier Notifier, metrics MetricsRecorder, logger *zap.Logger) *LoanService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanService{
		txRunner: txRunner,
		loans:    loans,
		funds:    funds,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PaymentQuote is the fixed monthly instalment for a loan's current terms.
type PaymentQuote struct {
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	TermMonths       int             `json:"term_months"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	Principal        decimal.Decimal `json:"principal"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

func (s *LoanService) ApplyForLoan(ctx context.Context, input models.LoanInput) (_ models.Loan, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "apply_for_loan", attribute.String("user.id", input.UserID))
	defer func() { finish(err) }()

	loan, err := models.NewLoan(input, s.now())
	if err != nil {
		return models.Loan{}, err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.loans.Create(ctx, tx, loan); err != nil {
			return fmt.Errorf("create loan: %w", err)
		}
		return s.logAudit(ctx, tx, "loan.apply", loan.ID, map[string]string{
			"loan_type":   string(loan.LoanType),
			"amount":      money.Format(loan.Amount),
			"term_months": fmt.Sprint(loan.TermMonths),
		})
	})
	if err != nil {
		return models.Loan{}, err
	}
	return loan, nil
}

func (s *LoanService) GetLoan(ctx context.Context, loanID string) (models.Loan, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return models.Loan{}, notFound(err, ErrLoanNotFound)
	}
	return loan, nil
}

func (s *LoanService) ListUserLoans(ctx context.Context, userID string) ([]models.Loan, error) {
	return s.loans.GetByUser(ctx, userID)
}

// ListLoans returns every loan, optionally restricted to one status.
func (s *LoanService) ListLoans(ctx context.Context, status *models.LoanStatus) ([]models.Loan, error) {
	filter := ""
	if status != nil {
		filter = string(*status)
	}
	return s.loans.ListAll(ctx, filter)
}

// UpdateLoan applies the part of update the loan's status allows; other
// fields are ignored.
func (s *LoanService) UpdateLoan(ctx context.Context, loanID string, update models.LoanUpdate) (_ models.Loan, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "update_loan", attribute.String("loan.id", loanID))
	defer func() { finish(err) }()

	return s.mutate(ctx, loanID, "loan.update", func(loan *models.Loan) error {
		return loan.ApplyUpdate(update)
	})
}

func (s *LoanService) Approve(ctx context.Context, loanID string) (_ models.Loan, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "approve_loan", attribute.String("loan.id", loanID))
	defer func() { finish(err) }()

	return s.mutate(ctx, loanID, "loan.approve", func(loan *models.Loan) error {
		return loan.Approve(s.now())
	})
}

func (s *LoanService) Reject(ctx context.Context, loanID string) (_ models.Loan, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "reject_loan", attribute.String("loan.id", loanID))
	defer func() { finish(err) }()

	return s.mutate(ctx, loanID, "loan.reject", (*models.Loan).Reject)
}

func (s *LoanService) Activate(ctx context.Context, loanID string) (_ models.Loan, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "activate_loan", attribute.String("loan.id", loanID))
	defer func() { finish(err) }()

	return s.mutate(ctx, loanID, "loan.activate", (*models.Loan).Activate)
}

// MakePayment applies a payment to an active loan and returns the remaining
// balance. The loan is paid off once the balance reaches zero.
func (s *LoanService) MakePayment(ctx context.Context, loanID string, amount decimal.Decimal) (_ decimal.Decimal, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "loan_payment", attribute.String("loan.id", loanID))
	defer func() { finish(err) }()

	loan, _, err := s.pay(ctx, loanID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return loan.Balance, nil
}

// pay applies amount to the locked loan and reports how much of it the
// balance absorbed. A payment above the balance is absorbed only in part.
func (s *LoanService) pay(ctx context.Context, loanID string, amount decimal.Decimal) (models.Loan, decimal.Decimal, error) {
	var applied decimal.Decimal
	loan, err := s.mutate(ctx, loanID, "loan.payment", func(loan *models.Loan) error {
		before := loan.Balance
		remaining, err := loan.Pay(amount)
		if err != nil {
			return err
		}
		applied = before.Sub(remaining)
		return nil
	})
	if err != nil {
		return models.Loan{}, decimal.Zero, err
	}
	return loan, applied, nil
}

// MakePaymentFromAccount withdraws amount from the account and applies it to
// the loan. Closed loans are refused before any money moves, and the
// withdrawal never exceeds the outstanding balance. The two steps commit
// separately. When the loan step fails the withdrawal is refunded, and when
// the loan absorbed less than was withdrawn the difference is refunded. A
// failed refund returns ErrCompensationFailed joined with its causes.
func (s *LoanService) MakePaymentFromAccount(ctx context.Context, loanID, accountID string, amount decimal.Decimal) (_ decimal.Decimal, err error) {
	ctx, finish := startOperation(ctx, s.metrics, "loan_payment_from_account",
		attribute.String("loan.id", loanID),
		attribute.String("account.id", accountID),
	)
	defer func() { finish(err) }()

	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	if loan.Status.Terminal() {
		return decimal.Zero, &models.LoanStateError{Status: loan.Status, Action: models.ActionPay}
	}

	charge := amount
	if loan.Balance.IsPositive() && charge.GreaterThan(loan.Balance) {
		charge = loan.Balance
	}

	withdrawal := "loan payment " + loanID
	if _, err := s.funds.Withdraw(ctx, accountID, charge, &withdrawal); err != nil {
		return decimal.Zero, err
	}

	paid, applied, payErr := s.pay(ctx, loanID, charge)
	if payErr == nil {
		excess := charge.Sub(applied)
		if !excess.IsPositive() {
			return paid.Balance, nil
		}
		// a concurrent payment shrank the balance after it was read
		if err := s.refundExcess(ctx, loanID, accountID, excess); err != nil {
			return decimal.Zero, err
		}
		return paid.Balance, nil
	}

	refund := "loan payment refund " + loanID
	// the refund must run even when the caller's context is already done
	refundCtx := context.WithoutCancel(ctx)
	if _, refundErr := s.funds.Deposit(refundCtx, accountID, charge, &refund); refundErr != nil {
		s.metrics.RecordCompensation("failed")
		s.logger.Error("loan payment refund failed",
			zap.String("loan_id", loanID),
			zap.String("account_id", accountID),
			zap.String("amount", money.Format(charge)),
			zap.NamedError("payment_error", payErr),
			zap.NamedError("refund_error", refundErr),
		)
		return decimal.Zero, errors.Join(ErrCompensationFailed, payErr, refundErr)
	}
	s.metrics.RecordCompensation("refunded")
	s.logger.Warn("loan payment refunded",
		zap.String("loan_id", loanID),
		zap.String("account_id", accountID),
		zap.Error(payErr),
	)
	return decimal.Zero, payErr
}

// refundExcess returns the part of a withdrawal the loan did not absorb.
func (s *LoanService) refundExcess(ctx context.Context, loanID, accountID string, excess decimal.Decimal) error {
	refund := "loan overpayment refund " + loanID
	if _, err := s.funds.Deposit(context.WithoutCancel(ctx), accountID, excess, &refund); err != nil {
		s.metrics.RecordCompensation("failed")
		s.logger.Error("loan overpayment refund failed",
			zap.String("loan_id", loanID),
			zap.String("account_id", accountID),
			zap.String("amount", money.Format(excess)),
			zap.Error(err),
		)
		return errors.Join(ErrCompensationFailed, err)
	}
	s.metrics.RecordCompensation("refunded")
	s.logger.Warn("loan overpayment refunded",
		zap.String("loan_id", loanID),
		zap.String("account_id", accountID),
		zap.String("amount", money.Format(excess)),
	)
	return nil
}

func (s *LoanService) CalculateMonthlyPayment(ctx context.Context, loanID string) (PaymentQuote, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return PaymentQuote{}, err
	}
	return PaymentQuote{
		PaymentAmount:    loan.MonthlyPayment(),
		TermMonths:       loan.TermMonths,
		InterestRate:     loan.InterestRate,
		Principal:        loan.Amount,
		RemainingBalance: loan.Balance,
	}, nil
}

// mutate locks the loan, applies change and persists the result with an
// audit row in the same transaction.
func (s *LoanService) mutate(ctx context.Context, loanID, action string, change func(*models.Loan) error) (models.Loan, error) {
	var loan models.Loan
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return notFound(err, ErrLoanNotFound)
		}
		previous := locked.Status
		if err := change(&locked); err != nil {
			return err
		}
		if err := s.loans.Update(ctx, tx, locked); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		loan = locked
		return s.logAudit(ctx, tx, action, loanID, map[string]string{
			"from_status": string(previous),
			"status":      string(locked.Status),
			"balance":     money.Format(locked.Balance),
		})
	})
	if err != nil {
		return models.Loan{}, err
	}
	s.notifier.BroadcastLoan(loan.UserID, websocket.LoanUpdate{
		LoanID:  loan.ID,
		Status:  string(loan.Status),
		Balance: money.Format(loan.Balance),
	})
	return loan, nil
}

func (s *LoanService) logAudit(ctx context.Context, tx store.Execer, action, loanID string, data map[string]string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := s.audit.Log(ctx, tx, ActorFromContext(ctx), action, "loan", loanID, string(payload)); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	return nil
}
