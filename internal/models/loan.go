package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanType string

const (
	LoanTypePersonal  LoanType = "Personal"
	LoanTypeHome      LoanType = "Home"
	LoanTypeAuto      LoanType = "Auto"
	LoanTypeEducation LoanType = "Education"
	LoanTypeBusiness  LoanType = "Business"
)

func ParseLoanType(raw string) (LoanType, error) {
	switch LoanType(raw) {
	case LoanTypePersonal, LoanTypeHome, LoanTypeAuto, LoanTypeEducation, LoanTypeBusiness:
		return LoanType(raw), nil
	}
	return "", ErrInvalidLoanType
}

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanActive    LoanStatus = "active"
	LoanPaidOff   LoanStatus = "paid_off"
	LoanDefaulted LoanStatus = "defaulted"
)

// ParseLoanStatus accepts every status a stored loan may carry, including
// defaulted, which no lifecycle action produces.
func ParseLoanStatus(raw string) (LoanStatus, error) {
	switch LoanStatus(raw) {
	case LoanPending, LoanApproved, LoanRejected, LoanActive, LoanPaidOff, LoanDefaulted:
		return LoanStatus(raw), nil
	}
	return "", ErrInvalidLoanStatus
}

func (s LoanStatus) Terminal() bool {
	return s == LoanRejected || s == LoanPaidOff || s == LoanDefaulted
}

const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionActivate = "activate"
	ActionPay      = "pay"
)

// Loan carries the principal in Amount and the outstanding principal in
// Balance; Balance stays within [0, Amount].
type Loan struct {
	ID           string          `db:"id" json:"loan_id"`
	UserID       string          `db:"user_id" json:"user_id"`
	LoanType     LoanType        `db:"loan_type" json:"loan_type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	InterestRate decimal.Decimal `db:"interest_rate" json:"interest_rate"`
	TermMonths   int             `db:"term_months" json:"term_months"`
	Purpose      *string         `db:"purpose" json:"purpose,omitempty"`
	Status       LoanStatus      `db:"status" json:"status"`
	Balance      decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ApprovedAt   *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
}

type LoanInput struct {
	UserID       string
	LoanType     string
	Amount       decimal.Decimal
	InterestRate decimal.Decimal
	TermMonths   int
	Purpose      *string
}

func NewLoan(input LoanInput, now time.Time) (Loan, error) {
	loanType, err := ParseLoanType(input.LoanType)
	if err != nil {
		return Loan{}, err
	}
	if err := validateTerms(input.Amount, input.InterestRate, input.TermMonths); err != nil {
		return Loan{}, err
	}
	return Loan{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		LoanType:     loanType,
		Amount:       input.Amount,
		InterestRate: input.InterestRate,
		TermMonths:   input.TermMonths,
		Purpose:      input.Purpose,
		Status:       LoanPending,
		Balance:      input.Amount,
		CreatedAt:    now.UTC(),
	}, nil
}

// Interest rates are annual percentages stored as NUMERIC(7, 4).
const interestRateScale = 4

var maxInterestRate = decimal.NewFromInt(100)

func validateTerms(amount, interestRate decimal.Decimal, termMonths int) error {
	if !isPositiveMoney(amount) {
		return ErrInvalidAmount
	}
	if interestRate.IsNegative() || interestRate.GreaterThan(maxInterestRate) || !interestRate.Equal(interestRate.Round(interestRateScale)) {
		return ErrInvalidInterestRate
	}
	if termMonths <= 0 {
		return ErrInvalidTerm
	}
	return nil
}

func (l *Loan) Approve(now time.Time) error {
	if l.Status != LoanPending {
		return &LoanStateError{Status: l.Status, Action: ActionApprove}
	}
	approvedAt := now.UTC()
	l.Status = LoanApproved
	l.ApprovedAt = &approvedAt
	return nil
}

func (l *Loan) Reject() error {
	if l.Status != LoanPending {
		return &LoanStateError{Status: l.Status, Action: ActionReject}
	}
	l.Status = LoanRejected
	return nil
}

func (l *Loan) Activate() error {
	if l.Status != LoanApproved {
		return &LoanStateError{Status: l.Status, Action: ActionActivate}
	}
	l.Status = LoanActive
	return nil
}

// Pay reduces the outstanding balance and returns what remains. Paying the
// balance or more settles the loan at exactly zero.
func (l *Loan) Pay(amount decimal.Decimal) (decimal.Decimal, error) {
	if !isPositiveMoney(amount) {
		return l.Balance, ErrInvalidAmount
	}
	if l.Status != LoanActive {
		return l.Balance, &LoanStateError{Status: l.Status, Action: ActionPay}
	}
	remaining := l.Balance.Sub(amount)
	if !remaining.IsPositive() {
		l.Status = LoanPaidOff
		remaining = decimal.Zero
	}
	l.Balance = remaining
	return l.Balance, nil
}

func (l Loan) MonthlyPayment() decimal.Decimal {
	return CalculateMonthlyPayment(l.Amount, l.InterestRate, l.TermMonths)
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// CalculateMonthlyPayment returns the fixed payment of an amortizing loan:
// P*r / (1 - (1+r)^-n) with r the monthly rate, or P/n when r is zero.
// The result is rounded half away from zero to cents.
func CalculateMonthlyPayment(principal, annualRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 {
		return decimal.Zero
	}
	term := decimal.NewFromInt(int64(termMonths))
	monthlyRate := annualRatePercent.Div(hundred).Div(twelve)
	if monthlyRate.IsZero() {
		return principal.Div(term).Round(2)
	}
	// (1+r)^n / ((1+r)^n - 1) is the same factor as 1 / (1 - (1+r)^-n)
	// without needing a negative exponent.
	growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(term)
	payment := principal.Mul(monthlyRate).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
	return payment.Round(2)
}
