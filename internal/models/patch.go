package models

import "github.com/shopspring/decimal"

// LoanUpdate is a raw update request; nil fields are left untouched.
type LoanUpdate struct {
	LoanType     *string          `json:"loan_type"`
	Amount       *decimal.Decimal `json:"amount"`
	InterestRate *decimal.Decimal `json:"interest_rate"`
	TermMonths   *int             `json:"term_months"`
	Purpose      *string          `json:"purpose"`
}

// LoanPatch is the subset of a LoanUpdate a loan accepts in its current
// phase. It is either a LoanPendingPatch or a LoanRestrictedPatch.
type LoanPatch interface {
	apply(loan *Loan) error
}

// LoanPendingPatch applies while the loan is pending: terms may change.
type LoanPendingPatch struct {
	LoanType     *string
	Amount       *decimal.Decimal
	InterestRate *decimal.Decimal
	TermMonths   *int
	Purpose      *string
}

// LoanRestrictedPatch applies once the loan left pending.
type LoanRestrictedPatch struct {
	Purpose *string
}

// PatchFor narrows update to what the loan's status allows. Fields outside
// the window are dropped without error.
func (l Loan) PatchFor(update LoanUpdate) LoanPatch {
	if l.Status == LoanPending {
		return LoanPendingPatch{
			LoanType:     update.LoanType,
			Amount:       update.Amount,
			InterestRate: update.InterestRate,
			TermMonths:   update.TermMonths,
			Purpose:      update.Purpose,
		}
	}
	return LoanRestrictedPatch{Purpose: update.Purpose}
}

func (l *Loan) ApplyUpdate(update LoanUpdate) error {
	return l.PatchFor(update).apply(l)
}

func (p LoanPendingPatch) apply(loan *Loan) error {
	next := *loan
	if p.LoanType != nil {
		loanType, err := ParseLoanType(*p.LoanType)
		if err != nil {
			return err
		}
		next.LoanType = loanType
	}
	if p.Amount != nil {
		next.Amount = *p.Amount
		// nothing has been repaid while pending
		next.Balance = *p.Amount
	}
	if p.InterestRate != nil {
		next.InterestRate = *p.InterestRate
	}
	if p.TermMonths != nil {
		next.TermMonths = *p.TermMonths
	}
	if err := validateTerms(next.Amount, next.InterestRate, next.TermMonths); err != nil {
		return err
	}
	if p.Purpose != nil {
		next.Purpose = p.Purpose
	}
	*loan = next
	return nil
}

func (p LoanRestrictedPatch) apply(loan *Loan) error {
	if p.Purpose != nil {
		loan.Purpose = p.Purpose
	}
	return nil
}
