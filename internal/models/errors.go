package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNonZeroBalance      = errors.New("cannot close account with non-zero balance")
	ErrInvalidAccountType  = errors.New("invalid account type")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidLoanType     = errors.New("invalid loan type")
	ErrInvalidLoanStatus   = errors.New("invalid loan status")
	ErrInvalidInterestRate = errors.New("invalid interest rate")
	ErrInvalidTerm         = errors.New("invalid term")
	ErrInvalidLoanState    = errors.New("invalid loan state")
)

// LoanStateError reports a lifecycle action attempted from a status that
// does not allow it. It matches ErrInvalidLoanState with errors.Is.
type LoanStateError struct {
	Status LoanStatus
	Action string
}

func (e *LoanStateError) Error() string {
	return fmt.Sprintf("cannot %s loan with status '%s'", e.Action, e.Status)
}

func (e *LoanStateError) Unwrap() error {
	return ErrInvalidLoanState
}
