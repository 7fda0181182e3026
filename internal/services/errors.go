package services

import (
	"database/sql"
	"errors"
)

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrLoanNotFound           = errors.New("loan not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAccountInactive        = errors.New("account is inactive")
	ErrSameAccountTransfer    = errors.New("cannot transfer to same account")
	ErrDuplicateAccountNumber = errors.New("account number already in use")
	ErrCompensationFailed     = errors.New("loan payment refund failed")
)

// notFound turns a missing row into the given domain error and leaves every
// other error untouched.
func notFound(err error, domainErr error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainErr
	}
	return err
}
