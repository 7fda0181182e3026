package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"bankledger/internal/models"
	"bankledger/internal/services"

	"github.com/shopspring/decimal"
)

func pendingLoan(userID string) models.Loan {
	return models.Loan{
		ID:           "loan-1",
		UserID:       userID,
		LoanType:     models.LoanType("Personal"),
		Amount:       decimal.RequireFromString("12000"),
		InterestRate: decimal.RequireFromString("6"),
		TermMonths:   24,
		Status:       models.LoanPending,
		Balance:      decimal.RequireFromString("12000"),
	}
}

func TestApplyForLoan(t *testing.T) {
	var got models.LoanInput
	handler := newTestHandler(testDeps{
		loans: stubLoans{
			applyFn: func(_ context.Context, input models.LoanInput) (models.Loan, error) {
				got = input
				return pendingLoan(input.UserID), nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodPost, "/loans", "user-1", `{"loan_type":"Personal","amount":"12000.00","interest_rate":6.5,"term_months":24,"purpose":"car"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "user-1" || got.LoanType != "Personal" || got.TermMonths != 24 {
		t.Fatalf("unexpected loan input: %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12000")) || !got.InterestRate.Equal(decimal.RequireFromString("6.5")) {
		t.Fatalf("unexpected loan terms: %s %s", got.Amount, got.InterestRate)
	}
	payload := decodeBody[map[string]string](t, rr)
	if payload["loan_id"] != "loan-1" || payload["status"] != "pending" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestApplyForLoanValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		code string
	}{
		{"amount precision", `{"loan_type":"Personal","amount":"1.005","interest_rate":5,"term_months":12}`, nil, "invalid_amount"},
		{"zero amount", `{"loan_type":"Personal","amount":0,"interest_rate":5,"term_months":12}`, nil, "invalid_amount"},
		{"type", `{"loan_type":"Yacht","amount":100,"interest_rate":5,"term_months":12}`, models.ErrInvalidLoanType, "invalid_loan_type"},
		{"term", `{"loan_type":"Personal","amount":100,"interest_rate":5,"term_months":0}`, models.ErrInvalidTerm, "invalid_term"},
		{"rate", `{"loan_type":"Personal","amount":100,"interest_rate":-1,"term_months":12}`, models.ErrInvalidInterestRate, "invalid_interest_rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(testDeps{
				loans: stubLoans{
					applyFn: func(context.Context, models.LoanInput) (models.Loan, error) {
						if tc.err == nil {
							t.Fatalf("did not expect an application")
						}
						return models.Loan{}, tc.err
					},
				},
			})
			rr := doRequest(t, handler, http.MethodPost, "/loans", "user-1", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if payload := decodeBody[map[string]string](t, rr); payload["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, payload)
			}
		})
	}
}

func TestGetLoanAccess(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: onlyAdmin("admin-1"),
		loans: stubLoans{
			getLoanFn: func(_ context.Context, loanID string) (models.Loan, error) {
				if loanID != "loan-1" {
					return models.Loan{}, services.ErrLoanNotFound
				}
				return pendingLoan("user-1"), nil
			},
		},
	})
	cases := []struct {
		path   string
		userID string
		status int
	}{
		{"/loans/loan-1", "user-1", http.StatusOK},
		{"/loans/loan-1", "admin-1", http.StatusOK},
		{"/loans/loan-1", "user-2", http.StatusForbidden},
		{"/loans/loan-9", "user-1", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s as %s", tc.path, tc.userID), func(t *testing.T) {
			rr := doRequest(t, handler, http.MethodGet, tc.path, tc.userID, nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestGetLoanRendersMoney(t *testing.T) {
	handler := newTestHandler(testDeps{
		loans: stubLoans{
			getLoanFn: func(context.Context, string) (models.Loan, error) {
				return pendingLoan("user-1"), nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodGet, "/loans/loan-1", "user-1", nil)
	payload := decodeBody[map[string]any](t, rr)
	if payload["amount"] != "12000.00" || payload["balance"] != "12000.00" || payload["interest_rate"] != "6" {
		t.Fatalf("unexpected loan payload: %v", payload)
	}
}

func TestUpdateLoanForwardsFields(t *testing.T) {
	var got models.LoanUpdate
	handler := newTestHandler(testDeps{
		loans: stubLoans{
			getLoanFn: func(context.Context, string) (models.Loan, error) {
				return pendingLoan("user-1"), nil
			},
			updateLoanFn: func(_ context.Context, _ string, update models.LoanUpdate) (models.Loan, error) {
				got = update
				loan := pendingLoan("user-1")
				loan.TermMonths = *update.TermMonths
				return loan, nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodPut, "/loans/loan-1", "user-1", `{"term_months": 36}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.TermMonths == nil || *got.TermMonths != 36 || got.Amount != nil {
		t.Fatalf("unexpected update: %+v", got)
	}
}

func TestMakePaymentDirect(t *testing.T) {
	handler := newTestHandler(testDeps{
		loans: stubLoans{
			getLoanFn: func(context.Context, string) (models.Loan, error) {
				return pendingLoan("user-1"), nil
			},
			makePaymentFn: func(_ context.Context, loanID string, amount decimal.Decimal) (decimal.Decimal, error) {
				return decimal.RequireFromString("12000").Sub(amount), nil
			},
			payFromAccountFn: func(context.Context, string, string, decimal.Decimal) (decimal.Decimal, error) {
				t.Fatalf("did not expect an account payment")
				return decimal.Zero, nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodPost, "/loans/loan-1/payment", "user-1", `{"amount": "500"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody[map[string]string](t, rr)
	if payload["remaining_balance"] != "11500.00" || payload["loan_id"] != "loan-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestMakePaymentFromAccount(t *testing.T) {
	var gotAccount string
	handler := newTestHandler(testDeps{
		ledger: transferLedger(t, nil),
		loans: stubLoans{
			getLoanFn: func(context.Context, string) (models.Loan, error) {
				return pendingLoan("user-1"), nil
			},
			payFromAccountFn: func(_ context.Context, _ string, accountID string, _ decimal.Decimal) (decimal.Decimal, error) {
				gotAccount = accountID
				return decimal.RequireFromString("11900"), nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodPost, "/loans/loan-1/payment", "user-1", `{"amount": "100.00", "account_id": "acc-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotAccount != "acc-1" {
		t.Fatalf("expected payment from acc-1, got %q", gotAccount)
	}
}

func TestMakePaymentFromAccountErrors(t *testing.T) {
	cases := []struct {
		name    string
		account string
		err     error
		status  int
		code    string
	}{
		{"foreign account", "acc-2", nil, http.StatusForbidden, "access_denied"},
		{"refund failed", "acc-1", fmt.Errorf("%w: ledger down", services.ErrCompensationFailed), http.StatusInternalServerError, "payment_refund_failed"},
		{"closed loan", "acc-1", &models.LoanStateError{Status: models.LoanPaidOff, Action: models.ActionPay}, http.StatusBadRequest, "invalid_loan_state"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(testDeps{
				ledger: transferLedger(t, nil),
				loans: stubLoans{
					getLoanFn: func(context.Context, string) (models.Loan, error) {
						return pendingLoan("user-1"), nil
					},
					payFromAccountFn: func(context.Context, string, string, decimal.Decimal) (decimal.Decimal, error) {
						if tc.err == nil {
							t.Fatalf("did not expect a payment")
						}
						return decimal.Zero, tc.err
					},
				},
			})
			body := fmt.Sprintf(`{"amount": "10.00", "account_id": %q}`, tc.account)
			rr := doRequest(t, handler, http.MethodPost, "/loans/loan-1/payment", "user-1", body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if payload := decodeBody[map[string]string](t, rr); payload["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, payload)
			}
		})
	}
}

func TestPaymentAmount(t *testing.T) {
	handler := newTestHandler(testDeps{
		loans: stubLoans{
			getLoanFn: func(context.Context, string) (models.Loan, error) {
				return pendingLoan("user-1"), nil
			},
			quoteFn: func(context.Context, string) (services.PaymentQuote, error) {
				return services.PaymentQuote{
					PaymentAmount:    decimal.RequireFromString("531.85"),
					TermMonths:       24,
					InterestRate:     decimal.RequireFromString("6"),
					Principal:        decimal.RequireFromString("12000"),
					RemainingBalance: decimal.RequireFromString("12000"),
				}, nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodGet, "/loans/loan-1/payment-amount", "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBody[map[string]any](t, rr)
	if payload["payment_amount"] != "531.85" || payload["principal"] != "12000.00" || payload["term_months"] != float64(24) {
		t.Fatalf("unexpected quote: %v", payload)
	}
}

func TestLoanTransitionsRequireRole(t *testing.T) {
	approved := 0
	loans := stubLoans{
		approveFn: func(context.Context, string) (models.Loan, error) {
			approved++
			loan := pendingLoan("user-1")
			loan.Status = models.LoanApproved
			return loan, nil
		},
	}
	admin := stubAdminStore{
		isAdminFn: func(_ context.Context, userID string) (bool, bool, error) {
			return userID != "user-1", false, nil
		},
		hasRoleFn: func(_ context.Context, userID, _ string) (bool, error) {
			return userID == "officer", nil
		},
	}
	handler := newTestHandler(testDeps{loans: loans, admin: admin})

	cases := []struct {
		userID string
		status int
	}{
		{"user-1", http.StatusForbidden},
		{"auditor", http.StatusForbidden},
		{"officer", http.StatusOK},
	}
	for _, tc := range cases {
		rr := doRequest(t, handler, http.MethodPost, "/loans/loan-1/approve", tc.userID, nil)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.userID, tc.status, rr.Code)
		}
	}
	if approved != 1 {
		t.Fatalf("expected one approval, got %d", approved)
	}
}

func TestRejectFromWrongState(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: onlyAdmin("admin-1"),
		loans: stubLoans{
			rejectFn: func(context.Context, string) (models.Loan, error) {
				return models.Loan{}, &models.LoanStateError{Status: models.LoanActive, Action: models.ActionReject}
			},
		},
	})
	rr := doRequest(t, handler, http.MethodPost, "/loans/loan-1/reject", "admin-1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminListLoansFiltersByStatus(t *testing.T) {
	var got *models.LoanStatus
	handler := newTestHandler(testDeps{
		admin: onlyAdmin("admin-1"),
		loans: stubLoans{
			listLoansFn: func(_ context.Context, status *models.LoanStatus) ([]models.Loan, error) {
				got = status
				return []models.Loan{pendingLoan("user-1")}, nil
			},
		},
	})
	rr := doRequest(t, handler, http.MethodGet, "/admin/loans?status=pending", "admin-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got == nil || *got != models.LoanPending {
		t.Fatalf("expected pending filter, got %v", got)
	}

	rr = doRequest(t, handler, http.MethodGet, "/admin/loans?status=lost", "admin-1", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}
