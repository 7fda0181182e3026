package handlers

import (
	"context"
	"net/http"
	"strings"

	"bankledger/internal/middleware"
	"bankledger/internal/models"
	"bankledger/internal/money"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type loanApplicationRequest struct {
	UserID       string          `json:"user_id"`
	LoanType     string          `json:"loan_type"`
	Amount       money.Amount    `json:"amount"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	TermMonths   int             `json:"term_months"`
	Purpose      *string         `json:"purpose"`
}

type loanPaymentRequest struct {
	Amount    money.Amount `json:"amount"`
	AccountID string       `json:"account_id"`
}

func loanView(loan models.Loan) map[string]any {
	return map[string]any{
		"loan_id":       loan.ID,
		"user_id":       loan.UserID,
		"loan_type":     loan.LoanType,
		"amount":        money.Format(loan.Amount),
		"interest_rate": loan.InterestRate.String(),
		"term_months":   loan.TermMonths,
		"purpose":       optionalString(loan.Purpose),
		"status":        loan.Status,
		"balance":       money.Format(loan.Balance),
		"created_at":    loan.CreatedAt,
		"approved_at":   loan.ApprovedAt,
	}
}

func loanViews(loans []models.Loan) []map[string]any {
	normalized := make([]map[string]any, 0, len(loans))
	for _, loan := range loans {
		normalized = append(normalized, loanView(loan))
	}
	return normalized
}

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	loans, err := h.loans.ListUserLoans(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load loans")
		return
	}
	respondJSON(w, http.StatusOK, loanViews(loans))
}

func (h *Handler) ApplyForLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req loanApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	owner := userID
	if req.UserID != "" {
		owner = req.UserID
	}
	if err := h.authorize(r.Context(), owner); err != nil {
		h.respondServiceError(w, r, err, "unable to verify access")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err, "loan_application_failed")
		return
	}
	loan, err := h.loans.ApplyForLoan(r.Context(), models.LoanInput{
		UserID:       owner,
		LoanType:     req.LoanType,
		Amount:       amount,
		InterestRate: req.InterestRate,
		TermMonths:   req.TermMonths,
		Purpose:      req.Purpose,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "loan_application_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"loan_id": loan.ID,
		"status":  loan.Status,
	})
}

// ownedLoan loads the loan in the URL and checks the caller may act on it.
func (h *Handler) ownedLoan(w http.ResponseWriter, r *http.Request) (models.Loan, bool) {
	loan, err := h.loans.GetLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load loan")
		return models.Loan{}, false
	}
	if err := h.authorize(r.Context(), loan.UserID); err != nil {
		h.respondServiceError(w, r, err, "unable to verify access")
		return models.Loan{}, false
	}
	return loan, true
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, loanView(loan))
}

func (h *Handler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	var update models.LoanUpdate
	if err := decodeJSON(r, &update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	updated, err := h.loans.UpdateLoan(r.Context(), loan.ID, update)
	if err != nil {
		h.respondServiceError(w, r, err, "update_loan_failed")
		return
	}
	respondJSON(w, http.StatusOK, loanView(updated))
}

func (h *Handler) MakePayment(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	var req loanPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err, "loan_payment_failed")
		return
	}
	var remaining decimal.Decimal
	if accountID := strings.TrimSpace(req.AccountID); accountID != "" {
		account, err := h.ledger.GetAccount(r.Context(), accountID)
		if err != nil {
			h.respondServiceError(w, r, err, "loan_payment_failed")
			return
		}
		if err := h.authorize(r.Context(), account.UserID); err != nil {
			h.respondServiceError(w, r, err, "loan_payment_failed")
			return
		}
		remaining, err = h.loans.MakePaymentFromAccount(r.Context(), loan.ID, accountID, amount)
		if err != nil {
			h.respondServiceError(w, r, err, "loan_payment_failed")
			return
		}
	} else {
		remaining, err = h.loans.MakePayment(r.Context(), loan.ID, amount)
		if err != nil {
			h.respondServiceError(w, r, err, "loan_payment_failed")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"loan_id":           loan.ID,
		"remaining_balance": money.Format(remaining),
	})
}

func (h *Handler) PaymentAmount(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.ownedLoan(w, r)
	if !ok {
		return
	}
	quote, err := h.loans.CalculateMonthlyPayment(r.Context(), loan.ID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to calculate payment")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"payment_amount":    money.Format(quote.PaymentAmount),
		"term_months":       quote.TermMonths,
		"interest_rate":     quote.InterestRate.String(),
		"principal":         money.Format(quote.Principal),
		"remaining_balance": money.Format(quote.RemainingBalance),
	})
}

func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.transitionLoan(w, r, h.loans.Approve, "approve_loan_failed")
}

func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	h.transitionLoan(w, r, h.loans.Reject, "reject_loan_failed")
}

func (h *Handler) ActivateLoan(w http.ResponseWriter, r *http.Request) {
	h.transitionLoan(w, r, h.loans.Activate, "activate_loan_failed")
}

func (h *Handler) transitionLoan(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, loanID string) (models.Loan, error), fallback string) {
	loan, err := transition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err, fallback)
		return
	}
	respondJSON(w, http.StatusOK, loanView(loan))
}

func (h *Handler) AdminListLoans(w http.ResponseWriter, r *http.Request) {
	var status *models.LoanStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParseLoanStatus(raw)
		if err != nil {
			h.respondServiceError(w, r, err, "unable to load loans")
			return
		}
		status = &parsed
	}
	loans, err := h.loans.ListLoans(r.Context(), status)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load loans")
		return
	}
	respondJSON(w, http.StatusOK, loanViews(loans))
}
