package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"bankledger/internal/middleware"
	"bankledger/internal/models"
	"bankledger/internal/money"
	"bankledger/internal/services"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

var errForbidden = errors.New("access denied")

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps domain errors to a status and a stable error code.
// Unknown errors map to 500 with an empty code.
func errorStatus(err error) (int, string) {
	var pgErr *pq.Error
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, services.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, services.ErrLoanNotFound):
		return http.StatusNotFound, "loan_not_found"
	case errors.Is(err, services.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction_not_found"
	case errors.Is(err, services.ErrDuplicateAccountNumber):
		return http.StatusConflict, "duplicate_account_number"
	case errors.Is(err, services.ErrCompensationFailed):
		return http.StatusInternalServerError, "payment_refund_failed"
	case errors.Is(err, services.ErrAccountInactive):
		return http.StatusBadRequest, "account_inactive"
	case errors.Is(err, services.ErrSameAccountTransfer):
		return http.StatusBadRequest, "same_account_transfer"
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_funds"
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, money.ErrInvalidAmount), errors.Is(err, money.ErrTooManyDecimals):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, models.ErrNonZeroBalance):
		return http.StatusBadRequest, "non_zero_balance"
	case errors.Is(err, models.ErrInvalidAccountType):
		return http.StatusBadRequest, "invalid_account_type"
	case errors.Is(err, models.ErrInvalidLoanType):
		return http.StatusBadRequest, "invalid_loan_type"
	case errors.Is(err, models.ErrInvalidLoanStatus):
		return http.StatusBadRequest, "invalid_loan_status"
	case errors.Is(err, models.ErrInvalidInterestRate):
		return http.StatusBadRequest, "invalid_interest_rate"
	case errors.Is(err, models.ErrInvalidTerm):
		return http.StatusBadRequest, "invalid_term"
	case errors.Is(err, models.ErrInvalidLoanState):
		return http.StatusBadRequest, "invalid_loan_state"
	case errors.Is(err, models.ErrInvalidTransaction):
		return http.StatusBadRequest, "invalid_transaction"
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, ""
}

// respondServiceError writes the mapped error. Unmapped errors are logged
// and reported with fallback as the code.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", fallback),
			zap.Error(err),
		)
		if code == "" {
			code = fallback
		}
	}
	respondError(w, status, code)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dest)
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// authorize lets the owner through, and any admin.
func (h *Handler) authorize(ctx context.Context, ownerID string) error {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return errForbidden
	}
	if userID == ownerID {
		return nil
	}
	isAdmin, _, err := h.admin.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return errForbidden
	}
	return nil
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
