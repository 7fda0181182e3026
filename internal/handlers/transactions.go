package handlers

import (
	"context"
	"net/http"
	"strings"

	"bankledger/internal/middleware"
	"bankledger/internal/models"
	"bankledger/internal/money"
	"bankledger/internal/services"

	"github.com/go-chi/chi/v5"
)

type transferRequest struct {
	FromAccountID string       `json:"from_account_id"`
	ToAccountID   string       `json:"to_account_id"`
	Amount        money.Amount `json:"amount"`
	Description   *string      `json:"description"`
}

func transactionView(transaction models.Transaction) map[string]any {
	return map[string]any{
		"transaction_id":         transaction.ID,
		"account_id":             transaction.AccountID,
		"transaction_type":       transaction.TransactionType,
		"amount":                 money.Format(transaction.Amount),
		"description":            optionalString(transaction.Description),
		"destination_account_id": optionalString(transaction.DestinationAccountID),
		"created_at":             transaction.CreatedAt,
	}
}

func transactionViews(transactions []models.Transaction) []map[string]any {
	normalized := make([]map[string]any, 0, len(transactions))
	for _, transaction := range transactions {
		normalized = append(normalized, transactionView(transaction))
	}
	return normalized
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.FromAccountID = strings.TrimSpace(req.FromAccountID)
	req.ToAccountID = strings.TrimSpace(req.ToAccountID)
	if req.FromAccountID == "" || req.ToAccountID == "" {
		respondError(w, http.StatusBadRequest, "from_account_id and to_account_id are required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err, "transfer_failed")
		return
	}
	source, err := h.ledger.GetAccount(r.Context(), req.FromAccountID)
	if err != nil {
		h.respondServiceError(w, r, err, "transfer_failed")
		return
	}
	if err := h.authorize(r.Context(), source.UserID); err != nil {
		h.respondServiceError(w, r, err, "transfer_failed")
		return
	}
	transaction, err := h.ledger.Transfer(r.Context(), services.TransferRequest{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Description:   req.Description,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "transfer_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success":        true,
		"transaction_id": transaction.ID,
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactions, err := h.ledger.ListUserTransactions(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactionViews(transactions))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load transaction")
		return
	}
	if err := h.authorizeTransaction(r.Context(), transaction); err != nil {
		h.respondServiceError(w, r, err, "unable to verify access")
		return
	}
	respondJSON(w, http.StatusOK, transactionView(transaction))
}

// authorizeTransaction admits the owner of either side, or an admin.
func (h *Handler) authorizeTransaction(ctx context.Context, transaction models.Transaction) error {
	accountIDs := []string{transaction.AccountID}
	if transaction.DestinationAccountID != nil {
		accountIDs = append(accountIDs, *transaction.DestinationAccountID)
	}
	userID, _ := middleware.UserIDFromContext(ctx)
	for _, accountID := range accountIDs {
		account, err := h.ledger.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.UserID == userID {
			return nil
		}
	}
	return h.authorize(ctx, "")
}
