package handlers

import (
	"context"
	"net/http"

	"bankledger/internal/middleware"
	"bankledger/internal/models"
	"bankledger/internal/money"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createAccountRequest struct {
	UserID        string       `json:"user_id"`
	AccountType   string       `json:"account_type"`
	Balance       money.Amount `json:"balance"`
	AccountNumber string       `json:"account_number"`
}

type movementRequest struct {
	Amount      money.Amount `json:"amount"`
	Description *string      `json:"description"`
}

func accountView(account models.Account) map[string]any {
	return map[string]any{
		"account_id":     account.ID,
		"user_id":        account.UserID,
		"account_type":   account.AccountType,
		"account_number": account.AccountNumber,
		"balance":        money.Format(account.Balance),
		"active":         account.Active,
		"created_at":     account.CreatedAt,
	}
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	accounts, err := h.ledger.ListAccounts(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load accounts")
		return
	}
	normalized := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		normalized = append(normalized, accountView(account))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createAccountRequest
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
	balance, err := parseOpeningBalance(req.Balance)
	if err != nil {
		h.respondServiceError(w, r, err, "create_account_failed")
		return
	}
	account, err := h.ledger.CreateAccount(r.Context(), models.AccountInput{
		UserID:        owner,
		AccountType:   req.AccountType,
		Balance:       balance,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "create_account_failed")
		return
	}
	respondJSON(w, http.StatusCreated, accountView(account))
}

// ownedAccount loads the account in the URL and checks the caller may act
// on it. It writes the error response itself and reports false on failure.
func (h *Handler) ownedAccount(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	account, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load account")
		return models.Account{}, false
	}
	if err := h.authorize(r.Context(), account.UserID); err != nil {
		h.respondServiceError(w, r, err, "unable to verify access")
		return models.Account{}, false
	}
	return account, true
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, accountView(account))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var patch models.AccountPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	updated, err := h.ledger.UpdateAccount(r.Context(), account.ID, patch)
	if err != nil {
		h.respondServiceError(w, r, err, "update_account_failed")
		return
	}
	respondJSON(w, http.StatusOK, accountView(updated))
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	closed, err := h.ledger.CloseAccount(r.Context(), account.ID)
	if err != nil {
		h.respondServiceError(w, r, err, "close_account_failed")
		return
	}
	respondJSON(w, http.StatusOK, accountView(closed))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Deposit, "deposit_failed")
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Withdraw, "withdraw_failed")
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, accountID string, amount decimal.Decimal, description *string) (decimal.Decimal, error), fallback string) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.respondServiceError(w, r, err, fallback)
		return
	}
	balance, err := apply(r.Context(), account.ID, amount, req.Description)
	if err != nil {
		h.respondServiceError(w, r, err, fallback)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"account_id": account.ID,
		"balance":    money.Format(balance),
	})
}

func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := h.ownedAccount(w, r)
	if !ok {
		return
	}
	transactions, err := h.ledger.ListTransactions(r.Context(), account.ID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactionViews(transactions))
}
