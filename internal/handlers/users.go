package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (h *Handler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, userView(user))
}

func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid email")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("user lookup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, userView(user))
}

func (h *Handler) resolveUserID(ctx context.Context, username, email string) (string, error) {
	if username != "" {
		user, err := h.users.GetByUsername(ctx, username)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
	if email != "" {
		user, err := h.users.GetByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
	return "", sql.ErrNoRows
}
