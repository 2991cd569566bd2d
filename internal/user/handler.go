package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/movestash/service-quoting-go/internal/auth"
)

// Handler exposes the staff account endpoints. Both run behind the auth
// middleware.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// ProvisionRequest is the account creation payload.
type ProvisionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProvisionResponse carries the new account id.
type ProvisionResponse struct {
	ID int64 `json:"id"`
}

func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	id, err := h.svc.Provision(r.Context(), ident.Email, req.Email, req.Password)
	if err != nil {
		h.writeUserError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ProvisionResponse{ID: id})
}

// ChangePasswordRequest is the password change payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.svc.ChangePassword(r.Context(), ident.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeUserError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidEmail):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email"})
	case errors.Is(err, ErrWeakPassword):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password too short"})
	case errors.Is(err, ErrEmailTaken):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
	case errors.Is(err, ErrWrongPassword):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "current password does not match"})
	case errors.Is(err, ErrUserNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	default:
		h.logger.Warnw("user request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
