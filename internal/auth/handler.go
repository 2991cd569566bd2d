package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the login and MFA endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// TOTPRequest carries the temp token and, for enable/verify, the code.
type TOTPRequest struct {
	TempToken string `json:"temp_token"`
	Code      string `json:"code"`
}

func (h *Handler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	var req TOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	enr, err := h.svc.SetupTOTP(r.Context(), req.TempToken)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, enr)
}

func (h *Handler) EnableTOTP(w http.ResponseWriter, r *http.Request) {
	var req TOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	grant, err := h.svc.EnableTOTP(r.Context(), req.TempToken, req.Code)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, grant)
}

func (h *Handler) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req TOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	grant, err := h.svc.VerifyTOTPCode(r.Context(), req.TempToken, req.Code)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, grant)
}

// Logout runs behind the middleware and tears down the caller's own session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.svc.Logout(r.Context(), ident.SessionID); err != nil {
		h.logger.Warnw("logout failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the resolved identity for the presented token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"user_id": ident.UserID, "email": ident.Email})
}

// writeAuthError maps sentinel errors to status codes. Internal detail stays
// in the logs; the client sees only the taxonomy bucket.
func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, ErrAccountLocked):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidTOTPCode):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid verification code"})
	case errors.Is(err, ErrSessionExpired):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
	case errors.Is(err, ErrInvalidToken):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	case errors.Is(err, ErrSetupNotStarted):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "totp setup not started"})
	default:
		h.logger.Warnw("auth request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
