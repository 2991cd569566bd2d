package quote

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/movestash/service-quoting-go/internal/auth"
)

// Handler exposes quote creation (staff, behind auth) and public lookup.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	in.CreatedBy = ident.UserID

	created, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	publicID := r.PathValue("publicID")
	view, err := h.svc.Lookup(r.Context(), publicID)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeQuoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadZip), errors.Is(err, ErrNoItems), errors.Is(err, ErrOverrideNeedsNote):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrZipNotServed), errors.Is(err, ErrNoRateConfigured), errors.Is(err, ErrPromoNotActive):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrQuoteNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "quote not found"})
	case errors.Is(err, ErrIDSpaceExhausted):
		// broken random source or saturated id space; nothing a retry fixes
		h.logger.Errorw("quote id generation exhausted")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "quote creation failed"})
	default:
		h.logger.Warnw("quote request failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
