package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Identity is the resolved caller attached to the request context by the
// middleware.
type Identity struct {
	UserID    int64
	Email     string
	SessionID string
}

type ctxKey struct{}

// IdentityFromContext returns the identity attached by the middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware gates protected routes. A request passes only if its bearer
// token verifies cryptographically and its embedded session id resolves to
// a live access session; a valid signature alone is not enough, which is
// what makes logout and administrative revocation effective.
type Middleware struct {
	codec    *TokenCodec
	sessions SessionStore
	logger   *zap.SugaredLogger
}

func NewMiddleware(codec *TokenCodec, sessions SessionStore, logger *zap.SugaredLogger) *Middleware {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Middleware{codec: codec, sessions: sessions, logger: logger}
}

// Authenticate wraps a handler with the bearer-token gate.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			m.reject(w, "unauthorized")
			return
		}
		token := strings.TrimSpace(header[len("bearer "):])

		claims, err := m.codec.Verify(token)
		if err != nil {
			m.logger.Debugw("token rejected", "reason", err, "path", r.URL.Path)
			m.reject(w, "invalid token")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			m.reject(w, "invalid token")
			return
		}

		sess, err := m.sessions.Get(r.Context(), claims.SessionID())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Signature was fine but the store says the session is gone:
				// logged out, revoked, or expired.
				m.logger.Debugw("session not live", "session_id", claims.SessionID(), "path", r.URL.Path)
				m.reject(w, "session expired")
				return
			}
			m.logger.Warnw("session lookup failed", "err", err)
			m.reject(w, "unauthorized")
			return
		}
		if sess.Kind != SessionAccess || sess.Expired(time.Now()) {
			m.reject(w, "session expired")
			return
		}

		ident := Identity{UserID: userID, Email: claims.Email, SessionID: sess.ID}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, ident)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
