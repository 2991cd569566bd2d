package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddleware(sessions *fakeSessions) (*Middleware, *TokenCodec) {
	codec := NewTokenCodec([]byte("mw-secret"))
	return NewMiddleware(codec, sessions, nil), codec
}

func issueAccess(t *testing.T, codec *TokenCodec, sessions *fakeSessions, userID int64, email string) (string, string) {
	t.Helper()
	sess := &Session{
		ID:        "sess-" + email,
		UserID:    userID,
		Kind:      SessionAccess,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	require.NoError(t, sessions.Save(nil, sess))
	tok, err := codec.SignExpiring(userID, email, sess.ID, time.Hour)
	require.NoError(t, err)
	return tok, sess.ID
}

func TestMiddleware_AdmitsLiveSession(t *testing.T) {
	t.Parallel()

	sessions := newFakeSessions()
	mw, codec := newTestMiddleware(sessions)
	tok, sessID := issueAccess(t, codec, sessions, 42, "staff@example.com")

	var got Identity
	var called bool
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, called = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, called)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "staff@example.com", got.Email)
	assert.Equal(t, sessID, got.SessionID)
}

func TestMiddleware_MissingOrMalformedHeader(t *testing.T) {
	t.Parallel()

	mw, _ := newTestMiddleware(newFakeSessions())
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	t.Parallel()

	mw, _ := newTestMiddleware(newFakeSessions())
	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

// A correctly signed, unexpired token whose session was deleted from the
// store must be rejected as session-expired, distinct from a bad signature.
func TestMiddleware_RevokedSession(t *testing.T) {
	t.Parallel()

	sessions := newFakeSessions()
	mw, codec := newTestMiddleware(sessions)
	tok, sessID := issueAccess(t, codec, sessions, 7, "gone@example.com")
	require.NoError(t, sessions.Delete(nil, sessID))

	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}

// Temp sessions never pass the gate, even with a valid signature.
func TestMiddleware_TempSessionRejected(t *testing.T) {
	t.Parallel()

	sessions := newFakeSessions()
	mw, codec := newTestMiddleware(sessions)
	sess := &Session{
		ID:        "temp-1",
		UserID:    9,
		Kind:      SessionTOTPVerify,
		ExpiresAt: time.Now().Add(5 * time.Minute),
		CreatedAt: time.Now(),
	}
	require.NoError(t, sessions.Save(nil, sess))
	tok, err := codec.SignExpiring(9, "temp@example.com", sess.ID, 5*time.Minute)
	require.NoError(t, err)

	h := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "session expired")
}
