package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movestash/service-quoting-go/internal/user/entity"
)

type fakeUsers struct {
	byEmail  map[string]*entity.User
	byID     map[int64]*entity.User
	incCalls int
}

func newFakeUsers(users ...*entity.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]*entity.User{}, byID: map[int64]*entity.User{}}
	for _, u := range users {
		f.byEmail[u.Email] = u
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*entity.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) IncrementFailedAttempts(_ context.Context, id int64) (int, error) {
	f.incCalls++
	u := f.byID[id]
	u.FailedAttempts++
	return u.FailedAttempts, nil
}

func (f *fakeUsers) LockUntil(_ context.Context, id int64, until time.Time) error {
	f.byID[id].LockedUntil = &until
	return nil
}

func (f *fakeUsers) ResetLockout(_ context.Context, id int64) error {
	u := f.byID[id]
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (f *fakeUsers) EnableTOTP(_ context.Context, id int64, secret string) error {
	u := f.byID[id]
	u.TOTPSecret = &secret
	u.TOTPEnabled = true
	return nil
}

type fakeSessions struct {
	m map[string]*Session
}

func newFakeSessions() *fakeSessions { return &fakeSessions{m: map[string]*Session{}} }

func (f *fakeSessions) Save(_ context.Context, s *Session) error {
	cp := *s
	f.m[s.ID] = &cp
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*Session, error) {
	s, ok := f.m[id]
	if !ok || s.Expired(time.Now()) {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) SetPendingSecret(_ context.Context, id, secret string) error {
	if s, ok := f.m[id]; ok {
		s.PendingSecret = &secret
	}
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	delete(f.m, id)
	return nil
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := HashPassword(pw)
	require.NoError(t, err)
	return h
}

func newTestService(t *testing.T, users *fakeUsers, sessions *fakeSessions) *Service {
	t.Helper()
	codec := NewTokenCodec([]byte("test-secret"))
	return NewService(users, sessions, codec, NewTOTPEngine("Movestash"), nil, nil)
}

func TestLogin_UnknownEmail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newFakeUsers(), newFakeSessions())
	_, err := svc.Login(context.Background(), "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_EmptyInput(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newFakeUsers(), newFakeSessions())
	_, err := svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_LockoutAfterFiveFailures(t *testing.T) {
	t.Parallel()

	u := &entity.User{ID: 1, Email: "staff@example.com", PasswordHash: mustHash(t, "right")}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeSessions())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "staff@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	assert.Equal(t, 5, users.incCalls)
	require.NotNil(t, u.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *u.LockedUntil, time.Minute)

	// sixth attempt is rejected without touching the counter, even with the
	// correct password
	_, err := svc.Login(ctx, "staff@example.com", "right")
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Contains(t, err.Error(), "minutes")
	assert.Equal(t, 5, users.incCalls)
}

func TestLogin_SucceedsAfterLockoutElapsed(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Minute)
	u := &entity.User{
		ID:             1,
		Email:          "staff@example.com",
		PasswordHash:   mustHash(t, "right"),
		FailedAttempts: 5,
		LockedUntil:    &past,
	}
	users := newFakeUsers(u)
	svc := newTestService(t, users, newFakeSessions())

	res, err := svc.Login(context.Background(), "staff@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, StepSetupTOTP, res.Step)
	assert.Equal(t, 0, u.FailedAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestLogin_StepDependsOnEnrollment(t *testing.T) {
	t.Parallel()

	secret := "JBSWY3DPEHPK3PXP"
	enrolled := &entity.User{ID: 1, Email: "enrolled@example.com", PasswordHash: mustHash(t, "pw"), TOTPSecret: &secret, TOTPEnabled: true}
	fresh := &entity.User{ID: 2, Email: "fresh@example.com", PasswordHash: mustHash(t, "pw")}
	sessions := newFakeSessions()
	svc := newTestService(t, newFakeUsers(enrolled, fresh), sessions)
	ctx := context.Background()

	res, err := svc.Login(ctx, "enrolled@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, StepVerifyTOTP, res.Step)

	res, err = svc.Login(ctx, "fresh@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, StepSetupTOTP, res.Step)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), res.ExpiresAt, time.Minute)

	// temp token resolves to the stored temp session
	claims, err := svc.codec.Verify(res.TempToken)
	require.NoError(t, err)
	sess, ok := sessions.m[claims.SessionID()]
	require.True(t, ok)
	assert.Equal(t, SessionMFASetup, sess.Kind)
	assert.Equal(t, int64(2), sess.UserID)
}

func TestEnrollmentFlow_EndToEnd(t *testing.T) {
	t.Parallel()

	u := &entity.User{ID: 7, Email: "new@example.com", PasswordHash: mustHash(t, "pw")}
	users := newFakeUsers(u)
	sessions := newFakeSessions()
	svc := newTestService(t, users, sessions)
	ctx := context.Background()

	res, err := svc.Login(ctx, "new@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, StepSetupTOTP, res.Step)

	enr, err := svc.SetupTOTP(ctx, res.TempToken)
	require.NoError(t, err)
	assert.NotEmpty(t, enr.Secret)
	assert.Contains(t, enr.OtpauthURI, "otpauth://totp/")

	// enabling with a wrong code gets rejected and leaves enrollment off
	_, err = svc.EnableTOTP(ctx, res.TempToken, "000000")
	if err == nil {
		t.Skip("generated code collided with 000000")
	}
	assert.ErrorIs(t, err, ErrInvalidTOTPCode)
	assert.False(t, u.TOTPEnabled)

	code, err := svc.totp.CodeAt(enr.Secret, time.Now().UTC())
	require.NoError(t, err)
	grant, err := svc.EnableTOTP(ctx, res.TempToken, code)
	require.NoError(t, err)

	assert.True(t, u.TOTPEnabled)
	require.NotNil(t, u.TOTPSecret)
	assert.Equal(t, enr.Secret, *u.TOTPSecret)

	// the temp session is gone, the access session is live
	claims, err := svc.codec.Verify(grant.Token)
	require.NoError(t, err)
	sess, ok := sessions.m[claims.SessionID()]
	require.True(t, ok)
	assert.Equal(t, SessionAccess, sess.Kind)
	assert.Len(t, sessions.m, 1)
}

func TestSetupTOTP_WrongKind(t *testing.T) {
	t.Parallel()

	secret := "JBSWY3DPEHPK3PXP"
	u := &entity.User{ID: 1, Email: "enrolled@example.com", PasswordHash: mustHash(t, "pw"), TOTPSecret: &secret, TOTPEnabled: true}
	svc := newTestService(t, newFakeUsers(u), newFakeSessions())
	ctx := context.Background()

	res, err := svc.Login(ctx, "enrolled@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, StepVerifyTOTP, res.Step)

	// a totp_verify session cannot be used to start enrollment
	_, err = svc.SetupTOTP(ctx, res.TempToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestEnableTOTP_WithoutSetup(t *testing.T) {
	t.Parallel()

	u := &entity.User{ID: 1, Email: "new@example.com", PasswordHash: mustHash(t, "pw")}
	svc := newTestService(t, newFakeUsers(u), newFakeSessions())
	ctx := context.Background()

	res, err := svc.Login(ctx, "new@example.com", "pw")
	require.NoError(t, err)

	_, err = svc.EnableTOTP(ctx, res.TempToken, "123456")
	assert.ErrorIs(t, err, ErrSetupNotStarted)
}

func TestVerifyTOTPCode(t *testing.T) {
	t.Parallel()

	engine := NewTOTPEngine("Movestash")
	secret, _, err := engine.GenerateSecret("staff@example.com")
	require.NoError(t, err)

	u := &entity.User{ID: 3, Email: "staff@example.com", PasswordHash: mustHash(t, "pw"), TOTPSecret: &secret, TOTPEnabled: true}
	users := newFakeUsers(u)
	sessions := newFakeSessions()
	svc := newTestService(t, users, sessions)
	ctx := context.Background()

	res, err := svc.Login(ctx, "staff@example.com", "pw")
	require.NoError(t, err)

	// a wrong code feeds the same lockout counter as a wrong password
	_, err = svc.VerifyTOTPCode(ctx, res.TempToken, "999999")
	if err == nil {
		t.Skip("generated code collided with 999999")
	}
	assert.ErrorIs(t, err, ErrInvalidTOTPCode)
	assert.Equal(t, 1, users.incCalls)

	code, err := engine.CodeAt(secret, time.Now().UTC())
	require.NoError(t, err)
	grant, err := svc.VerifyTOTPCode(ctx, res.TempToken, code)
	require.NoError(t, err)
	assert.Equal(t, int64(3), grant.UserID)
	assert.Equal(t, 0, u.FailedAttempts)

	claims, err := svc.codec.Verify(grant.Token)
	require.NoError(t, err)
	sess, ok := sessions.m[claims.SessionID()]
	require.True(t, ok)
	assert.Equal(t, SessionAccess, sess.Kind)
}

func TestVerifyTOTPCode_ExpiredTempToken(t *testing.T) {
	t.Parallel()

	u := &entity.User{ID: 3, Email: "staff@example.com", PasswordHash: mustHash(t, "pw")}
	sessions := newFakeSessions()
	svc := newTestService(t, newFakeUsers(u), sessions)
	ctx := context.Background()

	res, err := svc.Login(ctx, "staff@example.com", "pw")
	require.NoError(t, err)

	// simulate lazy expiry: the row is still there but past exp
	claims, err := svc.codec.Verify(res.TempToken)
	require.NoError(t, err)
	sessions.m[claims.SessionID()].ExpiresAt = time.Now().Add(-time.Second)

	_, err = svc.SetupTOTP(ctx, res.TempToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	sessions := newFakeSessions()
	svc := newTestService(t, newFakeUsers(), sessions)
	ctx := context.Background()

	require.NoError(t, svc.Logout(ctx, "never-existed"))
	require.NoError(t, svc.Logout(ctx, "never-existed"))
}
