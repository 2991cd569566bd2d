package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movestash/service-quoting-go/internal/user/entity"
	"github.com/movestash/service-quoting-go/pkg/utilities"
)

// sentinel errors for common failure modes
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidTOTPCode    = errors.New("invalid verification code")
	ErrSessionExpired     = errors.New("session expired")
	ErrSetupNotStarted    = errors.New("totp setup not started")
)

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	IncrementFailedAttempts(ctx context.Context, id int64) (int, error)
	LockUntil(ctx context.Context, id int64, until time.Time) error
	ResetLockout(ctx context.Context, id int64) error
	EnableTOTP(ctx context.Context, id int64, secret string) error
}

// SessionStore persists issued sessions.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	SetPendingSecret(ctx context.Context, id, secret string) error
	Delete(ctx context.Context, id string) error
}

// AuditSink records security-relevant events. Implementations must not fail
// the calling request.
type AuditSink interface {
	Record(ctx context.Context, actor, action, detail string)
}

// NextStep tells the client which round trip follows a successful password
// check.
type NextStep string

const (
	StepSetupTOTP  NextStep = "mfa_setup"
	StepVerifyTOTP NextStep = "totp_verify"
)

// LoginResult is the outcome of a correct password: a short-lived temp token
// and the step the client must perform with it.
type LoginResult struct {
	Step      NextStep  `json:"step"`
	TempToken string    `json:"temp_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Enrollment is returned from SetupTOTP for QR-code display.
type Enrollment struct {
	Secret     string `json:"secret"`
	OtpauthURI string `json:"otpauth_uri"`
}

// AccessGrant is a full access session plus its signed bearer token.
type AccessGrant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
}

// Service orchestrates login, lockout, MFA enrollment and MFA verification.
//
// Per login attempt the flow is: lockout check, password check (failure
// increments the counter and may lock), then a 5-minute temp session tagged
// for enrollment or verification, then the TOTP step which trades the temp
// session for an access session. TOTP failures feed the same counter as
// password failures so brute-force protection is uniform across both
// factors; a user can therefore lock an account they already password-
// authenticated into, which is a known tradeoff of sharing the counter.
type Service struct {
	users    UserStore
	sessions SessionStore
	codec    *TokenCodec
	totp     *TOTPEngine
	audit    AuditSink
	logger   *zap.SugaredLogger

	// configuration knobs
	MaxFailed    int
	LockDuration time.Duration
	TempTTL      time.Duration
	AccessTTL    time.Duration
}

func NewService(users UserStore, sessions SessionStore, codec *TokenCodec, totp *TOTPEngine, audit AuditSink, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		users:        users,
		sessions:     sessions,
		codec:        codec,
		totp:         totp,
		audit:        audit,
		logger:       logger,
		MaxFailed:    5,
		LockDuration: 15 * time.Minute,
		TempTTL:      5 * time.Minute,
		AccessTTL:    time.Hour,
	}
}

// Login checks the password and, if correct, issues a temp session for the
// TOTP step. Unknown email and wrong password are indistinguishable to the
// caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	// Lockout precedes password verification so ignored attempts do not
	// extend the window.
	now := time.Now()
	if u.Locked(now) {
		mins := int(u.LockedUntil.Sub(now).Minutes()) + 1
		s.record(ctx, u.Email, "auth.login.locked", "")
		return nil, fmt.Errorf("%w: try again in %d minutes", ErrAccountLocked, mins)
	}

	if !VerifyPassword(password, u.PasswordHash) {
		s.registerFailure(ctx, u)
		return nil, ErrInvalidCredentials
	}

	if err := s.users.ResetLockout(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("reset lockout: %w", err)
	}

	step := StepVerifyTOTP
	if !u.TOTPEnabled || u.TOTPSecret == nil {
		step = StepSetupTOTP
	}
	sess := &Session{
		ID:        utilities.NewSessionID(),
		UserID:    u.ID,
		Kind:      SessionKind(step),
		ExpiresAt: now.Add(s.TempTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save temp session: %w", err)
	}
	token, err := s.codec.SignExpiring(u.ID, u.Email, sess.ID, s.TempTTL)
	if err != nil {
		return nil, fmt.Errorf("sign temp token: %w", err)
	}
	s.record(ctx, u.Email, "auth.login.password_ok", string(step))
	return &LoginResult{Step: step, TempToken: token, ExpiresAt: sess.ExpiresAt}, nil
}

// SetupTOTP generates a fresh secret for an mfa_setup temp session and
// stores it pending against the session row until confirmed.
func (s *Service) SetupTOTP(ctx context.Context, tempToken string) (*Enrollment, error) {
	u, sess, err := s.resolveTempSession(ctx, tempToken, SessionMFASetup)
	if err != nil {
		return nil, err
	}
	secret, uri, err := s.totp.GenerateSecret(u.Email)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	if err := s.sessions.SetPendingSecret(ctx, sess.ID, secret); err != nil {
		return nil, fmt.Errorf("store pending secret: %w", err)
	}
	return &Enrollment{Secret: secret, OtpauthURI: uri}, nil
}

// EnableTOTP confirms a pending enrollment secret with a code, persists it
// to the user record and trades the temp session for an access grant.
func (s *Service) EnableTOTP(ctx context.Context, tempToken, code string) (*AccessGrant, error) {
	u, sess, err := s.resolveTempSession(ctx, tempToken, SessionMFASetup)
	if err != nil {
		return nil, err
	}
	if sess.PendingSecret == nil {
		return nil, ErrSetupNotStarted
	}
	if !s.totp.Verify(*sess.PendingSecret, code) {
		return nil, ErrInvalidTOTPCode
	}
	if err := s.users.EnableTOTP(ctx, u.ID, *sess.PendingSecret); err != nil {
		return nil, fmt.Errorf("enable totp: %w", err)
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("delete temp session: %w", err)
	}
	s.record(ctx, u.Email, "auth.totp.enabled", "")
	return s.grantAccess(ctx, u)
}

// VerifyTOTPCode checks a code against the user's enrolled secret. A wrong
// code counts toward the same lockout counter as a wrong password.
func (s *Service) VerifyTOTPCode(ctx context.Context, tempToken, code string) (*AccessGrant, error) {
	u, sess, err := s.resolveTempSession(ctx, tempToken, SessionTOTPVerify)
	if err != nil {
		return nil, err
	}
	if !u.TOTPEnabled || u.TOTPSecret == nil {
		return nil, ErrInvalidTOTPCode
	}
	if !s.totp.Verify(*u.TOTPSecret, code) {
		s.registerFailure(ctx, u)
		return nil, ErrInvalidTOTPCode
	}
	if err := s.users.ResetLockout(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("reset lockout: %w", err)
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("delete temp session: %w", err)
	}
	s.record(ctx, u.Email, "auth.login.totp_ok", "")
	return s.grantAccess(ctx, u)
}

// Logout deletes the session row unconditionally; logging out an already
// dead session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.record(ctx, "", "auth.logout", sessionID)
	return nil
}

func (s *Service) grantAccess(ctx context.Context, u *entity.User) (*AccessGrant, error) {
	now := time.Now()
	sess := &Session{
		ID:        utilities.NewSessionID(),
		UserID:    u.ID,
		Kind:      SessionAccess,
		ExpiresAt: now.Add(s.AccessTTL),
		CreatedAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save access session: %w", err)
	}
	token, err := s.codec.SignExpiring(u.ID, u.Email, sess.ID, s.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &AccessGrant{Token: token, ExpiresAt: sess.ExpiresAt, UserID: u.ID, Email: u.Email}, nil
}

// resolveTempSession validates a temp token cryptographically, against the
// store, and against the expected kind.
func (s *Service) resolveTempSession(ctx context.Context, tempToken string, kind SessionKind) (*entity.User, *Session, error) {
	claims, err := s.codec.Verify(tempToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, ErrInvalidToken
	}
	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	if sess.Kind != kind || sess.Expired(time.Now()) {
		return nil, nil, ErrSessionExpired
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	return u, sess, nil
}

// registerFailure increments the shared failed-attempt counter and locks the
// account when the threshold is reached. Both factors throttle identically.
func (s *Service) registerFailure(ctx context.Context, u *entity.User) {
	n, err := s.users.IncrementFailedAttempts(ctx, u.ID)
	if err != nil {
		s.logger.Warnw("increment failed attempts", "user_id", u.ID, "err", err)
		return
	}
	s.record(ctx, u.Email, "auth.login.failed", fmt.Sprintf("attempt %d", n))
	if n >= s.MaxFailed {
		until := time.Now().Add(s.LockDuration)
		if err := s.users.LockUntil(ctx, u.ID, until); err != nil {
			s.logger.Warnw("lock account", "user_id", u.ID, "err", err)
			return
		}
		s.record(ctx, u.Email, "auth.lockout", until.Format(time.RFC3339))
	}
}

func (s *Service) record(ctx context.Context, actor, action, detail string) {
	if s.audit != nil {
		s.audit.Record(ctx, actor, action, detail)
	}
}
