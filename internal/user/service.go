package user

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/movestash/service-quoting-go/internal/auth"
	"github.com/movestash/service-quoting-go/internal/user/entity"
)

var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrWeakPassword  = errors.New("password too short")
	ErrEmailTaken    = errors.New("email already registered")
	ErrWrongPassword = errors.New("current password does not match")
	ErrUserNotFound  = errors.New("user not found")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLength = 8

// Store is the persistence surface the provisioning service needs.
type Store interface {
	Create(ctx context.Context, email, passwordHash string) (int64, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// AuditSink records provisioning events. May be nil.
type AuditSink interface {
	Record(ctx context.Context, actor, action, detail string)
}

// Service handles staff account provisioning and password changes. Login and
// MFA flows live in the auth package; this one only creates and maintains the
// credential rows they authenticate against.
type Service struct {
	users Store
	audit AuditSink
}

func NewService(users Store, audit AuditSink) *Service {
	return &Service{users: users, audit: audit}
}

// Provision creates a staff account with a hashed password. New accounts start
// without TOTP enrolled; the first login walks them through setup.
func (s *Service) Provision(ctx context.Context, actor, email, password string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return 0, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return 0, ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return 0, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return 0, err
	}
	id, err := s.users.Create(ctx, email, hash)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actor, "user.provisioned", email)
	return id, nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if !auth.VerifyPassword(current, u.PasswordHash) {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.record(ctx, u.Email, "user.password_changed", "")
	return nil
}

func (s *Service) record(ctx context.Context, actor, action, detail string) {
	if s.audit != nil {
		s.audit.Record(ctx, actor, action, detail)
	}
}
