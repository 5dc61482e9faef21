package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxFailedAttempts = 5
	lockDuration      = 15 * time.Minute
	minPasswordLength = 12
)

// dummyHash is compared against when the email is unknown so both paths
// cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("medbook-dummy-password"), bcrypt.DefaultCost)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// RecordLoginFailure bumps the failure counter and sets LockedUntil to
	// lockUntil once the counter reaches maxAttempts.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) error
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

type AuthService struct {
	users    UserRepository
	tokens   *auth.JWTManager
	auditSvc *AuditService
	now      func() time.Time
	log      *zap.Logger
}

func NewAuthService(users UserRepository, tokens *auth.JWTManager, auditSvc *AuditService, log *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, auditSvc: auditSvc, now: time.Now, log: log}
}

// Login verifies credentials and issues a token pair. Pending accounts may
// sign in; the access guard limits them to reads.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*domain.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("loading user: %w", err)
	}

	now := s.now()
	switch {
	case !user.Status.CanRead():
		return nil, ErrAccountInactive
	case user.LockedAt(now):
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.users.RecordLoginFailure(ctx, user.ID, maxFailedAttempts, now.Add(lockDuration)); err != nil {
			s.log.Error("recording login failure", zap.String("user_id", user.ID.String()), zap.Error(err))
		}
		entry := auditFor(user.Actor(), meta, domain.ActionLogin, "user", user.ID.String())
		entry.StatusCode = http.StatusUnauthorized
		s.auditSvc.LogAsync(ctx, entry)
		s.log.Warn("failed login attempt", zap.String("user_id", user.ID.String()), zap.String("ip", meta.IP))
		return nil, ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		s.log.Error("recording login", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	pair, err := s.tokens.GenerateTokenPair(claimsFor(user))
	if err != nil {
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	entry := auditFor(user.Actor(), meta, domain.ActionLogin, "user", user.ID.String())
	entry.StatusCode = http.StatusOK
	s.auditSvc.LogAsync(ctx, entry)
	s.log.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("ip", meta.IP))

	return pair, nil
}

// RefreshToken exchanges a refresh token for a new pair. The account is
// reloaded so a role or status change since login takes effect.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil || !user.Status.CanRead() {
		return nil, ErrInvalidCredentials
	}

	return s.tokens.GenerateTokenPair(claimsFor(user))
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if len(next) < minPasswordLength {
		return domain.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("storing password: %w", err)
	}
	s.log.Info("password changed", zap.String("user_id", userID.String()))
	return nil
}

func claimsFor(u *domain.User) *domain.Claims {
	return &domain.Claims{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// IsCredentialError reports errors the transport answers with 401/429
// rather than a domain status.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrAccountLocked) || errors.Is(err, ErrAccountInactive)
}
