package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/repository/memory"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

func newAuthEnv(t *testing.T, status domain.ActorStatus) (*AuthService, *memory.Directory, *domain.User) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	dir := memory.NewDirectory()
	u := dir.AddUser(&domain.User{
		Email:        "pat@example.com",
		PasswordHash: string(hash),
		FirstName:    "Pat",
		LastName:     "Doe",
		Role:         domain.RolePatient,
		Status:       status,
	})

	log := zap.NewNop()
	auditSvc := newAuditService(&memory.AuditSink{}, nil, log, 10)
	t.Cleanup(auditSvc.Shutdown)

	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-that-is-long-enough-for-hs256",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "medbook-test",
	})
	return NewAuthService(dir, jwtManager, auditSvc, log), dir, u
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.ActorStatus
		email    string
		password string
		wantErr  error
	}{
		{"active", domain.ActorActive, "pat@example.com", testPassword, nil},
		{"email is case-insensitive", domain.ActorActive, "  PAT@example.com ", testPassword, nil},
		{"pending may sign in", domain.ActorPending, "pat@example.com", testPassword, nil},
		{"wrong password", domain.ActorActive, "pat@example.com", "nope", ErrInvalidCredentials},
		{"unknown email", domain.ActorActive, "who@example.com", testPassword, ErrInvalidCredentials},
		{"blocked", domain.ActorBlocked, "pat@example.com", testPassword, ErrAccountInactive},
		{"inactive", domain.ActorInactive, "pat@example.com", testPassword, ErrAccountInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newAuthEnv(t, tt.status)
			pair, err := svc.Login(context.Background(), tt.email, tt.password, RequestMeta{})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && pair.AccessToken == "" {
				t.Fatal("expected an access token")
			}
			if tt.wantErr != nil && !IsCredentialError(err) {
				t.Fatalf("expected a credential error, got %v", err)
			}
		})
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	svc, dir, u := newAuthEnv(t, domain.ActorActive)
	ctx := context.Background()

	for i := 0; i < maxFailedAttempts; i++ {
		if _, err := svc.Login(ctx, u.Email, "wrong", RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	if _, err := svc.Login(ctx, u.Email, testPassword, RequestMeta{}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected the account to be locked, got %v", err)
	}

	stored, _ := dir.GetUser(ctx, u.ID)
	if stored.FailedLoginCount != maxFailedAttempts || stored.LockedUntil == nil {
		t.Fatalf("expected %d failures and a lock, got %d", maxFailedAttempts, stored.FailedLoginCount)
	}
}

func TestRefreshToken_RechecksStatus(t *testing.T) {
	svc, dir, u := newAuthEnv(t, domain.ActorActive)
	ctx := context.Background()

	pair, err := svc.Login(ctx, u.Email, testPassword, RequestMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.RefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := svc.RefreshToken(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected an access token to be rejected, got %v", err)
	}

	dir.SetStatus(u.ID, domain.ActorBlocked)
	if _, err := svc.RefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected a blocked user to be refused, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, u := newAuthEnv(t, domain.ActorActive)
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, u.ID, "wrong", "a-much-longer-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, testPassword, "short"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, testPassword, "a-much-longer-password"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := svc.Login(ctx, u.Email, "a-much-longer-password", RequestMeta{}); err != nil {
		t.Fatalf("login with the new password: %v", err)
	}
}
