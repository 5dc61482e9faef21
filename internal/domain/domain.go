package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// ActorStatus is the account state kept by the user directory.
type ActorStatus string

const (
	ActorActive   ActorStatus = "active"
	ActorInactive ActorStatus = "inactive"
	ActorBlocked  ActorStatus = "blocked"
	ActorPending  ActorStatus = "pending"
)

func (s ActorStatus) IsValid() bool {
	switch s {
	case ActorActive, ActorInactive, ActorBlocked, ActorPending:
		return true
	}
	return false
}

// CanTransact reports whether the actor may create or mutate anything.
func (s ActorStatus) CanTransact() bool {
	return s == ActorActive
}

// CanRead reports whether the actor may read data at all.
// Pending accounts get read access limited by the access guard.
func (s ActorStatus) CanRead() bool {
	return s == ActorActive || s == ActorPending
}

// Actor is the identity every scheduling operation is authorized against.
type Actor struct {
	ID     uuid.UUID   `json:"id"`
	Role   Role        `json:"role"`
	Status ActorStatus `json:"status"`
}

type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	Email        string      `gorm:"column:email;type:varchar(255);uniqueIndex;not null"`
	PasswordHash string      `gorm:"column:password_hash;type:varchar(255);not null"`
	FirstName    string      `gorm:"column:first_name;type:varchar(100);not null"`
	LastName     string      `gorm:"column:last_name;type:varchar(100);not null"`
	Phone        string      `gorm:"column:phone;type:varchar(20)"`
	Role         Role        `gorm:"column:role;type:varchar(20);not null;index"`
	Status       ActorStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`

	// Doctor-only fields
	Specialty string `gorm:"column:specialty;type:varchar(100)"`
	Bio       string `gorm:"column:bio;type:text"`

	// Patient-only fields
	DateOfBirth *time.Time `gorm:"column:date_of_birth;type:date"`

	FailedLoginCount  int        `gorm:"column:failed_login_count;default:0"`
	LockedUntil       *time.Time `gorm:"column:locked_until"`
	LastLoginAt       *time.Time `gorm:"column:last_login_at"`
	PasswordChangedAt time.Time  `gorm:"column:password_changed_at"`
}

func (User) TableName() string {
	return "directory.users"
}

// LockedAt reports whether failed logins still lock the account at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Status: u.Status}
}

type AuditAction string

const (
	ActionCreate     AuditAction = "create"
	ActionRead       AuditAction = "read"
	ActionUpdate     AuditAction = "update"
	ActionTransition AuditAction = "transition"
	ActionCancel     AuditAction = "cancel"
	ActionDeny       AuditAction = "deny"
	ActionLogin      AuditAction = "login"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(20);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID  string `gorm:"column:request_id;type:varchar(50);index"`
	UserAgent  string `gorm:"column:user_agent;type:text"`
	StatusCode int    `gorm:"column:status_code"`

	Changes string `gorm:"column:changes;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID uuid.UUID `json:"sub"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}
