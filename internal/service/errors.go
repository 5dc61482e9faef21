package service

import (
	"errors"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
)

// RequestMeta describes the inbound request an operation runs for. It
// only feeds the audit trail.
type RequestMeta struct {
	IP        string
	RequestID string
	UserAgent string
}

type AuditEntry struct {
	UserID       uuid.UUID
	UserRole     domain.Role
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	RequestID    string
	UserAgent    string
	StatusCode   int
	Changes      string
}

func auditFor(actor domain.Actor, meta RequestMeta, action domain.AuditAction, resourceType, resourceID string) AuditEntry {
	return AuditEntry{
		UserID:       actor.ID,
		UserRole:     actor.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    meta.IP,
		RequestID:    meta.RequestID,
		UserAgent:    meta.UserAgent,
	}
}

func (e AuditEntry) record() *domain.AuditLog {
	changes := e.Changes
	if changes == "" {
		changes = "{}"
	}
	return &domain.AuditLog{
		UserID:       e.UserID,
		UserRole:     e.UserRole,
		IPAddress:    e.IPAddress,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		RequestID:    e.RequestID,
		UserAgent:    e.UserAgent,
		StatusCode:   e.StatusCode,
		Changes:      changes,
	}
}
