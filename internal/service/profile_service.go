package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/access"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProfileService serves the directory profiles the access guard protects.
type ProfileService struct {
	store    directory.ProfileStore
	guard    *access.Guard
	auditSvc *AuditService
	log      *zap.Logger
}

func NewProfileService(store directory.ProfileStore, guard *access.Guard, auditSvc *AuditService, log *zap.Logger) *ProfileService {
	return &ProfileService{store: store, guard: guard, auditSvc: auditSvc, log: log}
}

func (s *ProfileService) GetPatient(ctx context.Context, actor domain.Actor, id uuid.UUID, meta RequestMeta) (*directory.PatientProfile, error) {
	// Authorize before loading so denials do not reveal whether the patient exists.
	if _, err := s.guard.Require(ctx, actor, access.ActionRead, access.Patient{ID: id}); err != nil {
		return nil, err
	}

	u, err := s.loadUser(ctx, id, domain.RolePatient, directory.ErrPatientNotFound)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditFor(actor, meta, domain.ActionRead, "patient", id.String()))
	return directory.PatientProfileOf(u), nil
}

// GetDoctor returns the full profile to the doctor and admins, and the
// public view of active doctors to everyone else allowed to read it.
func (s *ProfileService) GetDoctor(ctx context.Context, actor domain.Actor, id uuid.UUID) (*directory.DoctorProfile, error) {
	u, err := s.loadUser(ctx, id, domain.RoleDoctor, directory.ErrDoctorNotFound)
	if err != nil {
		return nil, err
	}

	d, err := s.guard.Require(ctx, actor, access.ActionRead, access.Doctor{ID: id, Active: u.Status == domain.ActorActive})
	if err != nil {
		if u.Status != domain.ActorActive && errors.Is(err, domain.ErrAuthorization) {
			return nil, directory.ErrDoctorNotFound
		}
		return nil, err
	}

	workplaces, err := s.store.ListWorkplaces(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading workplaces: %w", err)
	}

	p := directory.DoctorProfileOf(u, workplaces)
	if d.Scope == access.ScopePublic {
		return p.Public(), nil
	}
	return p, nil
}

func (s *ProfileService) UpdatePatient(ctx context.Context, actor domain.Actor, id uuid.UUID, cmd *directory.UpdateProfileCommand, meta RequestMeta) (*directory.PatientProfile, error) {
	if err := validateProfileCommand(cmd); err != nil {
		return nil, err
	}
	if _, err := s.guard.Require(ctx, actor, access.ActionUpdate, access.Patient{ID: id}); err != nil {
		return nil, err
	}

	u, err := s.updateUser(ctx, id, domain.RolePatient, directory.ErrPatientNotFound, cmd)
	if err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, auditFor(actor, meta, domain.ActionUpdate, "patient", id.String()))
	s.log.Info("patient profile updated",
		zap.String("patient_id", id.String()),
		zap.String("updated_by", actor.ID.String()),
	)
	return directory.PatientProfileOf(u), nil
}

func (s *ProfileService) UpdateDoctor(ctx context.Context, actor domain.Actor, id uuid.UUID, cmd *directory.UpdateProfileCommand, meta RequestMeta) (*directory.DoctorProfile, error) {
	if err := validateProfileCommand(cmd); err != nil {
		return nil, err
	}
	if _, err := s.guard.Require(ctx, actor, access.ActionUpdate, access.Doctor{ID: id}); err != nil {
		return nil, err
	}

	u, err := s.updateUser(ctx, id, domain.RoleDoctor, directory.ErrDoctorNotFound, cmd)
	if err != nil {
		return nil, err
	}
	workplaces, err := s.store.ListWorkplaces(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading workplaces: %w", err)
	}

	s.auditSvc.LogAsync(ctx, auditFor(actor, meta, domain.ActionUpdate, "doctor", id.String()))
	return directory.DoctorProfileOf(u, workplaces), nil
}

func (s *ProfileService) loadUser(ctx context.Context, id uuid.UUID, role domain.Role, notFound error) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if u.Role != role {
		return nil, notFound
	}
	return u, nil
}

func (s *ProfileService) updateUser(ctx context.Context, id uuid.UUID, role domain.Role, notFound error, cmd *directory.UpdateProfileCommand) (*domain.User, error) {
	u, err := s.store.UpdateUser(ctx, id, func(u *domain.User) error {
		if u.Role != role {
			return notFound
		}
		cmd.Apply(u)
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func validateProfileCommand(cmd *directory.UpdateProfileCommand) error {
	var errs []string

	if cmd.FirstName != nil && strings.TrimSpace(*cmd.FirstName) == "" {
		errs = append(errs, "first_name cannot be empty")
	}
	if cmd.LastName != nil && strings.TrimSpace(*cmd.LastName) == "" {
		errs = append(errs, "last_name cannot be empty")
	}
	if cmd.Phone != nil && len(*cmd.Phone) > 20 {
		errs = append(errs, "phone must be at most 20 characters")
	}
	if cmd.Specialty != nil && len(*cmd.Specialty) > 100 {
		errs = append(errs, "specialty must be at most 100 characters")
	}

	if len(errs) > 0 {
		return domain.Validation("validation failed", errs...)
	}
	return nil
}
