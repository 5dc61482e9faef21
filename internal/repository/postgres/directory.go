package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectoryRepository reads users and workplaces. It also carries the
// account bookkeeping used by authentication.
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

var (
	_ directory.Directory    = (*DirectoryRepository)(nil)
	_ directory.ProfileStore = (*DirectoryRepository)(nil)
)

func (r *DirectoryRepository) GetActor(ctx context.Context, id uuid.UUID) (domain.Actor, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Select("id", "role", "status").
		Where("deleted_at IS NULL").
		First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Actor{}, directory.ErrActorNotFound
		}
		return domain.Actor{}, fmt.Errorf("loading actor: %w", err)
	}
	return u.Actor(), nil
}

func (r *DirectoryRepository) GetDoctorAvailability(ctx context.Context, doctorID, workplaceID uuid.UUID) ([]schedule.AvailabilityEntry, error) {
	var entries []schedule.AvailabilityEntry
	err := r.db.WithContext(ctx).
		Joins("JOIN directory.workplaces w ON w.id = directory.workplace_availability.workplace_id").
		Where("w.id = ? AND w.doctor_id = ?", workplaceID, doctorID).
		Order("day_of_week, start_time").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("loading availability: %w", err)
	}
	return entries, nil
}

func (r *DirectoryRepository) GetDoctorFee(ctx context.Context, doctorID, workplaceID uuid.UUID) (decimal.Decimal, error) {
	var w schedule.Workplace
	err := r.db.WithContext(ctx).
		Select("consultation_fee").
		First(&w, "id = ? AND doctor_id = ?", workplaceID, doctorID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, directory.ErrWorkplaceNotFound
		}
		return decimal.Zero, fmt.Errorf("loading workplace: %w", err)
	}
	return w.ConsultationFee, nil
}

func (r *DirectoryRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("deleted_at IS NULL").First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrActorNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return &u, nil
}

func (r *DirectoryRepository) UpdateUser(ctx context.Context, id uuid.UUID, fn func(*domain.User) error) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("deleted_at IS NULL").
			First(&u, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return directory.ErrActorNotFound
			}
			return fmt.Errorf("locking user: %w", err)
		}
		if err := fn(&u); err != nil {
			return err
		}
		return tx.Save(&u).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *DirectoryRepository) ListWorkplaces(ctx context.Context, doctorID uuid.UUID) ([]schedule.Workplace, error) {
	var out []schedule.Workplace
	err := r.db.WithContext(ctx).
		Preload("Availability").
		Where("doctor_id = ?", doctorID).
		Order("name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing workplaces: %w", err)
	}
	return out, nil
}

func (r *DirectoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Where("lower(email) = ? AND deleted_at IS NULL", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, directory.ErrActorNotFound
		}
		return nil, fmt.Errorf("loading user by email: %w", err)
	}
	return &u, nil
}

func (r *DirectoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.GetUser(ctx, id)
}

// RecordLoginFailure increments the counter and sets the lock once it
// reaches maxAttempts, in a single statement.
func (r *DirectoryRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE directory.users
		SET failed_login_count = failed_login_count + 1,
		    locked_until = CASE WHEN failed_login_count + 1 >= ? THEN ? ELSE locked_until END,
		    updated_at = now()
		WHERE id = ?`, maxAttempts, lockUntil, id).Error
}

func (r *DirectoryRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failed_login_count": 0,
			"locked_until":       nil,
			"last_login_at":      at,
		}).Error
}

func (r *DirectoryRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":       hash,
			"password_changed_at": time.Now(),
		}).Error
}

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
