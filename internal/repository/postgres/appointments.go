// Package postgres implements the repositories on top of gorm and the
// pgx driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

var activeStatuses = []appointment.AppointmentStatus{
	appointment.StatusPending,
	appointment.StatusConfirmed,
}

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

// Book serializes bookings per doctor, workplace and day with a transaction
// scoped advisory lock. The unique index and the exclusion constraint back
// it up for writers that bypass the lock.
func (r *AppointmentRepository) Book(ctx context.Context, a *appointment.Appointment, check appointment.BookingCheck) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", bookingLockKey(a)).Error; err != nil {
			return fmt.Errorf("acquiring booking lock: %w", err)
		}

		active, err := activeForDay(tx, a.DoctorID, a.WorkplaceID, a.Date)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(active); err != nil {
				return err
			}
		}

		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("inserting appointment: %w", err)
		}
		return nil
	})
	return mapConstraintError(err)
}

func (r *AppointmentRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(*appointment.Appointment) error) (*appointment.Appointment, error) {
	var out appointment.Appointment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&out, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appointment.ErrAppointmentNotFound
			}
			return fmt.Errorf("locking appointment: %w", err)
		}
		if err := fn(&out); err != nil {
			return err
		}
		if err := tx.Save(&out).Error; err != nil {
			return fmt.Errorf("saving appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, mapConstraintError(err)
	}
	return &out, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	return &a, nil
}

func (r *AppointmentRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	query := r.db.WithContext(ctx).Model(&appointment.Appointment{})
	if q.PatientID != nil {
		query = query.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		query = query.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.WorkplaceID != nil {
		query = query.Where("workplace_id = ?", *q.WorkplaceID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		query = query.Where("appointment_date >= ?", schedule.DateOf(*q.DateFrom))
	}
	if q.DateTo != nil {
		query = query.Where("appointment_date <= ?", schedule.DateOf(*q.DateTo))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	var items []*appointment.Appointment
	if err := query.Order("appointment_date ASC, start_minute ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	return &appointment.PagedAppointments{
		Appointments: items,
		TotalCount:   total,
		Page:         page,
		PageSize:     size,
		TotalPages:   int((total + int64(size) - 1) / int64(size)),
	}, nil
}

func (r *AppointmentRepository) ListActiveForDay(ctx context.Context, doctorID, workplaceID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	return activeForDay(r.db.WithContext(ctx), doctorID, workplaceID, date)
}

func (r *AppointmentRepository) HasRelationship(ctx context.Context, doctorID, patientID uuid.UUID, statuses ...appointment.AppointmentStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}
	var exists bool
	err := r.db.WithContext(ctx).Raw(
		`SELECT EXISTS (SELECT 1 FROM scheduling.appointments WHERE doctor_id = ? AND patient_id = ? AND status IN ?)`,
		doctorID, patientID, statuses,
	).Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("checking doctor-patient relationship: %w", err)
	}
	return exists, nil
}

func activeForDay(db *gorm.DB, doctorID, workplaceID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	var out []*appointment.Appointment
	err := db.Where("doctor_id = ? AND workplace_id = ? AND appointment_date = ? AND status IN ?",
		doctorID, workplaceID, date.Format(schedule.DateLayout), activeStatuses).
		Order("start_minute ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("loading active appointments: %w", err)
	}
	return out, nil
}

func bookingLockKey(a *appointment.Appointment) string {
	return a.DoctorID.String() + "|" + a.WorkplaceID.String() + "|" + a.Date.Format(schedule.DateLayout)
}

// mapConstraintError turns slot constraint violations into
// ErrSlotUnavailable and leaves everything else untouched.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return appointment.ErrSlotUnavailable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgExclusionViolation:
			return appointment.ErrSlotUnavailable
		}
	}
	return err
}
