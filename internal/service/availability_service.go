package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/tracer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type AvailabilityService struct {
	dir      directory.Directory
	repo     appointment.Repository
	slotMins int
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewAvailabilityService(dir directory.Directory, repo appointment.Repository, slotMins int, m *metrics.Collector, log *zap.Logger) *AvailabilityService {
	if slotMins <= 0 {
		slotMins = schedule.DefaultSlotMinutes
	}
	return &AvailabilityService{dir: dir, repo: repo, slotMins: slotMins, metrics: m, log: log}
}

// GetAvailableSlots lists the free slots of the doctor's workplace on date.
// Unknown or inactive doctors and days without availability yield an empty
// list.
func (s *AvailabilityService) GetAvailableSlots(ctx context.Context, doctorID, workplaceID uuid.UUID, date time.Time) ([]schedule.Slot, error) {
	ctx, span := tracer.Tracer().Start(ctx, "AvailabilityService.GetAvailableSlots")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", doctorID.String()),
		attribute.String("workplace_id", workplaceID.String()),
		attribute.String("date", date.Format(schedule.DateLayout)),
	)

	slots, err := s.availableSlots(ctx, doctorID, workplaceID, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.SlotQuery()
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return slots, nil
}

func (s *AvailabilityService) availableSlots(ctx context.Context, doctorID, workplaceID uuid.UUID, date time.Time) ([]schedule.Slot, error) {
	empty := []schedule.Slot{}

	doctor, err := s.dir.GetActor(ctx, doctorID)
	if errors.Is(err, domain.ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading doctor: %w", err)
	}
	if doctor.Role != domain.RoleDoctor || !doctor.Status.CanTransact() {
		return empty, nil
	}

	entries, err := s.dir.GetDoctorAvailability(ctx, doctorID, workplaceID)
	if err != nil {
		return nil, fmt.Errorf("loading availability: %w", err)
	}
	if !schedule.HasWindow(entries, schedule.WeekdayOf(date)) {
		return empty, nil
	}

	fee, err := s.dir.GetDoctorFee(ctx, doctorID, workplaceID)
	if errors.Is(err, directory.ErrWorkplaceNotFound) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading consultation fee: %w", err)
	}

	active, err := s.repo.ListActiveForDay(ctx, doctorID, workplaceID, date)
	if err != nil {
		return nil, fmt.Errorf("loading booked appointments: %w", err)
	}
	busy := make([]schedule.Interval, 0, len(active))
	for _, a := range active {
		busy = append(busy, a.Interval())
	}

	slots, err := schedule.AvailableSlots(entries, date, s.slotMins, busy, fee)
	if err != nil {
		s.log.Warn("misconfigured availability",
			zap.String("doctor_id", doctorID.String()),
			zap.String("workplace_id", workplaceID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("expanding availability: %w", err)
	}
	if slots == nil {
		return empty, nil
	}
	return slots, nil
}
