package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/access"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/events"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/tracer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type SchedulingOptions struct {
	SlotMinutes         int
	DefaultDurationMins int
	Policy              appointment.Policy
}

func DefaultSchedulingOptions() SchedulingOptions {
	return SchedulingOptions{
		SlotMinutes:         schedule.DefaultSlotMinutes,
		DefaultDurationMins: appointment.DefaultDurationMins,
		Policy:              appointment.DefaultPolicy(),
	}
}

// AppointmentService is the only writer of appointment status and its
// timestamps.
type AppointmentService struct {
	repo      appointment.Repository
	dir       directory.Directory
	guard     *access.Guard
	auditSvc  *AuditService
	publisher events.Publisher
	metrics   *metrics.Collector
	opts      SchedulingOptions
	now       func() time.Time
	log       *zap.Logger
}

func NewAppointmentService(
	repo appointment.Repository,
	dir directory.Directory,
	guard *access.Guard,
	auditSvc *AuditService,
	publisher events.Publisher,
	m *metrics.Collector,
	opts SchedulingOptions,
	log *zap.Logger,
) *AppointmentService {
	if opts.SlotMinutes <= 0 {
		opts.SlotMinutes = schedule.DefaultSlotMinutes
	}
	if opts.DefaultDurationMins <= 0 {
		opts.DefaultDurationMins = appointment.DefaultDurationMins
	}
	if opts.Policy.Location == nil {
		opts.Policy.Location = time.UTC
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AppointmentService{
		repo:      repo,
		dir:       dir,
		guard:     guard,
		auditSvc:  auditSvc,
		publisher: publisher,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// WithClock replaces the time source.
func (s *AppointmentService) WithClock(now func() time.Time) *AppointmentService {
	s.now = now
	return s
}

type bookingRequest struct {
	date     time.Time
	start    schedule.Clock
	duration int
	apptType appointment.AppointmentType
	reason   string
}

func (s *AppointmentService) validateCreateCommand(cmd *appointment.CreateAppointmentCommand) (*bookingRequest, error) {
	if cmd.DoctorID == uuid.Nil || cmd.WorkplaceID == uuid.Nil {
		return nil, domain.Validation("doctor_id and workplace_id are required")
	}
	date, err := schedule.ParseDate(cmd.Date)
	if err != nil {
		return nil, appointment.ErrInvalidDate
	}
	start, err := schedule.ParseClock(cmd.Time)
	if err != nil {
		return nil, appointment.ErrInvalidTime
	}

	duration := cmd.DurationMins
	if duration == 0 {
		duration = s.opts.DefaultDurationMins
	}
	if duration < appointment.MinDurationMins || duration > appointment.MaxDurationMins {
		return nil, appointment.ErrInvalidDuration
	}
	if int(start)+duration > schedule.MinutesPerDay {
		return nil, appointment.ErrInvalidDuration
	}

	apptType := cmd.Type
	if apptType == "" {
		apptType = appointment.TypeConsultation
	}
	if !apptType.IsValid() {
		return nil, appointment.ErrInvalidAppointmentType
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, appointment.ErrReasonRequired
	}

	return &bookingRequest{date: date, start: start, duration: duration, apptType: apptType, reason: reason}, nil
}

// CreateAppointment books a slot for a patient. Patients book for
// themselves; admins book on behalf of a patient.
func (s *AppointmentService) CreateAppointment(ctx context.Context, actor domain.Actor, cmd *appointment.CreateAppointmentCommand, meta RequestMeta) (_ *appointment.Appointment, err error) {
	ctx, span := tracer.Tracer().Start(ctx, "AppointmentService.CreateAppointment")
	defer func() { endSpan(span, err) }()

	req, err := s.validateCreateCommand(cmd)
	if err != nil {
		return nil, err
	}

	patientID := cmd.PatientID
	if patientID == uuid.Nil {
		if actor.Role != domain.RolePatient {
			return nil, domain.Validation("patient_id is required")
		}
		patientID = actor.ID
	}
	span.SetAttributes(
		attribute.String("doctor_id", cmd.DoctorID.String()),
		attribute.String("workplace_id", cmd.WorkplaceID.String()),
	)

	res := access.Appointment{PatientID: patientID, DoctorID: cmd.DoctorID}
	if _, err := s.guard.Require(ctx, actor, access.ActionCreate, res); err != nil {
		return nil, s.denied(ctx, actor, meta, access.ActionCreate, "", err)
	}

	if err := s.requireActive(ctx, patientID, domain.RolePatient, directory.ErrPatientNotFound); err != nil {
		return nil, err
	}
	if err := s.requireActive(ctx, cmd.DoctorID, domain.RoleDoctor, directory.ErrDoctorNotFound); err != nil {
		return nil, err
	}

	now := s.now()
	if !schedule.At(req.date, req.start, s.opts.Policy.Location).After(now) {
		return nil, appointment.ErrScheduledInPast
	}

	fee, err := s.dir.GetDoctorFee(ctx, cmd.DoctorID, cmd.WorkplaceID)
	if err != nil {
		return nil, fmt.Errorf("loading consultation fee: %w", err)
	}
	entries, err := s.dir.GetDoctorAvailability(ctx, cmd.DoctorID, cmd.WorkplaceID)
	if err != nil {
		return nil, fmt.Errorf("loading availability: %w", err)
	}
	ok, err := schedule.Bookable(entries, schedule.WeekdayOf(req.date), s.opts.SlotMinutes, req.start, req.duration)
	if err != nil {
		return nil, fmt.Errorf("checking availability: %w", err)
	}
	if !ok {
		return nil, appointment.ErrSlotNotBookable
	}

	a := &appointment.Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		DoctorID:        cmd.DoctorID,
		WorkplaceID:     cmd.WorkplaceID,
		Date:            req.date,
		Type:            req.apptType,
		Status:          appointment.StatusPending,
		Reason:          req.reason,
		Notes:           strings.TrimSpace(cmd.Notes),
		ConsultationFee: fee,
		CreatedBy:       actor.ID,
	}
	a.SetSlot(req.start, req.duration)

	// The overlap check runs again inside the store's booking lock so two
	// concurrent requests for the same slot cannot both pass it.
	err = s.repo.Book(ctx, a, func(active []*appointment.Appointment) error {
		for _, b := range active {
			if a.Interval().Overlaps(b.Interval()) {
				return appointment.ErrSlotUnavailable
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, appointment.ErrSlotUnavailable) {
			s.metrics.Conflict()
			return nil, err
		}
		logger.For(ctx, s.log).Error("failed to book appointment", zap.Error(err))
		return nil, fmt.Errorf("booking appointment: %w", err)
	}

	span.SetAttributes(attribute.String("appointment_id", a.ID.String()))
	s.metrics.Appointment(string(a.Status))
	s.audit(ctx, actor, meta, domain.ActionCreate, a, map[string]any{
		"date": cmd.Date, "time": a.Time, "duration_mins": a.DurationMins, "status": a.Status,
	})
	s.publish(ctx, events.NewEvent(events.AppointmentBooked, actor.ID, a, "", now))

	logger.For(ctx, s.log).Info("appointment booked",
		zap.String("appointment_id", a.ID.String()),
		zap.String("doctor_id", a.DoctorID.String()),
		zap.String("date", cmd.Date),
		zap.String("time", a.Time),
	)
	return a, nil
}

// TransitionAppointment moves an appointment to cmd.Status. Doctors and
// patients follow the state machine and their grants; admins may force any
// move out of an active status.
func (s *AppointmentService) TransitionAppointment(ctx context.Context, actor domain.Actor, id uuid.UUID, cmd *appointment.TransitionCommand, meta RequestMeta) (_ *appointment.Appointment, err error) {
	ctx, span := tracer.Tracer().Start(ctx, "AppointmentService.TransitionAppointment",
		trace.WithAttributes(attribute.String("appointment_id", id.String()), attribute.String("to", string(cmd.Status))))
	defer func() { endSpan(span, err) }()

	if !cmd.Status.IsValid() {
		return nil, appointment.ErrInvalidStatus
	}
	reason := strings.TrimSpace(cmd.Reason)
	if cmd.Status == appointment.StatusCancelled && reason == "" {
		return nil, appointment.ErrCancellationReasonRequired
	}

	var (
		from   appointment.AppointmentStatus
		forced bool
		now    = s.now()
	)
	a, err := s.repo.Mutate(ctx, id, func(a *appointment.Appointment) error {
		from = a.Status
		f, err := s.guard.AuthorizeTransition(ctx, actor, a, cmd.Status)
		if err != nil {
			return err
		}
		forced = f

		switch {
		case forced:
			err = a.Force(cmd.Status, actor.ID, reason, now)
		case cmd.Status == appointment.StatusCancelled:
			err = a.Cancel(reason, actor.ID, now, s.opts.Policy)
		default:
			err = a.Transition(cmd.Status, now)
		}
		if err != nil {
			return err
		}
		if cmd.Notes != nil {
			a.Notes = strings.TrimSpace(*cmd.Notes)
		}
		return nil
	})
	if err != nil {
		return nil, s.denied(ctx, actor, meta, access.ActionTransition, id.String(), err)
	}

	s.metrics.Appointment(string(a.Status))
	action := domain.ActionTransition
	if a.Status == appointment.StatusCancelled {
		action = domain.ActionCancel
	}
	s.audit(ctx, actor, meta, action, a, map[string]any{"from": from, "to": a.Status, "forced": forced})

	e := events.NewEvent(events.AppointmentTransitioned, actor.ID, a, from, now)
	if a.Status == appointment.StatusCancelled {
		e.Type = events.AppointmentCancelled
	}
	e.Forced = forced
	s.publish(ctx, e)

	logger.For(ctx, s.log).Info("appointment transitioned",
		zap.String("appointment_id", a.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(a.Status)),
		zap.Bool("forced", forced),
	)
	return a, nil
}

// CancelAppointment cancels an active appointment more than the cutoff
// ahead of its start.
func (s *AppointmentService) CancelAppointment(ctx context.Context, actor domain.Actor, id uuid.UUID, cmd *appointment.CancelAppointmentCommand, meta RequestMeta) (_ *appointment.Appointment, err error) {
	ctx, span := tracer.Tracer().Start(ctx, "AppointmentService.CancelAppointment",
		trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer func() { endSpan(span, err) }()

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, appointment.ErrCancellationReasonRequired
	}

	var from appointment.AppointmentStatus
	now := s.now()
	a, err := s.repo.Mutate(ctx, id, func(a *appointment.Appointment) error {
		from = a.Status
		if _, err := s.guard.Require(ctx, actor, access.ActionCancel, access.AppointmentOf(a)); err != nil {
			return err
		}
		return a.Cancel(reason, actor.ID, now, s.opts.Policy)
	})
	if err != nil {
		return nil, s.denied(ctx, actor, meta, access.ActionCancel, id.String(), err)
	}

	s.metrics.Appointment(string(a.Status))
	s.audit(ctx, actor, meta, domain.ActionCancel, a, map[string]any{"from": from, "reason": reason})
	s.publish(ctx, events.NewEvent(events.AppointmentCancelled, actor.ID, a, from, now))

	logger.For(ctx, s.log).Info("appointment cancelled",
		zap.String("appointment_id", a.ID.String()),
		zap.String("cancelled_by", actor.ID.String()),
	)
	return a, nil
}

// UpdateAppointment edits the descriptive fields of an appointment. Slot,
// fee and status never change here.
func (s *AppointmentService) UpdateAppointment(ctx context.Context, actor domain.Actor, id uuid.UUID, cmd *appointment.UpdateAppointmentCommand, meta RequestMeta) (*appointment.Appointment, error) {
	fields := cmd.Fields()
	if len(fields) == 0 {
		return nil, domain.Validation("no fields to update")
	}
	if cmd.Type != nil && !cmd.Type.IsValid() {
		return nil, appointment.ErrInvalidAppointmentType
	}
	if cmd.Reason != nil && strings.TrimSpace(*cmd.Reason) == "" {
		return nil, appointment.ErrReasonRequired
	}

	a, err := s.repo.Mutate(ctx, id, func(a *appointment.Appointment) error {
		if _, err := s.guard.AuthorizeUpdate(ctx, actor, a, fields); err != nil {
			return err
		}
		if cmd.Type != nil {
			a.Type = *cmd.Type
		}
		if cmd.Reason != nil {
			a.Reason = strings.TrimSpace(*cmd.Reason)
		}
		if cmd.Notes != nil {
			a.Notes = strings.TrimSpace(*cmd.Notes)
		}
		return nil
	})
	if err != nil {
		return nil, s.denied(ctx, actor, meta, access.ActionUpdate, id.String(), err)
	}

	s.audit(ctx, actor, meta, domain.ActionUpdate, a, map[string]any{"fields": fields})
	return a, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, actor domain.Actor, id uuid.UUID, meta RequestMeta) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Require(ctx, actor, access.ActionRead, access.AppointmentOf(a)); err != nil {
		return nil, s.denied(ctx, actor, meta, access.ActionRead, id.String(), err)
	}

	s.audit(ctx, actor, meta, domain.ActionRead, a, nil)
	return a, nil
}

func (s *AppointmentService) ListAppointments(ctx context.Context, actor domain.Actor, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	if q.Status != nil && !q.Status.IsValid() {
		return nil, appointment.ErrInvalidStatus
	}
	if err := s.guard.ScopeAppointmentQuery(ctx, actor, q); err != nil {
		s.metrics.Denied(string(access.ActionList))
		return nil, err
	}
	if q.PageSize <= 0 || q.PageSize > maxPageSize {
		q.PageSize = defaultPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

// IsUpcoming and CanBeCancelled expose the derived queries with the
// service's clock and policy.
func (s *AppointmentService) IsUpcoming(a *appointment.Appointment) bool {
	return appointment.IsUpcoming(a, s.now(), s.opts.Policy.Location)
}

func (s *AppointmentService) CanBeCancelled(a *appointment.Appointment) bool {
	return appointment.CanBeCancelled(a, s.now(), s.opts.Policy)
}

func (s *AppointmentService) requireActive(ctx context.Context, id uuid.UUID, role domain.Role, notFound error) error {
	actor, err := s.dir.GetActor(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", role, err)
	}
	if actor.Role != role || !actor.Status.CanTransact() {
		return notFound
	}
	return nil
}

// denied records authorization failures before handing err back.
func (s *AppointmentService) denied(ctx context.Context, actor domain.Actor, meta RequestMeta, action access.Action, resourceID string, err error) error {
	if !errors.Is(err, domain.ErrAuthorization) {
		return err
	}
	s.metrics.Denied(string(action))
	entry := auditFor(actor, meta, domain.ActionDeny, "appointment", resourceID)
	entry.StatusCode = 403
	entry.Changes = mustJSON(map[string]any{"action": action, "reason": err.Error()})
	s.auditSvc.LogAsync(ctx, entry)
	return err
}

func (s *AppointmentService) audit(ctx context.Context, actor domain.Actor, meta RequestMeta, action domain.AuditAction, a *appointment.Appointment, changes map[string]any) {
	entry := auditFor(actor, meta, action, "appointment", a.ID.String())
	if changes != nil {
		entry.Changes = mustJSON(changes)
	}
	s.auditSvc.LogAsync(ctx, entry)
}

// publish never fails the operation: the change is already committed.
func (s *AppointmentService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.metrics.PublishFailed()
		logger.For(ctx, s.log).Error("failed to publish appointment event",
			zap.String("event_type", string(e.Type)),
			zap.String("appointment_id", e.AppointmentID.String()),
			zap.Error(err),
		)
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if kind, ok := domain.KindOf(err); ok {
			span.SetAttributes(attribute.String("error.kind", string(kind)))
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
