package appointment

import (
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultDurationMins = 30
	MinDurationMins     = 15
	MaxDurationMins     = 120
)

type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow_up"
	TypeEmergency      AppointmentType = "emergency"
	TypeRoutineCheckup AppointmentType = "routine_checkup"
	TypeProcedure      AppointmentType = "procedure"
	TypeLabResults     AppointmentType = "lab_results"
)

func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheckup, TypeProcedure, TypeLabResults:
		return true
	}
	return false
}

// State transitions possibilities:
//
//	pending → confirmed → completed
//	pending | confirmed → cancelled
//	pending | confirmed → no_show
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

// ActiveStatuses occupy a slot.
var ActiveStatuses = []AppointmentStatus{StatusPending, StatusConfirmed}

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	PatientID   uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`
	DoctorID    uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`
	WorkplaceID uuid.UUID `gorm:"column:workplace_id;type:uuid;not null;index" json:"workplace_id"`

	Date         time.Time         `gorm:"column:appointment_date;type:date;not null;index" json:"date"`
	Time         string            `gorm:"column:appointment_time;type:varchar(5);not null" json:"time"`
	StartMinute  int               `gorm:"column:start_minute;not null" json:"-"`
	EndMinute    int               `gorm:"column:end_minute;not null" json:"-"`
	DurationMins int               `gorm:"column:duration_mins;not null;default:30" json:"duration_mins"`
	Type         AppointmentType   `gorm:"column:type;type:varchar(50);not null;index" json:"type"`
	Status       AppointmentStatus `gorm:"column:status;type:varchar(30);not null;default:'pending';index" json:"status"`

	Reason string `gorm:"column:reason;type:text;not null" json:"reason"`
	Notes  string `gorm:"column:notes;type:text" json:"notes,omitempty"`

	// Snapshot of the workplace fee at booking time.
	ConsultationFee decimal.Decimal `gorm:"column:consultation_fee;type:numeric(12,2);not null" json:"consultation_fee"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason,omitempty"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid" json:"cancelled_by,omitempty"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
}

func (Appointment) TableName() string {
	return "scheduling.appointments"
}

// SetSlot stores the start clock and the derived minute range used by the
// store's overlap constraint.
func (a *Appointment) SetSlot(start schedule.Clock, durationMins int) {
	a.Time = start.String()
	a.StartMinute = int(start)
	a.DurationMins = durationMins
	a.EndMinute = int(start) + durationMins
}

func (a *Appointment) Interval() schedule.Interval {
	return schedule.Interval{Start: schedule.Clock(a.StartMinute), Duration: a.DurationMins}
}

func (a *Appointment) CanTransitionTo(newStatus AppointmentStatus) bool {
	return CanTransition(a.Status, newStatus)
}

// CanForceTo is the administrative override: any move away from an active
// status, including edges the state machine does not list. Terminal
// records stay terminal.
func (a *Appointment) CanForceTo(newStatus AppointmentStatus) bool {
	return a.Status.IsActive() && newStatus.IsValid() && newStatus != StatusPending && newStatus != a.Status
}

// Transition applies a regular state machine move and stamps its timestamp.
func (a *Appointment) Transition(to AppointmentStatus, now time.Time) error {
	if !a.CanTransitionTo(to) {
		return ErrInvalidStatusTransition
	}
	if to == StatusCancelled {
		return ErrCancellationViaTransition
	}
	a.apply(to, now)
	return nil
}

// Force applies an administrative transition. It skips the edge table and
// the cancellation cutoff but never leaves a terminal state.
func (a *Appointment) Force(to AppointmentStatus, by uuid.UUID, reason string, now time.Time) error {
	if !a.CanForceTo(to) {
		return ErrInvalidStatusTransition
	}
	if to == StatusCancelled {
		a.stampCancellation(by, reason, now)
	}
	a.apply(to, now)
	return nil
}

// Cancel moves an active appointment to cancelled when the cutoff has not
// passed yet.
func (a *Appointment) Cancel(reason string, cancelledBy uuid.UUID, now time.Time, p Policy) error {
	if reason == "" {
		return ErrCancellationReasonRequired
	}
	if !CanBeCancelled(a, now, p) {
		return ErrNotCancellable
	}
	a.stampCancellation(cancelledBy, reason, now)
	a.apply(StatusCancelled, now)
	return nil
}

func (a *Appointment) stampCancellation(by uuid.UUID, reason string, now time.Time) {
	if a.CancelledBy == nil {
		a.CancelledBy = &by
	}
	if a.CancellationReason == "" {
		a.CancellationReason = reason
	}
	setOnce(&a.CancelledAt, now)
}

func (a *Appointment) apply(to AppointmentStatus, now time.Time) {
	a.Status = to
	switch to {
	case StatusConfirmed:
		setOnce(&a.ConfirmedAt, now)
	case StatusCompleted:
		setOnce(&a.CompletedAt, now)
	case StatusCancelled:
		setOnce(&a.CancelledAt, now)
	}
}

func setOnce(field **time.Time, now time.Time) {
	if *field != nil {
		return
	}
	t := now
	*field = &t
}

// Policy carries the time rules that depend on deployment configuration.
type Policy struct {
	Location           *time.Location
	CancellationCutoff time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Location: time.UTC, CancellationCutoff: 2 * time.Hour}
}

// DateTime is the instant the appointment starts.
func DateTime(a *Appointment, loc *time.Location) time.Time {
	return schedule.At(a.Date, schedule.Clock(a.StartMinute), loc)
}

func IsUpcoming(a *Appointment, now time.Time, loc *time.Location) bool {
	return a.Status.IsActive() && DateTime(a, loc).After(now)
}

// CanBeCancelled reports whether the appointment is active and starts
// strictly more than the cutoff after now.
func CanBeCancelled(a *Appointment, now time.Time, p Policy) bool {
	return a.Status.IsActive() && DateTime(a, p.Location).Sub(now) > p.CancellationCutoff
}

type CreateAppointmentCommand struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	WorkplaceID  uuid.UUID
	Date         string
	Time         string
	DurationMins int
	Type         AppointmentType
	Reason       string
	Notes        string
}

type TransitionCommand struct {
	Status AppointmentStatus
	Notes  *string
	// Reason is recorded when an administrator forces a cancellation.
	Reason string
}

type UpdateAppointmentCommand struct {
	Type   *AppointmentType
	Reason *string
	Notes  *string
}

// Fields lists the attributes the command touches.
func (c *UpdateAppointmentCommand) Fields() []string {
	var f []string
	if c.Type != nil {
		f = append(f, "type")
	}
	if c.Reason != nil {
		f = append(f, "reason")
	}
	if c.Notes != nil {
		f = append(f, "notes")
	}
	return f
}

type CancelAppointmentCommand struct {
	Reason string
}

type ListAppointmentsQuery struct {
	PatientID   *uuid.UUID
	DoctorID    *uuid.UUID
	WorkplaceID *uuid.UUID
	Status      *AppointmentStatus
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
}

type PagedAppointments struct {
	Appointments []*Appointment `json:"appointments"`
	TotalCount   int64          `json:"total_count"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	TotalPages   int            `json:"total_pages"`
}
