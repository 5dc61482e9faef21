package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingCheck inspects the active appointments of the target
// (doctor, workplace, date) while the store holds its booking lock.
// Returning an error aborts the insert.
type BookingCheck func(active []*Appointment) error

type Repository interface {
	// Book runs check and inserts the appointment atomically with respect to any other Book
	// for the same doctor, workplace and date. A constraint violation on the
	// slot is reported as ErrSlotUnavailable.
	Book(ctx context.Context, a *Appointment, check BookingCheck) error

	// Mutate loads the appointment under a row lock, applies fn and persists
	// the result in the same transaction. Nothing is written when fn fails.
	Mutate(ctx context.Context, id uuid.UUID, fn func(*Appointment) error) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// ListActiveForDay returns pending and confirmed appointments.
	ListActiveForDay(ctx context.Context, doctorID, workplaceID uuid.UUID, date time.Time) ([]*Appointment, error)

	// HasRelationship reports whether at least one appointment between the
	// doctor and the patient is in one of statuses.
	HasRelationship(ctx context.Context, doctorID, patientID uuid.UUID, statuses ...AppointmentStatus) (bool, error)
}
