package access

import (
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionTransition Action = "transition"
	ActionCancel     Action = "cancel"
	ActionList       Action = "list"
)

// readOnly actions are the only ones open to pending accounts.
func (a Action) readOnly() bool {
	return a == ActionRead || a == ActionList
}

// Kind names a resource class in the capability table.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindPatient     Kind = "patient"
	KindDoctor      Kind = "doctor"
)

// Resource is anything the guard can decide on. Ownership is read from
// the concrete value.
type Resource interface {
	Kind() Kind
}

type Appointment struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

func (Appointment) Kind() Kind { return KindAppointment }

func AppointmentOf(a *appointment.Appointment) Appointment {
	return Appointment{PatientID: a.PatientID, DoctorID: a.DoctorID}
}

type Patient struct {
	ID uuid.UUID
}

func (Patient) Kind() Kind { return KindPatient }

type Doctor struct {
	ID     uuid.UUID
	Active bool
}

func (Doctor) Kind() Kind { return KindDoctor }

// Scope qualifies a capability grant.
type Scope string

const (
	// ScopeAny grants the action on every resource of the kind.
	ScopeAny Scope = "any"
	// ScopeOwn requires the actor to be the resource's patient or doctor.
	ScopeOwn Scope = "own"
	// ScopeRelated requires a doctor-patient relationship through an appointment.
	ScopeRelated Scope = "related"
	// ScopePublic grants the public view of active resources.
	ScopePublic Scope = "public"
)

type Decision struct {
	Allowed bool
	Scope   Scope
	Reason  string
}

func allow(scope Scope) Decision {
	return Decision{Allowed: true, Scope: scope}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}
