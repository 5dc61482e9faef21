package access

import (
	"context"
	"errors"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/google/uuid"
)

type fakeRelations struct {
	pairs map[[2]uuid.UUID]bool
	calls int
	err   error
}

func (f *fakeRelations) HasRelationship(_ context.Context, doctorID, patientID uuid.UUID, statuses ...appointment.AppointmentStatus) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.pairs[[2]uuid.UUID{doctorID, patientID}], nil
}

type fixture struct {
	guard     *Guard
	relations *fakeRelations
	patient   domain.Actor
	other     domain.Actor
	doctor    domain.Actor
	admin     domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rel := &fakeRelations{pairs: map[[2]uuid.UUID]bool{}}
	g, err := NewGuard(rel)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return &fixture{
		guard:     g,
		relations: rel,
		patient:   domain.Actor{ID: uuid.New(), Role: domain.RolePatient, Status: domain.ActorActive},
		other:     domain.Actor{ID: uuid.New(), Role: domain.RolePatient, Status: domain.ActorActive},
		doctor:    domain.Actor{ID: uuid.New(), Role: domain.RoleDoctor, Status: domain.ActorActive},
		admin:     domain.Actor{ID: uuid.New(), Role: domain.RoleAdmin, Status: domain.ActorActive},
	}
}

func TestAuthorize_CapabilityTable(t *testing.T) {
	f := newFixture(t)
	own := Appointment{PatientID: f.patient.ID, DoctorID: f.doctor.ID}
	foreign := Appointment{PatientID: f.other.ID, DoctorID: uuid.New()}

	tests := []struct {
		name   string
		actor  domain.Actor
		action Action
		res    Resource
		want   bool
	}{
		{"patient creates own", f.patient, ActionCreate, own, true},
		{"patient creates for someone else", f.patient, ActionCreate, foreign, false},
		{"patient reads own", f.patient, ActionRead, own, true},
		{"patient reads foreign", f.patient, ActionRead, foreign, false},
		{"patient cancels own", f.patient, ActionCancel, own, true},
		{"patient cancels foreign", f.patient, ActionCancel, foreign, false},
		{"patient reads own profile", f.patient, ActionRead, Patient{ID: f.patient.ID}, true},
		{"patient reads other profile", f.patient, ActionRead, Patient{ID: f.other.ID}, false},
		{"patient reads active doctor", f.patient, ActionRead, Doctor{ID: f.doctor.ID, Active: true}, true},
		{"patient reads inactive doctor", f.patient, ActionRead, Doctor{ID: f.doctor.ID}, false},
		{"patient updates doctor", f.patient, ActionUpdate, Doctor{ID: f.doctor.ID, Active: true}, false},

		{"doctor reads own appointment", f.doctor, ActionRead, own, true},
		{"doctor reads foreign appointment", f.doctor, ActionRead, foreign, false},
		{"doctor creates appointment", f.doctor, ActionCreate, own, false},
		{"doctor cancels own appointment", f.doctor, ActionCancel, own, false},
		{"doctor reads own profile", f.doctor, ActionRead, Doctor{ID: f.doctor.ID, Active: true}, true},
		{"doctor updates other doctor", f.doctor, ActionUpdate, Doctor{ID: uuid.New(), Active: true}, false},

		{"admin reads anything", f.admin, ActionRead, foreign, true},
		{"admin creates for anyone", f.admin, ActionCreate, foreign, true},
		{"admin updates patient", f.admin, ActionUpdate, Patient{ID: f.other.ID}, true},
		{"admin updates doctor", f.admin, ActionUpdate, Doctor{ID: f.doctor.ID}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := f.guard.Authorize(context.Background(), tt.actor, tt.action, tt.res)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed != tt.want {
				t.Fatalf("expected allowed=%v, got %+v", tt.want, d)
			}
			if !d.Allowed && d.Reason == "" {
				t.Fatal("denials must carry a reason")
			}
		})
	}
}

func TestAuthorize_AccountStatus(t *testing.T) {
	f := newFixture(t)
	res := Appointment{PatientID: f.patient.ID}

	tests := []struct {
		status domain.ActorStatus
		action Action
		want   bool
	}{
		{domain.ActorActive, ActionCreate, true},
		{domain.ActorPending, ActionRead, true},
		{domain.ActorPending, ActionList, true},
		{domain.ActorPending, ActionCreate, false},
		{domain.ActorPending, ActionCancel, false},
		{domain.ActorInactive, ActionRead, false},
		{domain.ActorBlocked, ActionRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.action), func(t *testing.T) {
			actor := f.patient
			actor.Status = tt.status
			d, err := f.guard.Authorize(context.Background(), actor, tt.action, res)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed != tt.want {
				t.Fatalf("expected allowed=%v, got %+v", tt.want, d)
			}
		})
	}

	blockedAdmin := f.admin
	blockedAdmin.Status = domain.ActorBlocked
	if d, _ := f.guard.Authorize(context.Background(), blockedAdmin, ActionRead, res); d.Allowed {
		t.Fatal("blocked admins must be denied")
	}

	unknown := domain.Actor{ID: uuid.New(), Role: "nurse", Status: domain.ActorActive}
	if d, _ := f.guard.Authorize(context.Background(), unknown, ActionRead, res); d.Allowed {
		t.Fatal("unknown roles must be denied")
	}
}

func TestAuthorize_DoctorPatientRelationship(t *testing.T) {
	f := newFixture(t)
	res := Patient{ID: f.patient.ID}

	d, err := f.guard.Authorize(context.Background(), f.doctor, ActionRead, res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial without a relationship")
	}

	f.relations.pairs[[2]uuid.UUID{f.doctor.ID, f.patient.ID}] = true
	d, err = f.guard.Authorize(context.Background(), f.doctor, ActionUpdate, res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Scope != ScopeRelated {
		t.Fatalf("expected related grant, got %+v", d)
	}

	// Re-evaluated on every request.
	delete(f.relations.pairs, [2]uuid.UUID{f.doctor.ID, f.patient.ID})
	d, _ = f.guard.Authorize(context.Background(), f.doctor, ActionRead, res)
	if d.Allowed {
		t.Fatal("expected denial after the relationship disappeared")
	}
	if f.relations.calls != 3 {
		t.Fatalf("expected 3 relationship queries, got %d", f.relations.calls)
	}

	f.relations.err = errors.New("db down")
	if _, err := f.guard.Authorize(context.Background(), f.doctor, ActionRead, res); err == nil {
		t.Fatal("expected relationship errors to propagate")
	}
}

func TestRequire(t *testing.T) {
	f := newFixture(t)
	_, err := f.guard.Require(context.Background(), f.other, ActionCancel, Appointment{PatientID: f.patient.ID})
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestAuthorizeTransition(t *testing.T) {
	f := newFixture(t)
	mk := func(status appointment.AppointmentStatus) *appointment.Appointment {
		return &appointment.Appointment{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID, Status: status}
	}

	tests := []struct {
		name       string
		actor      domain.Actor
		from, to   appointment.AppointmentStatus
		wantForced bool
		wantErr    error
	}{
		{"doctor confirms", f.doctor, appointment.StatusPending, appointment.StatusConfirmed, false, nil},
		{"doctor completes", f.doctor, appointment.StatusConfirmed, appointment.StatusCompleted, false, nil},
		{"doctor marks no-show", f.doctor, appointment.StatusConfirmed, appointment.StatusNoShow, false, nil},
		{"doctor cancels via transition", f.doctor, appointment.StatusPending, appointment.StatusCancelled, false, domain.ErrAuthorization},
		{"doctor invalid edge left to lifecycle", f.doctor, appointment.StatusCompleted, appointment.StatusConfirmed, false, nil},
		{"patient cancels pending", f.patient, appointment.StatusPending, appointment.StatusCancelled, false, nil},
		{"patient cancels confirmed", f.patient, appointment.StatusConfirmed, appointment.StatusCancelled, false, domain.ErrAuthorization},
		{"patient confirms", f.patient, appointment.StatusPending, appointment.StatusConfirmed, false, domain.ErrAuthorization},
		{"other patient", f.other, appointment.StatusPending, appointment.StatusCancelled, false, domain.ErrAuthorization},
		{"admin forces", f.admin, appointment.StatusPending, appointment.StatusCompleted, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forced, err := f.guard.AuthorizeTransition(context.Background(), tt.actor, mk(tt.from), tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if forced != tt.wantForced {
				t.Fatalf("expected forced=%v, got %v", tt.wantForced, forced)
			}
		})
	}
}

func TestAuthorizeUpdate(t *testing.T) {
	f := newFixture(t)
	mk := func(status appointment.AppointmentStatus) *appointment.Appointment {
		return &appointment.Appointment{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: f.doctor.ID, Status: status}
	}

	tests := []struct {
		name    string
		actor   domain.Actor
		status  appointment.AppointmentStatus
		fields  []string
		wantErr bool
	}{
		{"patient edits pending reason", f.patient, appointment.StatusPending, []string{"reason", "notes"}, false},
		{"patient edits confirmed", f.patient, appointment.StatusConfirmed, []string{"notes"}, true},
		{"patient edits type", f.patient, appointment.StatusPending, []string{"type"}, true},
		{"doctor edits notes", f.doctor, appointment.StatusConfirmed, []string{"notes"}, false},
		{"doctor edits reason", f.doctor, appointment.StatusConfirmed, []string{"reason"}, true},
		{"doctor edits completed", f.doctor, appointment.StatusCompleted, []string{"notes"}, true},
		{"admin edits anything", f.admin, appointment.StatusCompleted, []string{"type", "reason"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override, err := f.guard.AuthorizeUpdate(context.Background(), tt.actor, mk(tt.status), tt.fields)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrAuthorization) {
					t.Fatalf("expected authorization error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if override != (tt.actor.Role == domain.RoleAdmin) {
				t.Fatalf("unexpected override=%v", override)
			}
		})
	}
}

func TestScopeAppointmentQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q := &appointment.ListAppointmentsQuery{}
	if err := f.guard.ScopeAppointmentQuery(ctx, f.patient, q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.PatientID == nil || *q.PatientID != f.patient.ID {
		t.Fatalf("expected query pinned to patient, got %v", q.PatientID)
	}

	q = &appointment.ListAppointmentsQuery{}
	if err := f.guard.ScopeAppointmentQuery(ctx, f.doctor, q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.DoctorID == nil || *q.DoctorID != f.doctor.ID {
		t.Fatalf("expected query pinned to doctor, got %v", q.DoctorID)
	}

	otherID := f.other.ID
	q = &appointment.ListAppointmentsQuery{PatientID: &otherID}
	if err := f.guard.ScopeAppointmentQuery(ctx, f.patient, q); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	q = &appointment.ListAppointmentsQuery{PatientID: &otherID}
	if err := f.guard.ScopeAppointmentQuery(ctx, f.admin, q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *q.PatientID != otherID || q.DoctorID != nil {
		t.Fatal("admin queries must not be rewritten")
	}
}
