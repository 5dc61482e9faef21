package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
)

func TestGetPatient_DoctorNeedsRelationship(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.profiles.GetPatient(ctx, e.doctor, e.patient.ID, RequestMeta{}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected a doctor without appointments to be denied, got %v", err)
	}

	a := e.mustBook(t, "10:00", 30)
	if _, err := e.profiles.GetPatient(ctx, e.doctor, e.patient.ID, RequestMeta{}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected a pending booking not to grant access, got %v", err)
	}

	if _, err := e.appointments.TransitionAppointment(ctx, e.doctor, a.ID,
		&appointment.TransitionCommand{Status: appointment.StatusConfirmed}, RequestMeta{}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	p, err := e.profiles.GetPatient(ctx, e.doctor, e.patient.ID, RequestMeta{})
	if err != nil {
		t.Fatalf("expected access after confirmation, got %v", err)
	}
	if p.ID != e.patient.ID {
		t.Fatalf("unexpected profile %s", p.ID)
	}

	// The relationship is re-evaluated on every request.
	if _, err := e.appointments.TransitionAppointment(ctx, e.admin, a.ID,
		&appointment.TransitionCommand{Status: appointment.StatusCancelled, Reason: "doctor unavailable"}, RequestMeta{}); err != nil {
		t.Fatalf("force cancel: %v", err)
	}
	if _, err := e.profiles.GetPatient(ctx, e.doctor, e.patient.ID, RequestMeta{}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected access to end with the relationship, got %v", err)
	}
}

func TestGetPatient_OwnAndOthers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.profiles.GetPatient(ctx, e.patient, e.patient.ID, RequestMeta{}); err != nil {
		t.Fatalf("own profile: %v", err)
	}
	if _, err := e.profiles.GetPatient(ctx, e.patient, e.other.ID, RequestMeta{}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected another patient's profile to be denied, got %v", err)
	}
	if _, err := e.profiles.GetPatient(ctx, e.admin, e.doctor.ID, RequestMeta{}); !errors.Is(err, directory.ErrPatientNotFound) {
		t.Fatalf("expected a doctor id to not resolve to a patient, got %v", err)
	}
}

func TestGetDoctor_Views(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	public, err := e.profiles.GetDoctor(ctx, e.patient, e.doctor.ID)
	if err != nil {
		t.Fatalf("patient view: %v", err)
	}
	if public.Email != "" || public.Status != "" {
		t.Fatalf("expected contact fields to be hidden, got %+v", public)
	}
	if len(public.Workplaces) != 1 {
		t.Fatalf("expected the workplace to be listed, got %d", len(public.Workplaces))
	}

	full, err := e.profiles.GetDoctor(ctx, e.doctor, e.doctor.ID)
	if err != nil {
		t.Fatalf("own view: %v", err)
	}
	if full.Email == "" {
		t.Fatal("expected the doctor to see their own email")
	}

	e.dir.SetStatus(e.doctor.ID, domain.ActorInactive)
	if _, err := e.profiles.GetDoctor(ctx, e.patient, e.doctor.ID); !errors.Is(err, directory.ErrDoctorNotFound) {
		t.Fatalf("expected an inactive doctor to be hidden, got %v", err)
	}
	if _, err := e.profiles.GetDoctor(ctx, e.admin, e.doctor.ID); err != nil {
		t.Fatalf("expected admins to see inactive doctors, got %v", err)
	}
}

func TestUpdateProfiles(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	phone := "+15550100"
	specialty := "Cardiology"
	empty := " "

	p, err := e.profiles.UpdatePatient(ctx, e.patient, e.patient.ID, &directory.UpdateProfileCommand{Phone: &phone, Specialty: &specialty}, RequestMeta{})
	if err != nil {
		t.Fatalf("update patient: %v", err)
	}
	if p.Phone != phone {
		t.Fatalf("expected phone %q, got %q", phone, p.Phone)
	}
	stored, _ := e.dir.GetUser(ctx, e.patient.ID)
	if stored.Specialty != "" {
		t.Fatal("expected doctor-only fields to be ignored for patients")
	}

	if _, err := e.profiles.UpdatePatient(ctx, e.patient, e.patient.ID, &directory.UpdateProfileCommand{FirstName: &empty}, RequestMeta{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if _, err := e.profiles.UpdateDoctor(ctx, e.patient, e.doctor.ID, &directory.UpdateProfileCommand{Specialty: &specialty}, RequestMeta{}); !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("expected a patient editing a doctor to be denied, got %v", err)
	}

	d, err := e.profiles.UpdateDoctor(ctx, e.doctor, e.doctor.ID, &directory.UpdateProfileCommand{Specialty: &specialty}, RequestMeta{})
	if err != nil {
		t.Fatalf("update doctor: %v", err)
	}
	if d.Specialty != specialty {
		t.Fatalf("expected specialty %q, got %q", specialty, d.Specialty)
	}
}
