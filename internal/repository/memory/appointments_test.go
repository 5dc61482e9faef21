package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newAppt(doctor, workplace uuid.UUID, start schedule.Clock, duration int) *appointment.Appointment {
	a := &appointment.Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		DoctorID:    doctor,
		WorkplaceID: workplace,
		Date:        day,
		Status:      appointment.StatusPending,
	}
	a.SetSlot(start, duration)
	return a
}

func TestBook_RejectsOverlapWithoutCheck(t *testing.T) {
	s := NewAppointmentStore()
	doctor, workplace := uuid.New(), uuid.New()
	ctx := context.Background()

	if err := s.Book(ctx, newAppt(doctor, workplace, 570, 30), nil); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if err := s.Book(ctx, newAppt(doctor, workplace, 540, 60), nil); !errors.Is(err, appointment.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	// Adjacent and other-workplace bookings are fine.
	if err := s.Book(ctx, newAppt(doctor, workplace, 600, 30), nil); err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}
	if err := s.Book(ctx, newAppt(doctor, uuid.New(), 570, 30), nil); err != nil {
		t.Fatalf("other workplace: %v", err)
	}
}

func TestBook_CancelledFreesSlot(t *testing.T) {
	s := NewAppointmentStore()
	doctor, workplace := uuid.New(), uuid.New()
	ctx := context.Background()

	first := newAppt(doctor, workplace, 570, 30)
	if err := s.Book(ctx, first, nil); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := s.Mutate(ctx, first.ID, func(a *appointment.Appointment) error {
		a.Status = appointment.StatusCancelled
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if err := s.Book(ctx, newAppt(doctor, workplace, 570, 30), nil); err != nil {
		t.Fatalf("expected the cancelled slot to be free, got %v", err)
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	s := NewAppointmentStore()
	doctor, workplace := uuid.New(), uuid.New()

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Mix identical and partially overlapping requests.
			start := schedule.Clock(540 + (i%3)*15)
			err := s.Book(context.Background(), newAppt(doctor, workplace, start, 30), nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, appointment.ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes+conflicts != n {
		t.Fatalf("expected %d outcomes, got %d", n, successes+conflicts)
	}
	active := s.activeFor(doctor, workplace, day)
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			if active[i].Interval().Overlaps(active[j].Interval()) {
				t.Fatalf("overlapping active appointments: %s and %s", active[i].Time, active[j].Time)
			}
		}
	}
	if successes != len(active) {
		t.Fatalf("expected %d stored, got %d", successes, len(active))
	}
}

func TestMutate_FailureLeavesRecord(t *testing.T) {
	s := NewAppointmentStore()
	a := newAppt(uuid.New(), uuid.New(), 540, 30)
	ctx := context.Background()
	if err := s.Book(ctx, a, nil); err != nil {
		t.Fatalf("book: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Mutate(ctx, a.ID, func(a *appointment.Appointment) error {
		a.Status = appointment.StatusCompleted
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.GetByID(ctx, a.ID)
	if got.Status != appointment.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	if _, err := s.Mutate(ctx, uuid.New(), func(*appointment.Appointment) error { return nil }); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestList_FiltersAndPages(t *testing.T) {
	s := NewAppointmentStore()
	doctor, workplace := uuid.New(), uuid.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Book(ctx, newAppt(doctor, workplace, schedule.Clock(540+i*30), 30), nil); err != nil {
			t.Fatalf("book %d: %v", i, err)
		}
	}
	if err := s.Book(ctx, newAppt(uuid.New(), workplace, 540, 30), nil); err != nil {
		t.Fatalf("book other doctor: %v", err)
	}

	page, err := s.List(ctx, &appointment.ListAppointmentsQuery{DoctorID: &doctor, Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalCount != 5 || page.TotalPages != 3 || len(page.Appointments) != 2 {
		t.Fatalf("unexpected page: total=%d pages=%d len=%d", page.TotalCount, page.TotalPages, len(page.Appointments))
	}
	if page.Appointments[0].Time != "10:00" || page.Appointments[1].Time != "10:30" {
		t.Fatalf("expected 10:00 and 10:30, got %s and %s", page.Appointments[0].Time, page.Appointments[1].Time)
	}
}

func TestHasRelationship(t *testing.T) {
	s := NewAppointmentStore()
	ctx := context.Background()
	a := newAppt(uuid.New(), uuid.New(), 540, 30)
	if err := s.Book(ctx, a, nil); err != nil {
		t.Fatalf("book: %v", err)
	}

	ok, _ := s.HasRelationship(ctx, a.DoctorID, a.PatientID, appointment.StatusConfirmed, appointment.StatusCompleted)
	if ok {
		t.Fatal("pending appointments do not relate doctor and patient")
	}
	_, _ = s.Mutate(ctx, a.ID, func(a *appointment.Appointment) error {
		a.Status = appointment.StatusConfirmed
		return nil
	})
	ok, _ = s.HasRelationship(ctx, a.DoctorID, a.PatientID, appointment.StatusConfirmed, appointment.StatusCompleted)
	if !ok {
		t.Fatal("expected relationship after confirmation")
	}
}
