// Package memory holds in-process stores with the same contracts and
// constraints as the postgres repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
)

type AppointmentStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*appointment.Appointment
	now   func() time.Time
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{items: make(map[uuid.UUID]*appointment.Appointment), now: time.Now}
}

var _ appointment.Repository = (*AppointmentStore)(nil)

func (s *AppointmentStore) Book(_ context.Context, a *appointment.Appointment, check appointment.BookingCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeFor(a.DoctorID, a.WorkplaceID, a.Date)
	if check != nil {
		if err := check(active); err != nil {
			return err
		}
	}
	// Same guarantees as the unique index and exclusion constraint.
	for _, b := range active {
		if b.StartMinute == a.StartMinute || a.Interval().Overlaps(b.Interval()) {
			return appointment.ErrSlotUnavailable
		}
	}
	if _, exists := s.items[a.ID]; exists {
		return appointment.ErrSlotUnavailable
	}

	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.items[a.ID] = clone(a)
	return nil
}

func (s *AppointmentStore) Mutate(_ context.Context, id uuid.UUID, fn func(*appointment.Appointment) error) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	next := clone(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.items[id] = next
	return clone(next), nil
}

func (s *AppointmentStore) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.items[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return clone(a), nil
}

func (s *AppointmentStore) ListActiveForDay(_ context.Context, doctorID, workplaceID uuid.UUID, date time.Time) ([]*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeFor(doctorID, workplaceID, date), nil
}

func (s *AppointmentStore) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	s.mu.Lock()
	var matched []*appointment.Appointment
	for _, a := range s.items {
		if matches(a, q) {
			matched = append(matched, clone(a))
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].StartMinute < matched[j].StartMinute
	})

	page, size := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return &appointment.PagedAppointments{
		Appointments: matched[start:end],
		TotalCount:   int64(total),
		Page:         page,
		PageSize:     size,
		TotalPages:   (total + size - 1) / size,
	}, nil
}

func (s *AppointmentStore) HasRelationship(_ context.Context, doctorID, patientID uuid.UUID, statuses ...appointment.AppointmentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.items {
		if a.DoctorID != doctorID || a.PatientID != patientID {
			continue
		}
		for _, st := range statuses {
			if a.Status == st {
				return true, nil
			}
		}
	}
	return false, nil
}

// All returns a snapshot of every stored appointment.
func (s *AppointmentStore) All() []*appointment.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*appointment.Appointment, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, clone(a))
	}
	return out
}

func (s *AppointmentStore) activeFor(doctorID, workplaceID uuid.UUID, date time.Time) []*appointment.Appointment {
	day := date.Format(schedule.DateLayout)
	var out []*appointment.Appointment
	for _, a := range s.items {
		if a.DoctorID == doctorID && a.WorkplaceID == workplaceID &&
			a.Date.Format(schedule.DateLayout) == day && a.Status.IsActive() {
			out = append(out, clone(a))
		}
	}
	return out
}

func matches(a *appointment.Appointment, q *appointment.ListAppointmentsQuery) bool {
	if q.PatientID != nil && a.PatientID != *q.PatientID {
		return false
	}
	if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
		return false
	}
	if q.WorkplaceID != nil && a.WorkplaceID != *q.WorkplaceID {
		return false
	}
	if q.Status != nil && a.Status != *q.Status {
		return false
	}
	if q.DateFrom != nil && a.Date.Before(schedule.DateOf(*q.DateFrom)) {
		return false
	}
	if q.DateTo != nil && a.Date.After(schedule.DateOf(*q.DateTo)) {
		return false
	}
	return true
}

func clone(a *appointment.Appointment) *appointment.Appointment {
	c := *a
	c.CancelledAt = cloneTime(a.CancelledAt)
	c.ConfirmedAt = cloneTime(a.ConfirmedAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	if a.CancelledBy != nil {
		id := *a.CancelledBy
		c.CancelledBy = &id
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
