package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Directory keeps users and workplaces in memory. It serves the scheduling
// directory, profiles and authentication.
type Directory struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]*domain.User
	workplaces map[uuid.UUID]*schedule.Workplace
}

func NewDirectory() *Directory {
	return &Directory{
		users:      make(map[uuid.UUID]*domain.User),
		workplaces: make(map[uuid.UUID]*schedule.Workplace),
	}
}

var (
	_ directory.Directory    = (*Directory)(nil)
	_ directory.ProfileStore = (*Directory)(nil)
)

func (d *Directory) AddUser(u *domain.User) *domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	c := *u
	d.users[u.ID] = &c
	return u
}

// SetStatus changes an account status, as an administrator would.
func (d *Directory) SetStatus(id uuid.UUID, status domain.ActorStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[id]; ok {
		u.Status = status
	}
}

func (d *Directory) AddWorkplace(w *schedule.Workplace) *schedule.Workplace {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	for i := range w.Availability {
		w.Availability[i].WorkplaceID = w.ID
	}
	c := *w
	c.Availability = append([]schedule.AvailabilityEntry(nil), w.Availability...)
	d.workplaces[w.ID] = &c
	return w
}

func (d *Directory) GetActor(_ context.Context, id uuid.UUID) (domain.Actor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return domain.Actor{}, directory.ErrActorNotFound
	}
	return u.Actor(), nil
}

func (d *Directory) GetDoctorAvailability(_ context.Context, doctorID, workplaceID uuid.UUID) ([]schedule.AvailabilityEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workplaces[workplaceID]
	if !ok || w.DoctorID != doctorID {
		return nil, nil
	}
	return append([]schedule.AvailabilityEntry(nil), w.Availability...), nil
}

func (d *Directory) GetDoctorFee(_ context.Context, doctorID, workplaceID uuid.UUID) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workplaces[workplaceID]
	if !ok || w.DoctorID != doctorID {
		return decimal.Zero, directory.ErrWorkplaceNotFound
	}
	return w.ConsultationFee, nil
}

func (d *Directory) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, directory.ErrActorNotFound
	}
	c := *u
	return &c, nil
}

func (d *Directory) UpdateUser(_ context.Context, id uuid.UUID, fn func(*domain.User) error) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, directory.ErrActorNotFound
	}
	c := *u
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now()
	d.users[id] = &c
	out := c
	return &out, nil
}

func (d *Directory) ListWorkplaces(_ context.Context, doctorID uuid.UUID) ([]schedule.Workplace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []schedule.Workplace
	for _, w := range d.workplaces {
		if w.DoctorID == doctorID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (d *Directory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, directory.ErrActorNotFound
}

func (d *Directory) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return d.GetUser(ctx, id)
}

func (d *Directory) RecordLoginFailure(_ context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return directory.ErrActorNotFound
	}
	u.FailedLoginCount++
	if u.FailedLoginCount >= maxAttempts {
		t := lockUntil
		u.LockedUntil = &t
	}
	return nil
}

func (d *Directory) RecordLoginSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return directory.ErrActorNotFound
	}
	u.FailedLoginCount = 0
	u.LockedUntil = nil
	t := at
	u.LastLoginAt = &t
	return nil
}

func (d *Directory) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return directory.ErrActorNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = time.Now()
	return nil
}

// AuditSink collects audit entries.
type AuditSink struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (s *AuditSink) Create(_ context.Context, entry *domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *AuditSink) Entries() []domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLog(nil), s.entries...)
}
