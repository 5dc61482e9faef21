package directory

import (
	"context"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrActorNotFound     = domain.NotFound("user not found")
	ErrPatientNotFound   = domain.NotFound("patient not found or inactive")
	ErrDoctorNotFound    = domain.NotFound("doctor not found or inactive")
	ErrWorkplaceNotFound = domain.NotFound("workplace not found for doctor")
)

// Directory is the read side of the user directory the scheduling core
// depends on.
type Directory interface {
	GetActor(ctx context.Context, id uuid.UUID) (domain.Actor, error)

	// GetDoctorAvailability returns the weekly entries of the doctor's
	// workplace. A workplace that does not belong to the doctor yields an
	// empty result, not an error.
	GetDoctorAvailability(ctx context.Context, doctorID, workplaceID uuid.UUID) ([]schedule.AvailabilityEntry, error)

	GetDoctorFee(ctx context.Context, doctorID, workplaceID uuid.UUID) (decimal.Decimal, error)
}

// ProfileStore reads and writes the profile side of directory users.
type ProfileStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, fn func(*domain.User) error) (*domain.User, error)
	ListWorkplaces(ctx context.Context, doctorID uuid.UUID) ([]schedule.Workplace, error)
}

type PatientProfile struct {
	ID          uuid.UUID          `json:"id"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	Email       string             `json:"email"`
	Phone       string             `json:"phone,omitempty"`
	DateOfBirth *time.Time         `json:"date_of_birth,omitempty"`
	Status      domain.ActorStatus `json:"status"`
}

func PatientProfileOf(u *domain.User) *PatientProfile {
	return &PatientProfile{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Phone:       u.Phone,
		DateOfBirth: u.DateOfBirth,
		Status:      u.Status,
	}
}

type WorkplaceSummary struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Address         string          `json:"address,omitempty"`
	ConsultationFee decimal.Decimal `json:"consultation_fee"`
}

type DoctorProfile struct {
	ID         uuid.UUID          `json:"id"`
	FirstName  string             `json:"first_name"`
	LastName   string             `json:"last_name"`
	Email      string             `json:"email,omitempty"`
	Phone      string             `json:"phone,omitempty"`
	Specialty  string             `json:"specialty,omitempty"`
	Bio        string             `json:"bio,omitempty"`
	Status     domain.ActorStatus `json:"status,omitempty"`
	Workplaces []WorkplaceSummary `json:"workplaces"`
}

func DoctorProfileOf(u *domain.User, workplaces []schedule.Workplace) *DoctorProfile {
	p := &DoctorProfile{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Phone:      u.Phone,
		Specialty:  u.Specialty,
		Bio:        u.Bio,
		Status:     u.Status,
		Workplaces: make([]WorkplaceSummary, 0, len(workplaces)),
	}
	for _, w := range workplaces {
		p.Workplaces = append(p.Workplaces, WorkplaceSummary{
			ID:              w.ID,
			Name:            w.Name,
			Address:         w.Address,
			ConsultationFee: w.ConsultationFee,
		})
	}
	return p
}

// Public strips contact and account fields.
func (p *DoctorProfile) Public() *DoctorProfile {
	return &DoctorProfile{
		ID:         p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Specialty:  p.Specialty,
		Bio:        p.Bio,
		Workplaces: p.Workplaces,
	}
}

type UpdateProfileCommand struct {
	FirstName *string
	LastName  *string
	Phone     *string

	// Doctor-only fields
	Specialty *string
	Bio       *string
}

// Apply copies the set fields onto u. Doctor-only fields are ignored for
// other roles.
func (c *UpdateProfileCommand) Apply(u *domain.User) {
	if c.FirstName != nil {
		u.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		u.LastName = *c.LastName
	}
	if c.Phone != nil {
		u.Phone = *c.Phone
	}
	if u.Role != domain.RoleDoctor {
		return
	}
	if c.Specialty != nil {
		u.Specialty = *c.Specialty
	}
	if c.Bio != nil {
		u.Bio = *c.Bio
	}
}
