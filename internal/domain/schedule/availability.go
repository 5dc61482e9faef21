package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Workplace is a doctor's practice location.
type Workplace struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	DoctorID        uuid.UUID       `gorm:"column:doctor_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;type:varchar(150);not null"`
	Address         string          `gorm:"column:address;type:text"`
	ConsultationFee decimal.Decimal `gorm:"column:consultation_fee;type:numeric(12,2);not null;default:0"`

	Availability []AvailabilityEntry `gorm:"foreignKey:WorkplaceID"`
}

func (Workplace) TableName() string {
	return "directory.workplaces"
}

// AvailabilityEntry is one recurring weekly window. A workplace may have
// several entries for the same day; they are assumed disjoint.
type AvailabilityEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	WorkplaceID uuid.UUID `gorm:"column:workplace_id;type:uuid;not null;index"`
	Day         Weekday   `gorm:"column:day_of_week;type:varchar(10);not null"`
	StartTime   string    `gorm:"column:start_time;type:varchar(5);not null"`
	EndTime     string    `gorm:"column:end_time;type:varchar(5);not null"`
	IsAvailable bool      `gorm:"column:is_available;not null;default:true"`
}

func (AvailabilityEntry) TableName() string {
	return "directory.workplace_availability"
}

// Window parses the entry's bounds.
func (e AvailabilityEntry) Window() (start, end Clock, err error) {
	if start, err = ParseClock(e.StartTime); err != nil {
		return 0, 0, fmt.Errorf("availability %s start: %w", e.ID, err)
	}
	if end, err = ParseClock(e.EndTime); err != nil {
		return 0, 0, fmt.Errorf("availability %s end: %w", e.ID, err)
	}
	return start, end, nil
}

// Bookable reports whether the entry generates slots on the given day.
func (e AvailabilityEntry) Bookable(day Weekday) bool {
	return e.IsAvailable && e.Day == day
}
