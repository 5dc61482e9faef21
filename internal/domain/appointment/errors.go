package appointment

import "github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"

var (
	ErrAppointmentNotFound = domain.NotFound("appointment not found")
	ErrSlotUnavailable     = domain.Conflict("appointment time slot is no longer available")

	ErrInvalidStatusTransition   = domain.State("invalid appointment status transition")
	ErrNotCancellable            = domain.State("appointment is not cancellable")
	ErrCancellationViaTransition = domain.State("cancellation requires the cancel operation")

	ErrScheduledInPast            = domain.Validation("cannot schedule appointment in the past")
	ErrInvalidDuration            = domain.Validation("appointment duration must be between 15 and 120 minutes")
	ErrInvalidAppointmentType     = domain.Validation("invalid appointment type")
	ErrInvalidStatus              = domain.Validation("invalid appointment status")
	ErrInvalidDate                = domain.Validation("invalid appointment date: expected YYYY-MM-DD")
	ErrInvalidTime                = domain.Validation("invalid appointment time: expected HH:MM")
	ErrReasonRequired             = domain.Validation("appointment reason is required")
	ErrCancellationReasonRequired = domain.Validation("cancellation reason is required")
	ErrSlotNotBookable            = domain.Validation("requested time is not a bookable slot for this doctor and workplace")
)
