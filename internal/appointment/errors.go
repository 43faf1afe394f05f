package appointment

import "errors"

// Booking and join errors. Callers compare with errors.Is; the HTTP layer maps
// each one to a status code.
var (
	ErrInvalidRequest       = errors.New("invalid booking request")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrDoctorNotVerified    = errors.New("doctor is not verified")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrSlotUnavailable      = errors.New("slot is no longer available")
	ErrProvisioningFailed   = errors.New("video session provisioning failed")
	ErrCreditTransferFailed = errors.New("credit transfer failed")

	ErrNotAuthorized = errors.New("not a participant of this appointment")
	ErrNotScheduled  = errors.New("appointment is not scheduled")
	ErrTooEarly      = errors.New("appointment cannot be joined yet")

	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAvailabilityNotSet  = errors.New("doctor has not set availability")
)
