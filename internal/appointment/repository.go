package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetAvailability returns the doctor's AVAILABLE window or ErrAvailabilityNotSet.
	GetAvailability(ctx context.Context, doctorID uuid.UUID) (*AvailabilityWindow, error)

	// SCHEDULED appointments of a doctor overlapping iv, ordered by start.
	ListScheduledForDoctor(ctx context.Context, doctorID uuid.UUID, iv scheduling.Interval) ([]Appointment, error)
	// FindOverlapping returns nil, nil when no SCHEDULED appointment overlaps iv.
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, iv scheduling.Interval) (*Appointment, error)

	// CreateScheduled applies charge and inserts the appointment in one
	// transaction. An overlapping insert fails with ErrSlotUnavailable and a
	// failed charge with ErrCreditTransferFailed; neither leaves a trace.
	CreateScheduled(ctx context.Context, in NewAppointment, charge Charge) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error)
	UpdateVideoToken(ctx context.Context, id uuid.UUID, token string) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
