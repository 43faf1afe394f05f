package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/telehealth-scheduling/internal/credits"
	"github.com/hackgods/telehealth-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-scheduling/internal/video"
	"github.com/hackgods/telehealth-scheduling/pkg/logging"
)

const (
	EventAppointmentBooked = "APPOINTMENT_BOOKED"
	EventVideoTokenIssued  = "VIDEO_TOKEN_ISSUED"
	EventSessionOrphaned   = "VIDEO_SESSION_ORPHANED"
)

var tracer = otel.Tracer("telehealth.internal.appointment")

type Service struct {
	repo       Repository
	locker     redisclient.Locker
	video      video.Provisioner
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	defaultLoc *time.Location
	now        func() time.Time
}

type Option func(*Service)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now for slot generation and join checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultLocation sets the zone used for availability rows without one.
func WithDefaultLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.defaultLoc = loc
		}
	}
}

func NewService(repo Repository, locker redisclient.Locker, provisioner video.Provisioner, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		locker:     locker,
		video:      provisioner,
		logger:     logging.Default(),
		defaultLoc: time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookRequest is a patient's request for the interval [StartTime, EndTime).
type BookRequest struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Description *string
}

// BookAppointment reserves an interval with a verified doctor, charging the
// patient credits.AppointmentCost. Preconditions are checked in a fixed order
// and the first failure is returned. The overlap check, session provisioning
// and the charge+insert transaction run under the doctor's lock; the database
// exclusion constraint decides any race the lock does not cover, including
// bookings made while the lock backend is down.
func (s *Service) BookAppointment(ctx context.Context, req BookRequest) (*Appointment, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("telehealth.patient_id", req.PatientID.String()),
		attribute.String("telehealth.doctor_id", req.DoctorID.String()),
	)

	appt, err := s.book(ctx, req)

	outcome := outcomeOf(err)
	s.metrics.ObserveBooking(outcome, time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logger.Warn("booking rejected",
			"patient_id", req.PatientID,
			"doctor_id", req.DoctorID,
			"start_time", req.StartTime,
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("telehealth.appointment_id", appt.ID.String()))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", appt.PatientID,
		"doctor_id", appt.DoctorID,
		"start_time", appt.StartTime,
	)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	patient, err := s.repo.GetUserByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.Role != RolePatient {
		return nil, ErrPatientNotFound
	}

	if req.DoctorID == uuid.Nil || req.StartTime.IsZero() || req.EndTime.IsZero() || !req.StartTime.Before(req.EndTime) {
		return nil, ErrInvalidRequest
	}

	doctor, err := s.repo.GetUserByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.Role != RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	if !doctor.IsBookableDoctor() {
		return nil, ErrDoctorNotVerified
	}

	if patient.Credits < credits.AppointmentCost {
		return nil, ErrInsufficientCredits
	}

	var created *Appointment

	reserve := func(lockCtx context.Context) error {
		requested := scheduling.Interval{Start: req.StartTime, End: req.EndTime}
		existing, err := s.repo.FindOverlapping(lockCtx, doctor.ID, requested)
		if err != nil {
			return fmt.Errorf("check overlapping appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotUnavailable
		}

		sessionID, err := s.video.CreateSession(lockCtx, video.MediaRouted)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
		}

		appt, err := s.repo.CreateScheduled(lockCtx, NewAppointment{
			DoctorID:           doctor.ID,
			PatientID:          patient.ID,
			StartTime:          req.StartTime,
			EndTime:            req.EndTime,
			PatientDescription: req.Description,
			VideoSessionID:     sessionID,
		}, Charge{
			FromID: patient.ID,
			ToID:   doctor.ID,
			Amount: credits.AppointmentCost,
		})
		if err != nil {
			s.orphanSession(ctx, sessionID, req, err)
			return err
		}

		created = appt
		return nil
	}

	err = s.locker.WithDoctorLock(ctx, doctor.ID, reserve)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		// the exclusion constraint still rejects overlapping inserts
		s.metrics.IncLockFallback()
		s.logger.Warn("doctor lock unavailable, booking without it",
			"doctor_id", doctor.ID,
			"error", err,
		)
		err = reserve(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	s.logEvent(ctx, &created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":        created.DoctorID.String(),
		"patient_id":       created.PatientID.String(),
		"start_time":       created.StartTime,
		"end_time":         created.EndTime,
		"video_session_id": created.VideoSessionID,
		"credits":          credits.AppointmentCost,
	})

	return created, nil
}

// orphanSession records a provisioned session whose booking was not
// persisted. The session is left to expire on the provider side.
func (s *Service) orphanSession(ctx context.Context, sessionID string, req BookRequest, cause error) {
	s.metrics.IncOrphanedSession()
	s.logger.Warn("video session orphaned",
		"video_session_id", sessionID,
		"patient_id", req.PatientID,
		"doctor_id", req.DoctorID,
		"error", cause,
	)
	s.logEvent(ctx, nil, EventSessionOrphaned, map[string]any{
		"video_session_id": sessionID,
		"patient_id":       req.PatientID.String(),
		"doctor_id":        req.DoctorID.String(),
		"reason":           cause.Error(),
	})
}

// logEvent writes an audit row. Failures are logged and never surface.
func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "event_type", eventType, "error", err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error("failed to insert event log", "event_type", eventType, "error", err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrPatientNotFound),
		errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrDoctorNotVerified):
		return "not_verified"
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrProvisioningFailed):
		return "provisioning_failed"
	case errors.Is(err, ErrCreditTransferFailed):
		return "credit_transfer_failed"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrNotScheduled):
		return "not_scheduled"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, ErrAvailabilityNotSet):
		return "availability_not_set"
	default:
		return "error"
	}
}
