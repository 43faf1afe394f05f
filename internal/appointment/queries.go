package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GetDoctor returns a verified doctor. Unverified doctors are not visible.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	doctor, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.IsBookableDoctor() {
		return nil, ErrDoctorNotFound
	}
	return doctor, nil
}

// GetAvailableSlots computes the doctor's free slots for the booking horizon
// from the current window and SCHEDULED appointments. Nothing is cached.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID) ([]scheduling.DaySlots, error) {
	ctx, span := tracer.Start(ctx, "appointment.available_slots")
	defer span.End()

	days, err := s.availableSlots(ctx, doctorID)
	s.metrics.ObserveSlotQuery(outcomeOf(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return days, nil
}

func (s *Service) availableSlots(ctx context.Context, doctorID uuid.UUID) ([]scheduling.DaySlots, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	window, err := s.repo.GetAvailability(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	loc := s.location(window.Timezone)
	now := s.now()
	horizon := scheduling.Horizon(now, loc, scheduling.DefaultHorizonDays)

	scheduled, err := s.repo.ListScheduledForDoctor(ctx, doctorID, horizon)
	if err != nil {
		return nil, fmt.Errorf("load scheduled appointments: %w", err)
	}

	booked := make([]scheduling.Interval, 0, len(scheduled))
	for i := range scheduled {
		booked = append(booked, scheduled[i].Interval())
	}

	return scheduling.GenerateSlots(scheduling.Window{
		Start:    window.StartTime,
		End:      window.EndTime,
		Status:   window.Status,
		Location: loc,
	}, booked, now, scheduling.DefaultHorizonDays), nil
}

func (s *Service) location(name string) *time.Location {
	if name == "" {
		return s.defaultLoc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Warn("unknown availability timezone, using default", "timezone", name, "default", s.defaultLoc.String())
		return s.defaultLoc
	}
	return loc
}

// GetAppointment returns an appointment with both participants, visible only
// to those participants.
func (s *Service) GetAppointment(ctx context.Context, id, requesterID uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !appt.HasParticipant(requesterID) {
		return nil, ErrNotAuthorized
	}

	detail := &AppointmentDetail{Appointment: *appt}
	if detail.Doctor, err = s.repo.GetUserByID(ctx, appt.DoctorID); err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if detail.Patient, err = s.repo.GetUserByID(ctx, appt.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return detail, nil
}

// ClampPage applies the listing defaults: limit 20, at most 100, offset >= 0.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListAppointments returns the requester's appointments, newest first.
func (s *Service) ListAppointments(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = ClampPage(limit, offset)

	appointments, err := s.repo.ListAppointmentsForUser(ctx, requesterID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}
