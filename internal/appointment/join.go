package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/telehealth-scheduling/internal/video"
)

const (
	// JoinLeadTime is how long before the start participants may join.
	JoinLeadTime = 30 * time.Minute
	// TokenGrace extends token validity past the appointment end.
	TokenGrace = 60 * time.Minute
)

type joinData struct {
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	UserID string `json:"userId"`
}

// IssueJoinToken grants a participant access to the appointment's video
// session. The token is stored on the appointment, replacing any earlier one.
func (s *Service) IssueJoinToken(ctx context.Context, appointmentID, requesterID uuid.UUID) (*JoinCredentials, error) {
	ctx, span := tracer.Start(ctx, "appointment.issue_join_token")
	defer span.End()
	span.SetAttributes(
		attribute.String("telehealth.appointment_id", appointmentID.String()),
		attribute.String("telehealth.user_id", requesterID.String()),
	)

	creds, err := s.issueJoinToken(ctx, appointmentID, requesterID)

	outcome := outcomeOf(err)
	s.metrics.ObserveJoinToken(outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logger.Warn("join token rejected",
			"appointment_id", appointmentID,
			"user_id", requesterID,
			"outcome", outcome,
			"error", err,
		)
		return nil, err
	}
	return creds, nil
}

func (s *Service) issueJoinToken(ctx context.Context, appointmentID, requesterID uuid.UUID) (*JoinCredentials, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !appt.HasParticipant(requesterID) {
		return nil, ErrNotAuthorized
	}
	if appt.Status != StatusScheduled {
		return nil, ErrNotScheduled
	}
	if appt.StartTime.Sub(s.now()) > JoinLeadTime {
		return nil, ErrTooEarly
	}

	user, err := s.repo.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}

	data, err := json.Marshal(joinData{Name: user.Name, Role: user.Role, UserID: user.ID.String()})
	if err != nil {
		return nil, fmt.Errorf("encode token data: %w", err)
	}

	expiresAt := appt.EndTime.Add(TokenGrace)
	token, err := s.video.IssueToken(appt.VideoSessionID, video.TokenOptions{
		Role:       video.RolePublisher,
		ExpireTime: expiresAt,
		Data:       string(data),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	if err := s.repo.UpdateVideoToken(ctx, appt.ID, token); err != nil {
		return nil, fmt.Errorf("store video token: %w", err)
	}

	s.logEvent(ctx, &appt.ID, EventVideoTokenIssued, map[string]any{
		"user_id":    requesterID.String(),
		"role":       user.Role,
		"expires_at": expiresAt,
	})

	return &JoinCredentials{
		SessionID: appt.VideoSessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
