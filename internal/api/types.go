package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/chat"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

// CreateAppointmentRequest is checked for shape only; emptiness and ordering
// of the interval are booking preconditions evaluated by the service.
type CreateAppointmentRequest struct {
	DoctorID    string    `json:"doctor_id" validate:"omitempty,uuid"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
}

type ChatRequest struct {
	Message             string         `json:"message" validate:"max=4000"`
	ConversationHistory []chat.Message `json:"conversationHistory" validate:"max=100,dive"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	Description    *string   `json:"description,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	VideoSessionID string    `json:"video_session_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type ParticipantResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Specialty *string   `json:"specialty,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Doctor  ParticipantResponse `json:"doctor"`
	Patient ParticipantResponse `json:"patient"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type DoctorResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Email              *string   `json:"email,omitempty"`
	Specialty          *string   `json:"specialty,omitempty"`
	VerificationStatus string    `json:"verification_status"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID             `json:"doctor_id"`
	Days     []scheduling.DaySlots `json:"days"`
}

type JoinTokenResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreditsResponse struct {
	Credits int `json:"credits"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		DoctorID:       a.DoctorID,
		PatientID:      a.PatientID,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		Description:    a.PatientDescription,
		Notes:          a.Notes,
		VideoSessionID: a.VideoSessionID,
		CreatedAt:      a.CreatedAt,
	}
}

func toParticipant(u *appointment.User) ParticipantResponse {
	if u == nil {
		return ParticipantResponse{}
	}
	return ParticipantResponse{ID: u.ID, Name: u.Name, Email: u.Email, Specialty: u.Specialty}
}

func toDoctorResponse(u *appointment.User) DoctorResponse {
	resp := DoctorResponse{ID: u.ID, Name: u.Name, Email: u.Email, Specialty: u.Specialty}
	if u.VerificationStatus != nil {
		resp.VerificationStatus = string(*u.VerificationStatus)
	}
	return resp
}
