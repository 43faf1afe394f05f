package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

type Role string

const (
	RoleUnassigned Role = "UNASSIGNED"
	RolePatient    Role = "PATIENT"
	RoleDoctor     Role = "DOCTOR"
	RoleAdmin      Role = "ADMIN"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// User is a patient, doctor or admin account. Identity itself lives with the
// external auth provider; ExternalID links the two.
type User struct {
	ID                 uuid.UUID
	ExternalID         string
	Name               string
	Email              *string
	Role               Role
	Specialty          *string
	VerificationStatus *VerificationStatus
	Credits            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsBookableDoctor reports whether patients may book this user.
func (u *User) IsBookableDoctor() bool {
	return u.Role == RoleDoctor && u.VerificationStatus != nil && *u.VerificationStatus == VerificationVerified
}

// AvailabilityWindow is the single recurring daily window of a doctor.
type AvailabilityWindow struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Status    scheduling.WindowStatus
	StartTime scheduling.TimeOfDay
	EndTime   scheduling.TimeOfDay
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	StartTime          time.Time
	EndTime            time.Time
	Status             AppointmentStatus
	PatientDescription *string
	Notes              *string
	VideoSessionID     string
	VideoSessionToken  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *Appointment) Interval() scheduling.Interval {
	return scheduling.Interval{Start: a.StartTime, End: a.EndTime}
}

// HasParticipant reports whether userID is the doctor or the patient.
func (a *Appointment) HasParticipant(userID uuid.UUID) bool {
	return a.DoctorID == userID || a.PatientID == userID
}

// NewAppointment carries the fields the coordinator persists on booking.
type NewAppointment struct {
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	StartTime          time.Time
	EndTime            time.Time
	PatientDescription *string
	VideoSessionID     string
}

// Charge is the credit movement that must commit together with a booking.
type Charge struct {
	FromID uuid.UUID
	ToID   uuid.UUID
	Amount int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor  *User
	Patient *User
}

// JoinCredentials let a participant connect to the appointment's video session.
type JoinCredentials struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}
