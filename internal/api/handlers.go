package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/chat"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-scheduling/pkg/logging"
)

var validate = validator.New()

// BookingService is the booking core as seen by the HTTP layer.
type BookingService interface {
	BookAppointment(ctx context.Context, req appointment.BookRequest) (*appointment.Appointment, error)
	IssueJoinToken(ctx context.Context, appointmentID, requesterID uuid.UUID) (*appointment.JoinCredentials, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*appointment.User, error)
	GetAvailableSlots(ctx context.Context, doctorID uuid.UUID) ([]scheduling.DaySlots, error)
	GetAppointment(ctx context.Context, id, requesterID uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
}

type CreditReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
}

type ChatService interface {
	Reply(ctx context.Context, message string, history []chat.Message) (*chat.Reply, error)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "missing caller identity")
	}
	return id, ok
}

func createAppointmentHandler(svc BookingService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := callerID(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := parseOptionalUUID(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := svc.BookAppointment(r.Context(), appointment.BookRequest{
			PatientID:   patientID,
			DoctorID:    doctorID,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Description: req.Description,
		})
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc BookingService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}

		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		offset, err := queryInt(r, "offset")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}

		limit, offset = appointment.ClampPage(limit, offset)

		appointments, err := svc.ListAppointments(r.Context(), userID, limit, offset)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appointments)), Limit: limit, Offset: offset}
		for i := range appointments {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appointments[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc BookingService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id, userID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentDetailResponse{
			AppointmentResponse: toAppointmentResponse(&detail.Appointment),
			Doctor:              toParticipant(detail.Doctor),
			Patient:             toParticipant(detail.Patient),
		})
	}
}

func joinTokenHandler(svc BookingService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		creds, err := svc.IssueJoinToken(r.Context(), id, userID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, JoinTokenResponse{
			SessionID: creds.SessionID,
			Token:     creds.Token,
			ExpiresAt: creds.ExpiresAt,
		})
	}
}

func getDoctorHandler(svc BookingService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}

		doctor, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(doctor))
	}
}

func doctorSlotsHandler(svc BookingService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}

		days, err := svc.GetAvailableSlots(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: id, Days: days})
	}
}

func creditsHandler(ledger CreditReader, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := callerID(w, r)
		if !ok {
			return
		}

		balance, err := ledger.Balance(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, CreditsResponse{Credits: balance})
	}
}

func chatHandler(svc ChatService, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		reply, err := svc.Reply(r.Context(), req.Message, req.ConversationHistory)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// parseOptionalUUID maps "" to uuid.Nil so the service reports the missing id.
func parseOptionalUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
