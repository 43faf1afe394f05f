package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/chat"
	"github.com/hackgods/telehealth-scheduling/internal/credits"
	"github.com/hackgods/telehealth-scheduling/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Wrapping errors come first: ErrCreditTransferFailed may wrap a ledger error.
var errorMappings = []errorMapping{
	{appointment.ErrProvisioningFailed, http.StatusBadGateway, "provisioning_failed"},
	{appointment.ErrCreditTransferFailed, http.StatusBadGateway, "credit_transfer_failed"},
	{appointment.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{chat.ErrEmptyMessage, http.StatusBadRequest, "invalid_request"},
	{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{appointment.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{appointment.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{credits.ErrAccountNotFound, http.StatusNotFound, "user_not_found"},
	{appointment.ErrAvailabilityNotSet, http.StatusNotFound, "availability_not_set"},
	{appointment.ErrDoctorNotVerified, http.StatusForbidden, "doctor_not_verified"},
	{appointment.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
	{appointment.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
	{appointment.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{appointment.ErrNotScheduled, http.StatusConflict, "not_scheduled"},
	{appointment.ErrTooEarly, http.StatusConflict, "too_early"},
	{chat.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
	{chat.ErrNotConfigured, http.StatusServiceUnavailable, "ai_not_configured"},
}

// writeServiceError maps domain errors to a status and a stable code.
// Anything unmapped is logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.target.Error())
			return
		}
	}
	logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}
