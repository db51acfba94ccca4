package api

import (
	"errors"
	"net/http"

	"github.com/medtrack/clinic-scheduler/internal/appointment"
	"github.com/medtrack/clinic-scheduler/internal/availability"
	"github.com/medtrack/clinic-scheduler/internal/clinic"
)

// writeDomainError maps service errors onto the HTTP taxonomy: validation
// 400, not-found 404, conflict 409, forbidden 403, everything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid_availability", err.Error())
	case errors.Is(err, availability.ErrNotADoctor),
		errors.Is(err, appointment.ErrRoleMismatch):
		writeError(w, http.StatusBadRequest, "role_mismatch", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusBadRequest, "slot_unavailable", err.Error())

	case errors.Is(err, clinic.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, availability.ErrAvailabilityNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, availability.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())

	case errors.Is(err, availability.ErrAvailabilityExists):
		writeError(w, http.StatusConflict, "availability_exists", err.Error())
	case errors.Is(err, availability.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, availability.ErrVersionConflict):
		writeError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, availability.ErrHasBookedSlots):
		writeError(w, http.StatusConflict, "has_booked_slots", err.Error())
	case errors.Is(err, appointment.ErrNotCancellable):
		writeError(w, http.StatusConflict, "not_cancellable", err.Error())

	case errors.Is(err, appointment.ErrNotAParty):
		writeError(w, http.StatusForbidden, "not_a_party", err.Error())
	case errors.Is(err, availability.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
