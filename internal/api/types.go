package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/clinic-scheduler/internal/appointment"
	"github.com/medtrack/clinic-scheduler/internal/availability"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

type AvailabilityRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Window parses the request into a concrete window: the date combined with
// the wall-clock start and end. Local time throughout, no zone handling.
func (r AvailabilityRequest) Window() (availability.Window, error) {
	date, err := time.ParseInLocation(dateLayout, r.Date, time.Local)
	if err != nil {
		return availability.Window{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}

	start, err := onDate(date, r.StartTime)
	if err != nil {
		return availability.Window{}, fmt.Errorf("startTime: %w", err)
	}
	end, err := onDate(date, r.EndTime)
	if err != nil {
		return availability.Window{}, fmt.Errorf("endTime: %w", err)
	}

	return availability.Window{Date: date, Start: start, End: end}, nil
}

func onDate(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		t, err = time.Parse(clockLayout+":05", clock)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("must be HH:MM: %w", err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

type UpdateAvailabilityRequest struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	AvailabilityRequest
}

type AvailabilityResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctorId"`
	Date        string    `json:"date"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	IsAvailable bool      `json:"isAvailable"`
	Version     int64     `json:"version"`
}

func toAvailabilityResponse(a *availability.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		Date:        a.Date.Format(dateLayout),
		StartTime:   a.StartTime.Format(clockLayout),
		EndTime:     a.EndTime.Format(clockLayout),
		IsAvailable: a.IsAvailable,
		Version:     a.Version,
	}
}

func toAvailabilityResponses(items []availability.Availability) []AvailabilityResponse {
	out := make([]AvailabilityResponse, 0, len(items))
	for i := range items {
		out = append(out, toAvailabilityResponse(&items[i]))
	}
	return out
}

type SlotResponse struct {
	ID             uuid.UUID  `json:"id"`
	AvailabilityID uuid.UUID  `json:"availabilityId"`
	DoctorID       uuid.UUID  `json:"doctorId"`
	PatientID      *uuid.UUID `json:"patientId,omitempty"`
	SlotStart      time.Time  `json:"slotStartTime"`
	SlotEnd        time.Time  `json:"slotEndTime"`
	IsBooked       bool       `json:"isBooked"`
	Status         *string    `json:"status,omitempty"`
	BookedAt       *time.Time `json:"bookedAt,omitempty"`
}

func toSlotResponse(s *availability.Slot) SlotResponse {
	var status *string
	if s.Status != nil {
		v := string(*s.Status)
		status = &v
	}
	return SlotResponse{
		ID:             s.ID,
		AvailabilityID: s.AvailabilityID,
		DoctorID:       s.DoctorID,
		PatientID:      s.PatientID,
		SlotStart:      s.SlotStart,
		SlotEnd:        s.SlotEnd,
		IsBooked:       s.IsBooked,
		Status:         status,
		BookedAt:       s.BookedAt,
	}
}

func toSlotResponses(items []availability.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(items))
	for i := range items {
		out = append(out, toSlotResponse(&items[i]))
	}
	return out
}

type CreateAppointmentRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
	SlotID    string `json:"slotId"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patientId"`
	DoctorID  uuid.UUID `json:"doctorId"`
	SlotID    uuid.UUID `json:"slotId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		SlotID:    a.SlotID,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
	}
}

func toAppointmentResponses(items []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, toAppointmentResponse(&items[i]))
	}
	return out
}
