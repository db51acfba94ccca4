package availability

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotPending   SlotStatus = "pending"
	SlotApproved  SlotStatus = "approved"
	SlotCompleted SlotStatus = "completed"
)

// Availability is a doctor-declared window on one calendar date. At most one
// exists per (doctor, date). Version is bumped on every window edit and
// guards concurrent updates.
type Availability struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time // midnight, local wall clock
	StartTime   time.Time // on Date
	EndTime     time.Time // on Date
	IsAvailable bool
	Version     int64
	CreatedAt   time.Time
}

// Slot is one bookable sub-interval of an availability window. IsBooked is
// true exactly when PatientID is set; Status and BookedAt are set only while
// booked. Version guards concurrent booking of the same slot.
type Slot struct {
	ID             uuid.UUID
	AvailabilityID uuid.UUID
	DoctorID       uuid.UUID
	PatientID      *uuid.UUID
	SlotStart      time.Time
	SlotEnd        time.Time
	IsBooked       bool
	Status         *SlotStatus
	BookedAt       *time.Time
	Version        int64
}

// Window is a requested availability window before it is persisted.
type Window struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

// SweepResult reports what one cleanup pass removed.
type SweepResult struct {
	PastAppointments    int64
	PastAvailabilities  int64
	PastSlots           int64
	EmptyAvailabilities int64
}
