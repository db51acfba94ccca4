package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/clinic-scheduler/internal/availability"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Repository contains all DB interactions needed by the service. Mutations
// touching both an appointment and its slot run in one transaction.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*availability.Slot, error)

	// CreateApproved books the slot with a compare-and-set on its version
	// and inserts the appointment row together. Returns
	// availability.ErrSlotAlreadyBooked when the slot was taken first.
	CreateApproved(ctx context.Context, appt *Appointment, slotVersion int64, bookedAt time.Time) error

	// Approve sets the appointment approved and mirrors the status onto the
	// bound slot.
	Approve(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CancelAndRelease frees the slot (unbooked, no patient, no status) and
	// deletes the appointment row.
	CancelAndRelease(ctx context.Context, appt *Appointment) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
