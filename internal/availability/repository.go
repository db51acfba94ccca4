package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAvailabilityNotFound = errors.New("availability not found")
	ErrAvailabilityExists   = errors.New("availability already exists for doctor on that date")
	ErrSlotNotFound         = errors.New("slot not found")
	ErrVersionConflict      = errors.New("availability was modified concurrently")
)

// BatchItem pairs an availability with its generated slots for atomic
// creation.
type BatchItem struct {
	Availability Availability
	Slots        []Slot
}

// Repository contains all DB interactions needed by the service. Multi-row
// mutations are atomic: each method runs its writes in one transaction.
type Repository interface {
	GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	GetAvailabilityByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error)
	ListAvailabilitiesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error)

	// CreateAvailabilityWithSlots persists the window and its slots together.
	// Returns ErrAvailabilityExists when the (doctor, date) pair is taken.
	CreateAvailabilityWithSlots(ctx context.Context, av *Availability, slots []Slot) error

	// CreateAvailabilityBatch persists every item or none of them.
	CreateAvailabilityBatch(ctx context.Context, items []BatchItem) error

	// ReplaceWindow updates the window fields with a compare-and-set on
	// version, discards the old unbooked slots and inserts the regenerated
	// ones. Returns ErrVersionConflict when the version no longer matches,
	// ErrAvailabilityExists when a date change collides with another window
	// of the doctor, and ErrHasBookedSlots when a slot was booked since the
	// caller's check; nothing is written in any of those cases.
	ReplaceWindow(ctx context.Context, av *Availability, expectedVersion int64, slots []Slot) error

	DeleteAvailability(ctx context.Context, id uuid.UUID) error
	CountBookedSlots(ctx context.Context, availabilityID uuid.UUID) (int, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListFreeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]Slot, error)

	// BookSlot binds the patient with a compare-and-set on the slot version.
	// Returns ErrSlotAlreadyBooked when the slot was taken in the meantime.
	BookSlot(ctx context.Context, slotID, patientID uuid.UUID, expectedVersion int64, bookedAt time.Time) (*Slot, error)

	// DeleteExpired removes appointments on slots ended before now, then
	// availabilities dated before today, slots ended before now, and
	// availabilities left without slots.
	DeleteExpired(ctx context.Context, today, now time.Time) (SweepResult, error)
}
