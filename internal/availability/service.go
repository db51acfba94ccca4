package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduler/internal/clinic"
)

var (
	ErrInvalidWindow     = errors.New("invalid availability window")
	ErrNotADoctor        = errors.New("authenticated user is not a doctor")
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
	ErrHasBookedSlots    = errors.New("availability has booked slots and cannot be rescheduled")
	ErrNotOwner          = errors.New("availability belongs to another doctor")
)

type Service struct {
	repo  Repository
	users clinic.Repository
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(repo Repository, users clinic.Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		users: users,
		log:   log.With().Str("component", "availability").Logger(),
		now:   time.Now,
	}
}

// AddAvailability validates the window, generates its slots and persists
// both atomically. The doctor is resolved from the authenticated username.
func (s *Service) AddAvailability(ctx context.Context, doctorUsername string, w Window) (*Availability, error) {
	doctor, err := s.resolveDoctor(ctx, doctorUsername)
	if err != nil {
		return nil, err
	}

	if err := s.validateWindow(w); err != nil {
		return nil, err
	}

	av, slots := buildAvailability(doctor.ID, w)
	if err := s.repo.CreateAvailabilityWithSlots(ctx, av, slots); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("doctor_id", doctor.ID.String()).
		Str("availability_id", av.ID.String()).
		Int("slots", len(slots)).
		Msg("availability created")

	return av, nil
}

// AddAvailabilities creates every window or none of them. Validation runs
// over the whole batch before anything is written.
func (s *Service) AddAvailabilities(ctx context.Context, doctorUsername string, windows []Window) ([]Availability, error) {
	doctor, err := s.resolveDoctor(ctx, doctorUsername)
	if err != nil {
		return nil, err
	}

	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no windows given", ErrInvalidWindow)
	}

	seen := make(map[string]struct{}, len(windows))
	items := make([]BatchItem, 0, len(windows))
	result := make([]Availability, 0, len(windows))

	for _, w := range windows {
		if err := s.validateWindow(w); err != nil {
			return nil, err
		}

		key := dateOf(w.Date).Format("2006-01-02")
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate window for %s in batch", ErrInvalidWindow, key)
		}
		seen[key] = struct{}{}

		av, slots := buildAvailability(doctor.ID, w)
		items = append(items, BatchItem{Availability: *av, Slots: slots})
		result = append(result, *av)
	}

	if err := s.repo.CreateAvailabilityBatch(ctx, items); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("doctor_id", doctor.ID.String()).
		Int("windows", len(items)).
		Msg("availability batch created")

	return result, nil
}

// UpdateAvailability re-validates the new window and regenerates the slot
// set from scratch, guarded by the availability version. Only the owning
// doctor may update, and windows with booked slots are not rescheduled:
// that would orphan live appointments. The repository re-checks for booked
// slots inside its transaction, so a booking racing this update survives.
func (s *Service) UpdateAvailability(ctx context.Context, doctorUsername string, id uuid.UUID, w Window, version int64) (*Availability, error) {
	doctor, err := s.resolveDoctor(ctx, doctorUsername)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetAvailabilityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.DoctorID != doctor.ID {
		return nil, ErrNotOwner
	}

	booked, err := s.repo.CountBookedSlots(ctx, id)
	if err != nil {
		return nil, err
	}
	if booked > 0 {
		return nil, ErrHasBookedSlots
	}

	if err := s.validateWindow(w); err != nil {
		return nil, err
	}

	av := *existing
	av.Date = dateOf(w.Date)
	av.StartTime = w.Start
	av.EndTime = w.End

	slots := materializeSlots(av.ID, existing.DoctorID, GenerateSlots(w.Start, w.End))
	if err := s.repo.ReplaceWindow(ctx, &av, version, slots); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("availability_id", id.String()).
		Int("slots", len(slots)).
		Msg("availability rescheduled")

	return &av, nil
}

func (s *Service) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteAvailability(ctx, id)
}

func (s *Service) GetAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	if _, err := s.users.GetUserByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListAvailabilitiesByDoctor(ctx, doctorID)
}

// GetAvailableSlots returns the doctor's unbooked slots on date whose start
// is still in the future. Past dates therefore yield nothing.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.users.GetUserByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListFreeSlots(ctx, doctorID, dateOf(date), s.now())
}

// BookSlot transitions a slot from free to booked for the patient. The
// version compare-and-set makes sure exactly one of N concurrent bookings
// wins; every loser gets ErrSlotAlreadyBooked.
func (s *Service) BookSlot(ctx context.Context, slotID, patientID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.IsBooked {
		return nil, ErrSlotAlreadyBooked
	}

	if _, err := s.users.GetUserByID(ctx, patientID); err != nil {
		return nil, err
	}

	booked, err := s.repo.BookSlot(ctx, slotID, patientID, slot.Version, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("slot_id", slotID.String()).
		Str("patient_id", patientID.String()).
		Msg("slot booked")

	return booked, nil
}

// DeleteExpired is the nightly sweep: appointments on slots already ended,
// availabilities dated before today, slots already ended, then
// availabilities left with no slots.
func (s *Service) DeleteExpired(ctx context.Context) (SweepResult, error) {
	now := s.now()
	res, err := s.repo.DeleteExpired(ctx, dateOf(now), now)
	if err != nil {
		return res, fmt.Errorf("sweep expired availabilities: %w", err)
	}

	s.log.Info().
		Int64("past_appointments", res.PastAppointments).
		Int64("past_availabilities", res.PastAvailabilities).
		Int64("past_slots", res.PastSlots).
		Int64("empty_availabilities", res.EmptyAvailabilities).
		Msg("sweep complete")

	return res, nil
}

func (s *Service) resolveDoctor(ctx context.Context, username string) (*clinic.User, error) {
	doctor, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load doctor %q: %w", username, err)
	}
	if !doctor.IsDoctor() {
		return nil, ErrNotADoctor
	}
	return doctor, nil
}

func (s *Service) validateWindow(w Window) error {
	if w.Date.IsZero() || w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: date, start time and end time are required", ErrInvalidWindow)
	}
	if dateOf(w.Date).Before(dateOf(s.now())) {
		return fmt.Errorf("%w: date cannot be in the past", ErrInvalidWindow)
	}
	if !w.Start.Before(w.End) {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidWindow)
	}
	if w.End.Sub(w.Start) < MinWindow {
		return fmt.Errorf("%w: window must be at least %d minutes", ErrInvalidWindow, int(MinWindow.Minutes()))
	}
	return nil
}

func buildAvailability(doctorID uuid.UUID, w Window) (*Availability, []Slot) {
	av := &Availability{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        dateOf(w.Date),
		StartTime:   w.Start,
		EndTime:     w.End,
		IsAvailable: true,
		Version:     0,
	}
	return av, materializeSlots(av.ID, doctorID, GenerateSlots(w.Start, w.End))
}

func materializeSlots(availabilityID, doctorID uuid.UUID, windows []SlotWindow) []Slot {
	slots := make([]Slot, 0, len(windows))
	for _, w := range windows {
		slots = append(slots, Slot{
			ID:             uuid.New(),
			AvailabilityID: availabilityID,
			DoctorID:       doctorID,
			SlotStart:      w.Start,
			SlotEnd:        w.End,
		})
	}
	return slots
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
