package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduler/internal/clinic"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentApproved  = "APPOINTMENT_APPROVED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

var (
	ErrRoleMismatch    = errors.New("user role does not match")
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrNotAParty       = errors.New("requester is not a party to the appointment")
	ErrNotCancellable  = errors.New("only pending or approved appointments can be cancelled")
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
		log:   log.With().Str("component", "appointment").Logger(),
		now:   time.Now,
	}
}

// CreateAppointment books the slot for the patient and records the
// appointment in one transaction. Appointments are auto-approved on
// creation; the slot mirrors the approved status.
func (s *Service) CreateAppointment(ctx context.Context, patientID, doctorID, slotID uuid.UUID) (*Appointment, error) {
	patient, err := s.users.GetUserByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if !patient.IsPatient() {
		return nil, fmt.Errorf("%w: user %s is not a patient", ErrRoleMismatch, patientID)
	}

	doctor, err := s.users.GetUserByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.IsDoctor() {
		return nil, fmt.Errorf("%w: user %s is not a doctor", ErrRoleMismatch, doctorID)
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.IsBooked {
		return nil, ErrSlotUnavailable
	}
	if slot.SlotStart.IsZero() {
		return nil, fmt.Errorf("%w: slot has no start time", ErrSlotUnavailable)
	}

	now := s.now()
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		SlotID:    slotID,
		Status:    StatusApproved,
		CreatedAt: now,
	}

	if err := s.repo.CreateApproved(ctx, appt, slot.Version, now); err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"slot_id":    slotID.String(),
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
	})

	return appt, nil
}

// ApproveAppointment marks the appointment approved and mirrors the status
// onto its slot.
func (s *Service) ApproveAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Approve(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentApproved, map[string]any{})

	return appt, nil
}

// CancelAppointment frees the slot and deletes the appointment. Only the
// bound patient or doctor may cancel, and only while the appointment is
// pending or approved.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, requesterUsername string) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}

	patient, err := s.users.GetUserByID(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	doctor, err := s.users.GetUserByID(ctx, appt.DoctorID)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}

	if requesterUsername != patient.Username && requesterUsername != doctor.Username {
		return ErrNotAParty
	}

	if appt.Status != StatusPending && appt.Status != StatusApproved {
		return ErrNotCancellable
	}

	if err := s.repo.CancelAndRelease(ctx, appt); err != nil {
		return err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": requesterUsername,
		"slot_id":      appt.SlotID.String(),
	})

	return nil
}

func (s *Service) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) GetAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListAppointmentsByPatient(ctx, patientID)
}

func (s *Service) GetAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
