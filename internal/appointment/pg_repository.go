package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/clinic-scheduler/internal/availability"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, slot_id, status, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Status,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
}

func (r *PgRepository) list(ctx context.Context, query string, arg any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*availability.Slot, error) {
	var s availability.Slot
	var patientID *uuid.UUID
	var status *availability.SlotStatus
	var bookedAt *time.Time

	err := r.pool.QueryRow(ctx, `
		SELECT id, availability_id, doctor_id, patient_id, slot_start, slot_end, is_booked, status, booked_at, version
		FROM appointment_slots
		WHERE id = $1
	`, id).Scan(
		&s.ID,
		&s.AvailabilityID,
		&s.DoctorID,
		&patientID,
		&s.SlotStart,
		&s.SlotEnd,
		&s.IsBooked,
		&status,
		&bookedAt,
		&s.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, availability.ErrSlotNotFound
		}
		return nil, err
	}

	s.PatientID = patientID
	s.Status = status
	s.BookedAt = bookedAt
	return &s, nil
}

func (r *PgRepository) CreateApproved(ctx context.Context, appt *Appointment, slotVersion int64, bookedAt time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointment_slots
		SET is_booked = TRUE,
		    patient_id = $2,
		    status = 'approved',
		    booked_at = $3,
		    version = version + 1
		WHERE id = $1
		  AND version = $4
		  AND NOT is_booked
	`, appt.SlotID, appt.PatientID, bookedAt, slotVersion)
	if err != nil {
		return fmt.Errorf("book slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return availability.ErrSlotAlreadyBooked
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.SlotID, appt.Status, appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) Approve(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'approved'
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	// The slot may already be gone if the sweeper removed it; mirroring is
	// best effort inside the same transaction.
	_, err = tx.Exec(ctx, `
		UPDATE appointment_slots
		SET status = 'approved'
		WHERE id = $1
	`, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("mirror slot status: %w", err)
	}

	return appt, tx.Commit(ctx)
}

func (r *PgRepository) CancelAndRelease(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE appointment_slots
		SET is_booked = FALSE,
		    patient_id = NULL,
		    status = NULL,
		    booked_at = NULL,
		    version = version + 1
		WHERE id = $1
	`, appt.SlotID)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments WHERE id = $1
	`, appt.ID)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
