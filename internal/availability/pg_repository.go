package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.IsAvailable,
		&a.Version,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var patientID *uuid.UUID
	var status *SlotStatus
	var bookedAt *time.Time

	err := row.Scan(
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
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.PatientID = patientID
	s.Status = status
	s.BookedAt = bookedAt
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const availabilityColumns = `id, doctor_id, date, start_time, end_time, is_available, version, created_at`
const slotColumns = `id, availability_id, doctor_id, patient_id, slot_start, slot_end, is_booked, status, booked_at, version`

// Interface methods

func (r *PgRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM availabilities
		WHERE id = $1
	`, id)
	return scanAvailability(row)
}

func (r *PgRepository) GetAvailabilityByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+availabilityColumns+`
		FROM availabilities
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	return scanAvailability(row)
}

func (r *PgRepository) ListAvailabilitiesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+availabilityColumns+`
		FROM availabilities
		WHERE doctor_id = $1
		ORDER BY date
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreateAvailabilityWithSlots(ctx context.Context, av *Availability, slots []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertAvailability(ctx, tx, av, slots); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) CreateAvailabilityBatch(ctx context.Context, items []BatchItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range items {
		if err := insertAvailability(ctx, tx, &items[i].Availability, items[i].Slots); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertAvailability(ctx context.Context, tx pgx.Tx, av *Availability, slots []Slot) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO availabilities (id, doctor_id, date, start_time, end_time, is_available, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, now())
	`, av.ID, av.DoctorID, av.Date, av.StartTime, av.EndTime, av.IsAvailable)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAvailabilityExists
		}
		return fmt.Errorf("insert availability: %w", err)
	}

	if err := insertSlots(ctx, tx, slots); err != nil {
		return err
	}

	return nil
}

func insertSlots(ctx context.Context, tx pgx.Tx, slots []Slot) error {
	batch := &pgx.Batch{}
	for i := range slots {
		s := &slots[i]
		batch.Queue(`
			INSERT INTO appointment_slots (id, availability_id, doctor_id, slot_start, slot_end, is_booked, version)
			VALUES ($1, $2, $3, $4, $5, FALSE, 0)
		`, s.ID, s.AvailabilityID, s.DoctorID, s.SlotStart, s.SlotEnd)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	for range slots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return nil
}

func (r *PgRepository) ReplaceWindow(ctx context.Context, av *Availability, expectedVersion int64, slots []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE availabilities
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    version = version + 1
		WHERE id = $1
		  AND version = $5
		RETURNING version
	`, av.ID, av.Date, av.StartTime, av.EndTime, expectedVersion)

	if err := row.Scan(&av.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		if isUniqueViolation(err) {
			return ErrAvailabilityExists
		}
		return fmt.Errorf("update availability window: %w", err)
	}

	// Only unbooked slots are discarded. A booking that committed after
	// the caller's pre-check is still here; it aborts the whole update.
	if _, err := tx.Exec(ctx, `
		DELETE FROM appointment_slots WHERE availability_id = $1 AND NOT is_booked
	`, av.ID); err != nil {
		return fmt.Errorf("discard old slots: %w", err)
	}

	var booked int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM appointment_slots WHERE availability_id = $1
	`, av.ID).Scan(&booked); err != nil {
		return fmt.Errorf("check surviving slots: %w", err)
	}
	if booked > 0 {
		return ErrHasBookedSlots
	}

	if err := insertSlots(ctx, tx, slots); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	// Slots go with it via ON DELETE CASCADE.
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availabilities WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAvailabilityNotFound
	}
	return nil
}

func (r *PgRepository) CountBookedSlots(ctx context.Context, availabilityID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointment_slots
		WHERE availability_id = $1 AND is_booked
	`, availabilityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count booked slots: %w", err)
	}
	return n, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM appointment_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListFreeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, now time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.availability_id, s.doctor_id, s.patient_id, s.slot_start, s.slot_end, s.is_booked, s.status, s.booked_at, s.version
		FROM appointment_slots s
		JOIN availabilities a ON a.id = s.availability_id
		WHERE a.doctor_id = $1
		  AND a.date = $2
		  AND NOT s.is_booked
		  AND s.slot_start > $3
		ORDER BY s.slot_start
	`, doctorID, date, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) BookSlot(ctx context.Context, slotID, patientID uuid.UUID, expectedVersion int64, bookedAt time.Time) (*Slot, error) {
	// Check-and-write in one statement: a concurrent booking bumps the
	// version, so the loser matches no row.
	row := r.pool.QueryRow(ctx, `
		UPDATE appointment_slots
		SET is_booked = TRUE,
		    patient_id = $2,
		    status = 'pending',
		    booked_at = $3,
		    version = version + 1
		WHERE id = $1
		  AND version = $4
		  AND NOT is_booked
		RETURNING `+slotColumns+`
	`, slotID, patientID, bookedAt, expectedVersion)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, err
	}
	return s, nil
}

func (r *PgRepository) DeleteExpired(ctx context.Context, today, now time.Time) (SweepResult, error) {
	var res SweepResult

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Appointments bound to expired slots go first; their foreign key on
	// slot_id would otherwise block the slot deletes below. Slots under a
	// past availability all ended before now, so one predicate covers both.
	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments
		WHERE slot_id IN (SELECT id FROM appointment_slots WHERE slot_end < $1)
	`, now)
	if err != nil {
		return res, fmt.Errorf("delete past appointments: %w", err)
	}
	res.PastAppointments = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM availabilities WHERE date < $1
	`, today)
	if err != nil {
		return res, fmt.Errorf("delete past availabilities: %w", err)
	}
	res.PastAvailabilities = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM appointment_slots WHERE slot_end < $1
	`, now)
	if err != nil {
		return res, fmt.Errorf("delete past slots: %w", err)
	}
	res.PastSlots = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `
		DELETE FROM availabilities a
		WHERE NOT EXISTS (
			SELECT 1 FROM appointment_slots s WHERE s.availability_id = a.id
		)
	`)
	if err != nil {
		return res, fmt.Errorf("delete empty availabilities: %w", err)
	}
	res.EmptyAvailabilities = tag.RowsAffected()

	return res, tx.Commit(ctx)
}
