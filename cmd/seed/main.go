package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medtrack/clinic-scheduler/internal/availability"
	"github.com/medtrack/clinic-scheduler/internal/db"
)

const (
	numDoctors  = 20
	numPatients = 500
	// Availability windows are created for this many days ahead per doctor.
	daysAhead = 14
	// Every seeded account gets the same development password.
	devPassword = "medtrack-dev"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	hash, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("hash dev password")
	}

	doctors, err := seedUsers(context.Background(), pool, "doctor", numDoctors, string(hash))
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	log.Info().Int("count", len(doctors)).Msg("doctors seeded")

	patients, err := seedUsers(context.Background(), pool, "patient", numPatients, string(hash))
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	log.Info().Int("count", len(patients)).Msg("patients seeded")

	slots, err := seedAvailabilities(context.Background(), pool, doctors)
	if err != nil {
		log.Fatal().Err(err).Msg("seed availabilities")
	}
	log.Info().Int("slots", slots).Msg("availabilities seeded")

	log.Info().Msg("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, n int, passwordHash string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, n)

	for i := 0; i < n; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		username := fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), i)

		var specialty, location *string
		if role == "doctor" {
			s := gofakeit.RandomString([]string{
				"cardiology", "dermatology", "pediatrics", "neurology", "general practice",
			})
			c := gofakeit.City()
			specialty = &s
			location = &c
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, username, password_hash, full_name, role, specialty, location, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		`, id, username, passwordHash, name, role, specialty, location)
		if err != nil {
			return nil, fmt.Errorf("insert %s %s: %w", role, username, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

func seedAvailabilities(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID) (int, error) {
	totalSlots := 0
	today := time.Now()

	for _, doctorID := range doctors {
		for day := 1; day <= daysAhead; day++ {
			date := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()).AddDate(0, 0, day)

			startHour := gofakeit.Number(8, 11)
			workingHours := gofakeit.Number(3, 7)
			start := date.Add(time.Duration(startHour) * time.Hour)
			end := start.Add(time.Duration(workingHours) * time.Hour)

			availabilityID := uuid.New()
			_, err := pool.Exec(ctx, `
				INSERT INTO availabilities (id, doctor_id, date, start_time, end_time, is_available, version, created_at)
				VALUES ($1, $2, $3, $4, $5, TRUE, 0, now())
			`, availabilityID, doctorID, date, start, end)
			if err != nil {
				return totalSlots, fmt.Errorf("insert availability for doctor %s: %w", doctorID, err)
			}

			for _, w := range availability.GenerateSlots(start, end) {
				_, err := pool.Exec(ctx, `
					INSERT INTO appointment_slots (id, availability_id, doctor_id, slot_start, slot_end, is_booked, version)
					VALUES ($1, $2, $3, $4, $5, FALSE, 0)
				`, uuid.New(), availabilityID, doctorID, w.Start, w.End)
				if err != nil {
					return totalSlots, fmt.Errorf("insert slot: %w", err)
				}
				totalSlots++
			}
		}
	}

	return totalSlots, nil
}
