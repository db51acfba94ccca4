package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduler/internal/appointment"
	"github.com/medtrack/clinic-scheduler/internal/availability"
	"github.com/medtrack/clinic-scheduler/internal/clinic"
)

// AvailabilityService is the slice of the availability service the handlers
// depend on.
type AvailabilityService interface {
	AddAvailability(ctx context.Context, doctorUsername string, w availability.Window) (*availability.Availability, error)
	AddAvailabilities(ctx context.Context, doctorUsername string, windows []availability.Window) ([]availability.Availability, error)
	UpdateAvailability(ctx context.Context, doctorUsername string, id uuid.UUID, w availability.Window, version int64) (*availability.Availability, error)
	DeleteAvailability(ctx context.Context, id uuid.UUID) error
	GetAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]availability.Availability, error)
	GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.Slot, error)
	BookSlot(ctx context.Context, slotID, patientID uuid.UUID) (*availability.Slot, error)
}

// AppointmentService is the slice of the appointment service the handlers
// depend on.
type AppointmentService interface {
	CreateAppointment(ctx context.Context, patientID, doctorID, slotID uuid.UUID) (*appointment.Appointment, error)
	ApproveAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID, requesterUsername string) error
	GetAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	GetAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error)
}

type RouterConfig struct {
	Availability AvailabilityService
	Appointments AppointmentService
	Users        clinic.Repository
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	JWTSecret    string
	Env          string
	Version      string
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(cfg.Logger))

	// Health endpoints stay outside auth
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Route("/availability", func(r chi.Router) {
			r.Post("/", addAvailabilityHandler(cfg.Availability))
			r.Post("/bulk", addAvailabilitiesHandler(cfg.Availability))
			r.Get("/doctor", ownAvailabilityHandler(cfg.Availability, cfg.Users))
			r.Get("/doctor/{doctorID}/slots", availableSlotsHandler(cfg.Availability))
			r.Post("/book/{slotID}", bookSlotHandler(cfg.Availability, cfg.Users))
			r.Put("/{id}", updateAvailabilityHandler(cfg.Availability))
			r.Delete("/{id}", deleteAvailabilityHandler(cfg.Availability))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(cfg.Appointments))
			r.Put("/{id}/approve", approveAppointmentHandler(cfg.Appointments))
			r.Get("/patient/{patientID}", appointmentsByPatientHandler(cfg.Appointments))
			r.Get("/doctor/{doctorID}", appointmentsByDoctorHandler(cfg.Appointments))
			r.Delete("/{id}", cancelAppointmentHandler(cfg.Appointments))
		})
	})

	return r
}
