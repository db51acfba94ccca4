package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/clinic-scheduler/internal/appointment"
	"github.com/medtrack/clinic-scheduler/internal/availability"
	"github.com/medtrack/clinic-scheduler/internal/clinic"
)

// Function-backed stubs keep the handler tests independent of the real
// services.

type stubAvailability struct {
	add       func(ctx context.Context, username string, w availability.Window) (*availability.Availability, error)
	addBatch  func(ctx context.Context, username string, ws []availability.Window) ([]availability.Availability, error)
	update    func(ctx context.Context, username string, id uuid.UUID, w availability.Window, version int64) (*availability.Availability, error)
	remove    func(ctx context.Context, id uuid.UUID) error
	byDoctor  func(ctx context.Context, doctorID uuid.UUID) ([]availability.Availability, error)
	freeSlots func(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.Slot, error)
	book      func(ctx context.Context, slotID, patientID uuid.UUID) (*availability.Slot, error)
}

func (s *stubAvailability) AddAvailability(ctx context.Context, username string, w availability.Window) (*availability.Availability, error) {
	return s.add(ctx, username, w)
}

func (s *stubAvailability) AddAvailabilities(ctx context.Context, username string, ws []availability.Window) ([]availability.Availability, error) {
	return s.addBatch(ctx, username, ws)
}

func (s *stubAvailability) UpdateAvailability(ctx context.Context, username string, id uuid.UUID, w availability.Window, version int64) (*availability.Availability, error) {
	return s.update(ctx, username, id, w, version)
}

func (s *stubAvailability) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return s.remove(ctx, id)
}

func (s *stubAvailability) GetAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]availability.Availability, error) {
	return s.byDoctor(ctx, doctorID)
}

func (s *stubAvailability) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.Slot, error) {
	return s.freeSlots(ctx, doctorID, date)
}

func (s *stubAvailability) BookSlot(ctx context.Context, slotID, patientID uuid.UUID) (*availability.Slot, error) {
	return s.book(ctx, slotID, patientID)
}

type stubAppointments struct {
	create    func(ctx context.Context, patientID, doctorID, slotID uuid.UUID) (*appointment.Appointment, error)
	approve   func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	cancel    func(ctx context.Context, id uuid.UUID, requester string) error
	byPatient func(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	byDoctor  func(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error)
}

func (s *stubAppointments) CreateAppointment(ctx context.Context, patientID, doctorID, slotID uuid.UUID) (*appointment.Appointment, error) {
	return s.create(ctx, patientID, doctorID, slotID)
}

func (s *stubAppointments) ApproveAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.approve(ctx, id)
}

func (s *stubAppointments) CancelAppointment(ctx context.Context, id uuid.UUID, requester string) error {
	return s.cancel(ctx, id, requester)
}

func (s *stubAppointments) GetAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error) {
	return s.byPatient(ctx, patientID)
}

func (s *stubAppointments) GetAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error) {
	return s.byDoctor(ctx, doctorID)
}

type stubUsers struct {
	byID       func(ctx context.Context, id uuid.UUID) (*clinic.User, error)
	byUsername func(ctx context.Context, username string) (*clinic.User, error)
}

func (s *stubUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*clinic.User, error) {
	return s.byID(ctx, id)
}

func (s *stubUsers) GetUserByUsername(ctx context.Context, username string) (*clinic.User, error) {
	return s.byUsername(ctx, username)
}

func testRouter(av AvailabilityService, appts AppointmentService, users clinic.Repository) http.Handler {
	return NewRouter(RouterConfig{
		Availability: av,
		Appointments: appts,
		Users:        users,
		JWTSecret:    testSecret,
		Env:          "test",
		Version:      "test",
		Logger:       zerolog.Nop(),
	})
}

func authedRequest(t *testing.T, method, target, body, username, role string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	token, err := NewToken(testSecret, username, role, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAddAvailabilityReturnsCreatedWindow(t *testing.T) {
	doctorID := uuid.New()
	av := &stubAvailability{
		add: func(_ context.Context, username string, w availability.Window) (*availability.Availability, error) {
			assert.Equal(t, "house", username)
			return &availability.Availability{
				ID:          uuid.New(),
				DoctorID:    doctorID,
				Date:        w.Date,
				StartTime:   w.Start,
				EndTime:     w.End,
				IsAvailable: true,
			}, nil
		},
	}
	router := testRouter(av, &stubAppointments{}, &stubUsers{})

	req := authedRequest(t, http.MethodPost, "/api/availability",
		`{"date":"2031-06-10","startTime":"09:00","endTime":"10:30"}`, "house", "doctor")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, doctorID, resp.DoctorID)
	assert.Equal(t, "2031-06-10", resp.Date)
	assert.Equal(t, "09:00", resp.StartTime)
	assert.Equal(t, "10:30", resp.EndTime)
	assert.True(t, resp.IsAvailable)
}

func TestAddAvailabilityErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", availability.ErrInvalidWindow, http.StatusBadRequest, "invalid_availability"},
		{"not a doctor", availability.ErrNotADoctor, http.StatusBadRequest, "role_mismatch"},
		{"duplicate date", availability.ErrAvailabilityExists, http.StatusConflict, "availability_exists"},
		{"version conflict", availability.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			av := &stubAvailability{
				add: func(context.Context, string, availability.Window) (*availability.Availability, error) {
					return nil, tc.err
				},
			}
			router := testRouter(av, &stubAppointments{}, &stubUsers{})

			req := authedRequest(t, http.MethodPost, "/api/availability",
				`{"date":"2031-06-10","startTime":"09:00","endTime":"10:30"}`, "house", "doctor")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantCode)
		})
	}
}

func TestAddAvailabilityRejectsBadWindowPayload(t *testing.T) {
	router := testRouter(&stubAvailability{}, &stubAppointments{}, &stubUsers{})

	req := authedRequest(t, http.MethodPost, "/api/availability",
		`{"date":"10/06/2031","startTime":"09:00","endTime":"10:30"}`, "house", "doctor")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_window")
}

func TestBookSlotAsPatient(t *testing.T) {
	patientID := uuid.New()
	slotID := uuid.New()

	users := &stubUsers{
		byUsername: func(_ context.Context, username string) (*clinic.User, error) {
			return &clinic.User{ID: patientID, Username: username, Role: clinic.RolePatient}, nil
		},
	}
	av := &stubAvailability{
		book: func(_ context.Context, gotSlot, gotPatient uuid.UUID) (*availability.Slot, error) {
			assert.Equal(t, slotID, gotSlot)
			assert.Equal(t, patientID, gotPatient)
			status := availability.SlotPending
			return &availability.Slot{
				ID: slotID, PatientID: &gotPatient, IsBooked: true, Status: &status,
			}, nil
		},
	}
	router := testRouter(av, &stubAppointments{}, users)

	req := authedRequest(t, http.MethodPost, "/api/availability/book/"+slotID.String(), "", "alice", "patient")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsBooked)
	require.NotNil(t, resp.Status)
	assert.Equal(t, "pending", *resp.Status)
}

func TestBookSlotForbiddenForDoctors(t *testing.T) {
	users := &stubUsers{
		byUsername: func(_ context.Context, username string) (*clinic.User, error) {
			return &clinic.User{ID: uuid.New(), Username: username, Role: clinic.RoleDoctor}, nil
		},
	}
	router := testRouter(&stubAvailability{}, &stubAppointments{}, users)

	req := authedRequest(t, http.MethodPost, "/api/availability/book/"+uuid.NewString(), "", "house", "doctor")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookSlotConflict(t *testing.T) {
	users := &stubUsers{
		byUsername: func(_ context.Context, username string) (*clinic.User, error) {
			return &clinic.User{ID: uuid.New(), Username: username, Role: clinic.RolePatient}, nil
		},
	}
	av := &stubAvailability{
		book: func(context.Context, uuid.UUID, uuid.UUID) (*availability.Slot, error) {
			return nil, availability.ErrSlotAlreadyBooked
		},
	}
	router := testRouter(av, &stubAppointments{}, users)

	req := authedRequest(t, http.MethodPost, "/api/availability/book/"+uuid.NewString(), "", "alice", "patient")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "slot_already_booked")
}

func TestUpdateAvailabilityIDMismatch(t *testing.T) {
	router := testRouter(&stubAvailability{}, &stubAppointments{}, &stubUsers{})

	req := authedRequest(t, http.MethodPut, "/api/availability/"+uuid.NewString(),
		`{"id":"`+uuid.NewString()+`","version":1,"date":"2031-06-10","startTime":"09:00","endTime":"10:30"}`,
		"house", "doctor")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "id_mismatch")
}

func TestUpdateAvailabilityForbiddenForNonOwner(t *testing.T) {
	id := uuid.New()
	av := &stubAvailability{
		update: func(context.Context, string, uuid.UUID, availability.Window, int64) (*availability.Availability, error) {
			return nil, availability.ErrNotOwner
		},
	}
	router := testRouter(av, &stubAppointments{}, &stubUsers{})

	req := authedRequest(t, http.MethodPut, "/api/availability/"+id.String(),
		`{"id":"`+id.String()+`","version":1,"date":"2031-06-10","startTime":"09:00","endTime":"10:30"}`,
		"wilson", "doctor")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_owner")
}

func TestAvailableSlotsRejectsBadDate(t *testing.T) {
	router := testRouter(&stubAvailability{}, &stubAppointments{}, &stubUsers{})

	req := authedRequest(t, http.MethodGet,
		"/api/availability/doctor/"+uuid.NewString()+"/slots?date=June+10", "", "alice", "patient")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointmentMapsErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown user", clinic.ErrUserNotFound, http.StatusNotFound},
		{"role mismatch", appointment.ErrRoleMismatch, http.StatusBadRequest},
		{"slot booked", availability.ErrSlotAlreadyBooked, http.StatusConflict},
		{"slot unavailable", appointment.ErrSlotUnavailable, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appts := &stubAppointments{
				create: func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (*appointment.Appointment, error) {
					return nil, tc.err
				},
			}
			router := testRouter(&stubAvailability{}, appts, &stubUsers{})

			body := `{"patientId":"` + uuid.NewString() + `","doctorId":"` + uuid.NewString() + `","slotId":"` + uuid.NewString() + `"}`
			req := authedRequest(t, http.MethodPost, "/api/appointments", body, "alice", "patient")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestCancelAppointment(t *testing.T) {
	id := uuid.New()

	appts := &stubAppointments{
		cancel: func(_ context.Context, gotID uuid.UUID, requester string) error {
			assert.Equal(t, id, gotID)
			if requester != "alice" {
				return appointment.ErrNotAParty
			}
			return nil
		},
	}
	router := testRouter(&stubAvailability{}, appts, &stubUsers{})

	req := authedRequest(t, http.MethodDelete, "/api/appointments/"+id.String(), "", "alice", "patient")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = authedRequest(t, http.MethodDelete, "/api/appointments/"+id.String(), "", "mallory", "patient")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router := testRouter(&stubAvailability{}, &stubAppointments{}, &stubUsers{})

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
