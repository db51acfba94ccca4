package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/clinic-scheduler/internal/availability"
	"github.com/medtrack/clinic-scheduler/internal/clinic"
)

// MockRepository is a mock implementation of Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	args := m.Called(ctx, patientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	args := m.Called(ctx, doctorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*availability.Slot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*availability.Slot), args.Error(1)
}

func (m *MockRepository) CreateApproved(ctx context.Context, appt *Appointment, slotVersion int64, bookedAt time.Time) error {
	args := m.Called(ctx, appt, slotVersion, bookedAt)
	return args.Error(0)
}

func (m *MockRepository) Approve(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) CancelAndRelease(ctx context.Context, appt *Appointment) error {
	args := m.Called(ctx, appt)
	return args.Error(0)
}

func (m *MockRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockUsers is a mock implementation of clinic.Repository.
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) GetUserByID(ctx context.Context, id uuid.UUID) (*clinic.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clinic.User), args.Error(1)
}

func (m *MockUsers) GetUserByUsername(ctx context.Context, username string) (*clinic.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clinic.User), args.Error(1)
}

var fixedNow = time.Date(2025, 6, 10, 8, 0, 0, 0, time.Local)

type fixture struct {
	repo    *MockRepository
	users   *MockUsers
	svc     *Service
	patient *clinic.User
	doctor  *clinic.User
}

func newFixture() *fixture {
	f := &fixture{
		repo:  new(MockRepository),
		users: new(MockUsers),
		patient: &clinic.User{
			ID: uuid.New(), Username: "alice", Role: clinic.RolePatient,
		},
		doctor: &clinic.User{
			ID: uuid.New(), Username: "house", Role: clinic.RoleDoctor,
		},
	}
	f.svc = NewService(f.repo, f.users, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func TestCreateAppointmentBooksSlotAndAutoApproves(t *testing.T) {
	f := newFixture()
	slotID := uuid.New()

	f.users.On("GetUserByID", mock.Anything, f.patient.ID).Return(f.patient, nil)
	f.users.On("GetUserByID", mock.Anything, f.doctor.ID).Return(f.doctor, nil)
	f.repo.On("GetSlotByID", mock.Anything, slotID).
		Return(&availability.Slot{ID: slotID, SlotStart: fixedNow.Add(2 * time.Hour), Version: 1}, nil)
	f.repo.On("CreateApproved", mock.Anything, mock.Anything, int64(1), fixedNow).Return(nil)
	f.repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)

	appt, err := f.svc.CreateAppointment(context.Background(), f.patient.ID, f.doctor.ID, slotID)
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, appt.Status)
	assert.Equal(t, slotID, appt.SlotID)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, f.doctor.ID, appt.DoctorID)

	ev := f.repo.Calls[len(f.repo.Calls)-1].Arguments.Get(1).(EventLog)
	assert.Equal(t, EventAppointmentCreated, ev.EventType)
}

func TestCreateAppointmentRoleMismatch(t *testing.T) {
	f := newFixture()
	slotID := uuid.New()

	// Patient id resolves to a doctor account.
	f.users.On("GetUserByID", mock.Anything, f.doctor.ID).Return(f.doctor, nil)

	_, err := f.svc.CreateAppointment(context.Background(), f.doctor.ID, f.doctor.ID, slotID)
	assert.ErrorIs(t, err, ErrRoleMismatch)

	// Doctor id resolves to a patient account.
	f2 := newFixture()
	f2.users.On("GetUserByID", mock.Anything, f2.patient.ID).Return(f2.patient, nil)

	_, err = f2.svc.CreateAppointment(context.Background(), f2.patient.ID, f2.patient.ID, slotID)
	assert.ErrorIs(t, err, ErrRoleMismatch)
}

func TestCreateAppointmentSlotAlreadyBooked(t *testing.T) {
	f := newFixture()
	slotID := uuid.New()
	other := uuid.New()

	f.users.On("GetUserByID", mock.Anything, f.patient.ID).Return(f.patient, nil)
	f.users.On("GetUserByID", mock.Anything, f.doctor.ID).Return(f.doctor, nil)
	f.repo.On("GetSlotByID", mock.Anything, slotID).
		Return(&availability.Slot{ID: slotID, IsBooked: true, PatientID: &other, SlotStart: fixedNow}, nil)

	_, err := f.svc.CreateAppointment(context.Background(), f.patient.ID, f.doctor.ID, slotID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	f.repo.AssertNotCalled(t, "CreateApproved", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAppointmentLosesBookingRace(t *testing.T) {
	f := newFixture()
	slotID := uuid.New()

	f.users.On("GetUserByID", mock.Anything, f.patient.ID).Return(f.patient, nil)
	f.users.On("GetUserByID", mock.Anything, f.doctor.ID).Return(f.doctor, nil)
	f.repo.On("GetSlotByID", mock.Anything, slotID).
		Return(&availability.Slot{ID: slotID, SlotStart: fixedNow.Add(time.Hour), Version: 0}, nil)
	f.repo.On("CreateApproved", mock.Anything, mock.Anything, int64(0), fixedNow).
		Return(availability.ErrSlotAlreadyBooked)

	_, err := f.svc.CreateAppointment(context.Background(), f.patient.ID, f.doctor.ID, slotID)
	assert.ErrorIs(t, err, availability.ErrSlotAlreadyBooked)
}

func TestApproveAppointmentMirrorsSlot(t *testing.T) {
	f := newFixture()
	id := uuid.New()

	f.repo.On("Approve", mock.Anything, id).
		Return(&Appointment{ID: id, Status: StatusApproved}, nil)
	f.repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)

	appt, err := f.svc.ApproveAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, appt.Status)
}

func TestApproveAppointmentNotFound(t *testing.T) {
	f := newFixture()
	id := uuid.New()

	f.repo.On("Approve", mock.Anything, id).Return(nil, ErrAppointmentNotFound)

	_, err := f.svc.ApproveAppointment(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func cancellationFixture(status Status) (*fixture, *Appointment) {
	f := newFixture()
	appt := &Appointment{
		ID:        uuid.New(),
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		SlotID:    uuid.New(),
		Status:    status,
	}
	f.repo.On("GetAppointmentByID", mock.Anything, appt.ID).Return(appt, nil)
	f.users.On("GetUserByID", mock.Anything, f.patient.ID).Return(f.patient, nil)
	f.users.On("GetUserByID", mock.Anything, f.doctor.ID).Return(f.doctor, nil)
	return f, appt
}

func TestCancelAppointmentByPatientReleasesSlot(t *testing.T) {
	f, appt := cancellationFixture(StatusApproved)
	f.repo.On("CancelAndRelease", mock.Anything, appt).Return(nil)
	f.repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)

	err := f.svc.CancelAppointment(context.Background(), appt.ID, "alice")
	require.NoError(t, err)
	f.repo.AssertCalled(t, "CancelAndRelease", mock.Anything, appt)
}

func TestCancelAppointmentByDoctor(t *testing.T) {
	f, appt := cancellationFixture(StatusPending)
	f.repo.On("CancelAndRelease", mock.Anything, appt).Return(nil)
	f.repo.On("InsertEvent", mock.Anything, mock.Anything).Return(nil)

	err := f.svc.CancelAppointment(context.Background(), appt.ID, "house")
	require.NoError(t, err)
}

func TestCancelAppointmentForbiddenForThirdParty(t *testing.T) {
	f, appt := cancellationFixture(StatusApproved)

	err := f.svc.CancelAppointment(context.Background(), appt.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotAParty)
	f.repo.AssertNotCalled(t, "CancelAndRelease", mock.Anything, mock.Anything)
}

func TestCancelAppointmentCompletedRejected(t *testing.T) {
	f, appt := cancellationFixture(StatusCompleted)

	err := f.svc.CancelAppointment(context.Background(), appt.ID, "alice")
	assert.ErrorIs(t, err, ErrNotCancellable)
	f.repo.AssertNotCalled(t, "CancelAndRelease", mock.Anything, mock.Anything)
}

func TestCancelAppointmentNotFound(t *testing.T) {
	f := newFixture()
	id := uuid.New()

	f.repo.On("GetAppointmentByID", mock.Anything, id).Return(nil, ErrAppointmentNotFound)

	err := f.svc.CancelAppointment(context.Background(), id, "alice")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListAppointments(t *testing.T) {
	f := newFixture()

	f.repo.On("ListAppointmentsByPatient", mock.Anything, f.patient.ID).
		Return([]Appointment{{ID: uuid.New(), PatientID: f.patient.ID}}, nil)
	f.repo.On("ListAppointmentsByDoctor", mock.Anything, f.doctor.ID).
		Return([]Appointment{}, nil)

	byPatient, err := f.svc.GetAppointmentsByPatient(context.Background(), f.patient.ID)
	require.NoError(t, err)
	assert.Len(t, byPatient, 1)

	byDoctor, err := f.svc.GetAppointmentsByDoctor(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, byDoctor)
}
