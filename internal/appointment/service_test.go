package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *memRepo
	video   *stubProvisioner
	svc     *Service
	patient *User
	doctor  *User
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	if locker == nil {
		locker = passLocker{}
	}
	repo := newMemRepo()
	prov := &stubProvisioner{}
	svc := NewService(repo, locker, prov,
		WithClock(func() time.Time { return testNow }),
		WithMetrics(metrics.NewBookingMetrics(prometheus.NewRegistry())),
	)
	return &fixture{
		repo:    repo,
		video:   prov,
		svc:     svc,
		patient: repo.addPatient("Pat", 10),
		doctor:  repo.addDoctor("Dr. Doe", VerificationVerified),
	}
}

func (f *fixture) request(startHour int) BookRequest {
	start := time.Date(2025, 3, 10, startHour, 0, 0, 0, time.UTC)
	return BookRequest{
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	}
}

func TestBookAppointmentMovesCredits(t *testing.T) {
	f := newFixture(t, nil)
	patient := f.repo.addPatient("Two Credits", 2)
	desc := "headache"

	req := f.request(10)
	req.PatientID = patient.ID
	req.Description = &desc

	appt, err := f.svc.BookAppointment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, f.doctor.ID, appt.DoctorID)
	assert.Equal(t, patient.ID, appt.PatientID)
	assert.Equal(t, "session-routed-1", appt.VideoSessionID)
	assert.Equal(t, &desc, appt.PatientDescription)

	assert.Equal(t, 0, f.repo.balance(patient.ID))
	assert.Equal(t, 2, f.repo.balance(f.doctor.ID))
	assert.Equal(t, []string{EventAppointmentBooked}, f.repo.eventTypes())
}

func TestBookAppointmentPreconditionOrder(t *testing.T) {
	f := newFixture(t, nil)
	doctorAsPatient := f.repo.addUser("Dr. Who", RoleDoctor, 10, nil)
	pending := f.repo.addDoctor("Dr. Pending", VerificationPending)
	rejected := f.repo.addDoctor("Dr. Rejected", VerificationRejected)
	broke := f.repo.addPatient("Broke", 1)
	otherPatient := f.repo.addPatient("Other", 10)

	f.repo.insertAppointment(Appointment{
		DoctorID:  f.doctor.ID,
		PatientID: otherPatient.ID,
		StartTime: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		Status:    StatusScheduled,
	})

	tests := []struct {
		name   string
		mutate func(*BookRequest)
		want   error
	}{
		{"unknown patient wins over invalid request", func(r *BookRequest) {
			r.PatientID = uuid.New()
			r.EndTime = r.StartTime
		}, ErrPatientNotFound},
		{"non-patient requester", func(r *BookRequest) { r.PatientID = doctorAsPatient.ID }, ErrPatientNotFound},
		{"missing doctor id", func(r *BookRequest) { r.DoctorID = uuid.Nil }, ErrInvalidRequest},
		{"missing start", func(r *BookRequest) { r.StartTime = time.Time{} }, ErrInvalidRequest},
		{"end before start", func(r *BookRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }, ErrInvalidRequest},
		{"empty interval", func(r *BookRequest) { r.EndTime = r.StartTime }, ErrInvalidRequest},
		{"invalid request wins over unknown doctor", func(r *BookRequest) {
			r.DoctorID = uuid.New()
			r.EndTime = r.StartTime
		}, ErrInvalidRequest},
		{"unknown doctor", func(r *BookRequest) { r.DoctorID = uuid.New() }, ErrDoctorNotFound},
		{"doctor id of a patient", func(r *BookRequest) { r.DoctorID = otherPatient.ID }, ErrDoctorNotFound},
		{"pending doctor", func(r *BookRequest) { r.DoctorID = pending.ID }, ErrDoctorNotVerified},
		{"rejected doctor", func(r *BookRequest) { r.DoctorID = rejected.ID }, ErrDoctorNotVerified},
		{"doctor without verification", func(r *BookRequest) { r.DoctorID = doctorAsPatient.ID }, ErrDoctorNotVerified},
		{"unverified doctor wins over credits", func(r *BookRequest) {
			r.PatientID = broke.ID
			r.DoctorID = pending.ID
		}, ErrDoctorNotVerified},
		{"insufficient credits wins over overlap", func(r *BookRequest) {
			r.PatientID = broke.ID
			r.StartTime = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
			r.EndTime = r.StartTime.Add(30 * time.Minute)
		}, ErrInsufficientCredits},
		{"overlapping booking", func(r *BookRequest) {
			r.StartTime = time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)
			r.EndTime = r.StartTime.Add(30 * time.Minute)
		}, ErrSlotUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(14)
			tt.mutate(&req)

			appt, err := f.svc.BookAppointment(context.Background(), req)
			assert.Nil(t, appt)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, f.video.sessions(), "no session is provisioned for a rejected booking")
	assert.Equal(t, 1, f.repo.balance(broke.ID))
	assert.Equal(t, 10, f.repo.balance(f.patient.ID))
	assert.Empty(t, f.repo.eventTypes())
}

func TestBookAppointmentAdjacentIntervalsDoNotOverlap(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.BookAppointment(context.Background(), f.request(10))
	require.NoError(t, err)

	before := f.request(10)
	before.StartTime = before.StartTime.Add(-30 * time.Minute)
	before.EndTime = before.EndTime.Add(-30 * time.Minute)
	_, err = f.svc.BookAppointment(context.Background(), before)
	require.NoError(t, err)

	after := f.request(10)
	after.StartTime = after.StartTime.Add(30 * time.Minute)
	after.EndTime = after.EndTime.Add(30 * time.Minute)
	_, err = f.svc.BookAppointment(context.Background(), after)
	require.NoError(t, err)

	assert.Equal(t, 3, f.repo.scheduledCount(f.doctor.ID))
	assert.Equal(t, 4, f.repo.balance(f.patient.ID))
}

func TestBookAppointmentProvisioningFailureChargesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.video.createErr = errors.New("vonage down")

	_, err := f.svc.BookAppointment(context.Background(), f.request(10))
	assert.ErrorIs(t, err, ErrProvisioningFailed)

	assert.Equal(t, 10, f.repo.balance(f.patient.ID))
	assert.Equal(t, 0, f.repo.balance(f.doctor.ID))
	assert.Zero(t, f.repo.scheduledCount(f.doctor.ID))
	assert.Empty(t, f.repo.eventTypes())
}

func TestBookAppointmentCreditFailureOrphansSession(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.createErr = ErrCreditTransferFailed

	_, err := f.svc.BookAppointment(context.Background(), f.request(10))
	assert.ErrorIs(t, err, ErrCreditTransferFailed)

	assert.Equal(t, 1, f.video.sessions())
	assert.Zero(t, f.repo.scheduledCount(f.doctor.ID))
	assert.Equal(t, []string{EventSessionOrphaned}, f.repo.eventTypes())
}

func TestBookAppointmentBusyLockIsSlotUnavailable(t *testing.T) {
	f := newFixture(t, passLocker{err: redisclient.ErrLockNotAcquired})

	_, err := f.svc.BookAppointment(context.Background(), f.request(10))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Zero(t, f.video.sessions())
}

func TestBookAppointmentLockBackendDownFallsBackToConstraint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	f := newFixture(t, redisclient.NewRedisDoctorLocker(client, time.Second, time.Second))

	appt, err := f.svc.BookAppointment(context.Background(), f.request(10))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 1, f.repo.scheduledCount(f.doctor.ID))

	other := f.repo.addPatient("Other", 10)
	req := f.request(10)
	req.PatientID = other.ID
	_, err = f.svc.BookAppointment(context.Background(), req)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, 10, f.repo.balance(other.ID))
}

func TestBookAppointmentLockBackendDownConcurrent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	f := newFixture(t, redisclient.NewRedisDoctorLocker(client, time.Second, time.Second))
	assertSingleWinner(t, f, 8)
}

// Without the lock, the repository still admits only one of the racing bookings.
func TestBookAppointmentConcurrentWithoutLock(t *testing.T) {
	f := newFixture(t, nil)
	assertSingleWinner(t, f, 8)
}

func TestBookAppointmentConcurrentWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, redisclient.NewRedisDoctorLocker(client, 5*time.Second, 5*time.Second))
	assertSingleWinner(t, f, 8)
	assert.Equal(t, 1, f.video.sessions(), "losers are rejected before provisioning")
}

func assertSingleWinner(t *testing.T, f *fixture, n int) {
	t.Helper()

	patients := make([]*User, n)
	for i := range patients {
		patients[i] = f.repo.addPatient("racer", 2)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		lost    int
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(p *User) {
			defer wg.Done()
			req := f.request(11)
			req.PatientID = p.ID
			<-start
			_, err := f.svc.BookAppointment(context.Background(), req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrSlotUnavailable):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, lost)
	assert.Equal(t, 1, f.repo.scheduledCount(f.doctor.ID))
	assert.Equal(t, 2, f.repo.balance(f.doctor.ID))

	charged := 0
	for _, p := range patients {
		if f.repo.balance(p.ID) == 0 {
			charged++
		}
	}
	assert.Equal(t, 1, charged, "only the winner pays")
}
