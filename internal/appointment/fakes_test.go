package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/credits"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-scheduling/internal/video"
)

// memRepo keeps state in memory. CreateScheduled applies the charge and the
// insert atomically and rejects overlapping SCHEDULED rows the way the
// database exclusion constraint does.
type memRepo struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*User
	windows   map[uuid.UUID]*AvailabilityWindow
	appts     []*Appointment
	events    []EventLog
	listCalls [][2]int

	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:   map[uuid.UUID]*User{},
		windows: map[uuid.UUID]*AvailabilityWindow{},
	}
}

func (r *memRepo) addUser(name string, role Role, credits int, verification *VerificationStatus) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &User{
		ID:                 uuid.New(),
		ExternalID:         "ext-" + name,
		Name:               name,
		Role:               role,
		Credits:            credits,
		VerificationStatus: verification,
	}
	r.users[u.ID] = u
	return u
}

func (r *memRepo) addPatient(name string, credits int) *User {
	return r.addUser(name, RolePatient, credits, nil)
}

func (r *memRepo) addDoctor(name string, status VerificationStatus) *User {
	return r.addUser(name, RoleDoctor, 0, &status)
}

func (r *memRepo) balance(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id].Credits
}

func (r *memRepo) scheduledCount(doctorID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Status == StatusScheduled {
			n++
		}
	}
	return n
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, ev := range r.events {
		types = append(types, ev.EventType)
	}
	return types
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) GetAvailability(_ context.Context, doctorID uuid.UUID) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[doctorID]
	if !ok || w.Status != scheduling.WindowAvailable {
		return nil, ErrAvailabilityNotSet
	}
	cp := *w
	return &cp, nil
}

func (r *memRepo) overlapping(doctorID uuid.UUID, iv scheduling.Interval) []Appointment {
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Status == StatusScheduled && a.Interval().Overlaps(iv) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (r *memRepo) ListScheduledForDoctor(_ context.Context, doctorID uuid.UUID, iv scheduling.Interval) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlapping(doctorID, iv), nil
}

func (r *memRepo) FindOverlapping(_ context.Context, doctorID uuid.UUID, iv scheduling.Interval) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := r.overlapping(doctorID, iv)
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *memRepo) CreateScheduled(_ context.Context, in NewAppointment, charge Charge) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return nil, r.createErr
	}

	from, to := r.users[charge.FromID], r.users[charge.ToID]
	if from == nil || to == nil {
		return nil, fmt.Errorf("%w: %w", ErrCreditTransferFailed, credits.ErrAccountNotFound)
	}
	if from.Credits < charge.Amount {
		return nil, fmt.Errorf("%w: %w", ErrCreditTransferFailed, credits.ErrInsufficientBalance)
	}
	if len(r.overlapping(in.DoctorID, scheduling.Interval{Start: in.StartTime, End: in.EndTime})) > 0 {
		return nil, ErrSlotUnavailable
	}

	from.Credits -= charge.Amount
	to.Credits += charge.Amount

	now := time.Now()
	a := &Appointment{
		ID:                 uuid.New(),
		DoctorID:           in.DoctorID,
		PatientID:          in.PatientID,
		StartTime:          in.StartTime,
		EndTime:            in.EndTime,
		Status:             StatusScheduled,
		PatientDescription: in.PatientDescription,
		VideoSessionID:     in.VideoSessionID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.appts = append(r.appts, a)
	cp := *a
	return &cp, nil
}

func (r *memRepo) insertAppointment(a Appointment) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.appts = append(r.appts, &a)
	return &a
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) ListAppointmentsForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls = append(r.listCalls, [2]int{limit, offset})
	out := []Appointment{}
	for _, a := range r.appts {
		if a.HasParticipant(userID) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateVideoToken(_ context.Context, id uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.ID == id {
			a.VideoSessionToken = &token
			return nil
		}
	}
	return ErrAppointmentNotFound
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// passLocker runs fn without any locking, leaving races to the repository.
type passLocker struct {
	err error
}

func (l passLocker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

type stubProvisioner struct {
	mu        sync.Mutex
	created   int
	createErr error
	tokenErr  error
	lastToken video.TokenOptions
}

func (p *stubProvisioner) CreateSession(_ context.Context, mode video.MediaMode) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.created++
	return fmt.Sprintf("session-%s-%d", mode, p.created), nil
}

func (p *stubProvisioner) IssueToken(sessionID string, opts video.TokenOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokenErr != nil {
		return "", p.tokenErr
	}
	p.lastToken = opts
	return "token-for-" + sessionID, nil
}

func (p *stubProvisioner) sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}
