package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-scheduling/internal/credits"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

// pgxDB is the subset of pgxpool.Pool the repository uses.
type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db pgxDB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

const userColumns = `id, external_id, name, email, role, specialty, verification_status, credits, created_at, updated_at`

const appointmentColumns = `id, doctor_id, patient_id, start_time, end_time, status,
	patient_description, notes, video_session_id, video_session_token, created_at, updated_at`

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	var verification *string

	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Name,
		&u.Email,
		&role,
		&u.Specialty,
		&verification,
		&u.Credits,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Role = Role(role)
	if verification != nil {
		v := VerificationStatus(*verification)
		u.VerificationStatus = &v
	}
	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.StartTime,
		&a.EndTime,
		&status,
		&a.PatientDescription,
		&a.Notes,
		&a.VideoSessionID,
		&a.VideoSessionToken,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *PgRepository) GetAvailability(ctx context.Context, doctorID uuid.UUID) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var status, start, end string

	err := r.db.QueryRow(ctx, `
		SELECT id, doctor_id, status,
		       to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		       COALESCE(timezone, ''), created_at, updated_at
		FROM availabilities
		WHERE doctor_id = $1
		  AND status = 'AVAILABLE'
	`, doctorID).Scan(&w.ID, &w.DoctorID, &status, &start, &end, &w.Timezone, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotSet
		}
		return nil, fmt.Errorf("load availability: %w", err)
	}

	w.Status = scheduling.WindowStatus(status)
	if w.StartTime, err = scheduling.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("availability %s start: %w", w.ID, err)
	}
	if w.EndTime, err = scheduling.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("availability %s end: %w", w.ID, err)
	}
	return &w, nil
}

func (r *PgRepository) ListScheduledForDoctor(ctx context.Context, doctorID uuid.UUID, iv scheduling.Interval) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'SCHEDULED'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, iv.Start, iv.End)
	if err != nil {
		return nil, fmt.Errorf("list scheduled appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindOverlapping(ctx context.Context, doctorID uuid.UUID, iv scheduling.Interval) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'SCHEDULED'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
		LIMIT 1
	`, doctorID, iv.Start, iv.End)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find overlapping appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) CreateScheduled(ctx context.Context, in NewAppointment, charge Charge) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.New()

	err = credits.TransferTx(ctx, tx, credits.Transfer{
		FromID:    charge.FromID,
		ToID:      charge.ToID,
		Amount:    charge.Amount,
		Reference: id,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreditTransferFailed, err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, start_time, end_time, status,
		                          patient_description, video_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'SCHEDULED', $6, $7, now(), now())
		RETURNING `+appointmentColumns,
		id, in.DoctorID, in.PatientID, in.StartTime, in.EndTime, in.PatientDescription, in.VideoSessionID)

	appt, err := scanAppointment(row)
	if err != nil {
		if db.IsViolation(err, db.CodeExclusionViolation) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsViolation(err, db.CodeExclusionViolation) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 OR patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateVideoToken(ctx context.Context, id uuid.UUID, token string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET video_session_token = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, token)
	if err != nil {
		return fmt.Errorf("update video token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
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
