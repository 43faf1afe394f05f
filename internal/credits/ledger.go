package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AppointmentCost is what a patient pays, and the doctor earns, per booking.
const AppointmentCost = 2

const (
	TypeAppointmentDeduction = "APPOINTMENT_DEDUCTION"
	TypeAppointmentEarning   = "APPOINTMENT_EARNING"
)

var (
	ErrInvalidAmount       = errors.New("credits: transfer amount must be positive")
	ErrInsufficientBalance = errors.New("credits: insufficient balance")
	ErrAccountNotFound     = errors.New("credits: account not found")
)

var ledgerTracer = otel.Tracer("telehealth.internal.credits")

// Execer is satisfied by pgx.Tx, so transfers can join a caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transfer moves Amount credits from one account to another. Reference ties
// the two ledger rows to the appointment that caused them.
type Transfer struct {
	FromID    uuid.UUID
	ToID      uuid.UUID
	Amount    int
	Reference uuid.UUID
}

// TransferTx applies t inside tx. Either every statement succeeds or the
// caller must roll tx back; the debit never leaves a balance below zero.
func TransferTx(ctx context.Context, tx Execer, t Transfer) (err error) {
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}

	ctx, span := ledgerTracer.Start(ctx, "credits.transfer")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transfer failed")
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("telehealth.from_id", t.FromID.String()),
		attribute.String("telehealth.to_id", t.ToID.String()),
		attribute.Int("telehealth.amount", t.Amount),
	)

	ct, err := tx.Exec(ctx, `
		UPDATE users
		SET credits = credits - $2,
		    updated_at = now()
		WHERE id = $1
		  AND credits >= $2
	`, t.FromID, t.Amount)
	if err != nil {
		return fmt.Errorf("credits: debit %s: %w", t.FromID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}

	ct, err = tx.Exec(ctx, `
		UPDATE users
		SET credits = credits + $2,
		    updated_at = now()
		WHERE id = $1
	`, t.ToID, t.Amount)
	if err != nil {
		return fmt.Errorf("credits: credit %s: %w", t.ToID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_transactions (id, user_id, amount, type, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $9, now()),
		       ($5, $6, $7, $8, $9, now())
	`, uuid.New(), t.FromID, -t.Amount, TypeAppointmentDeduction,
		uuid.New(), t.ToID, t.Amount, TypeAppointmentEarning,
		t.Reference)
	if err != nil {
		return fmt.Errorf("credits: record transactions: %w", err)
	}

	return nil
}

// Ledger answers balance lookups. Charges run through TransferTx inside the
// booking transaction.
type Ledger struct {
	db db
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	if pool == nil {
		panic("credits: pgx pool required")
	}
	return newLedgerWithDB(pool)
}

func newLedgerWithDB(db db) *Ledger {
	return &Ledger{db: db}
}

// Balance returns the current credit balance of a user.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var credits int
	err := l.db.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("credits: load balance: %w", err)
	}
	return credits, nil
}
