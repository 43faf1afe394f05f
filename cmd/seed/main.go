package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-scheduling/internal/db"
)

const patientCredits = 10

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	timezone := getEnv("DEFAULT_TIMEZONE", "UTC")
	if _, err := time.LoadLocation(timezone); err != nil {
		log.Fatalf("invalid DEFAULT_TIMEZONE %q: %v", timezone, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, getInt("SEED_DOCTORS", 20), timezone); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, getInt("SEED_PATIENTS", 500)); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

// seedDoctors creates verified doctors, each with a 09:00-17:00 daily window.
func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, timezone string) error {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, external_id, name, email, role, specialty, verification_status, credits, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'DOCTOR', $5, 'VERIFIED', 0, now(), now())
		`, id, "seed_"+id.String(), "Dr. "+gofakeit.Name(), gofakeit.Email(), specialty)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO availabilities (id, doctor_id, status, start_time, end_time, timezone, created_at, updated_at)
			VALUES ($1, $2, 'AVAILABLE', '09:00', '17:00', $3, now(), now())
		`, uuid.New(), id, timezone)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, external_id, name, email, role, credits, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'PATIENT', $5, now(), now())
			`, id, "seed_"+id.String(), gofakeit.Name(), gofakeit.Email(), patientCredits)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
