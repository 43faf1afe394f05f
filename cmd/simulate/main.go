package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	RaceWorkers  int
	BookingRatio float64
	ReadRatio    float64
	SlotSpread   int
	PatientLimit int
	DoctorLimit  int
	PostgresDSN  string
	AuthSecret   string
}

type booked struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Patients     []uuid.UUID
	Doctors      []uuid.UUID
	tokens       map[uuid.UUID]string
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

func (dp *DataPool) Token(userID uuid.UUID) string {
	return dp.tokens[userID]
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = percentile(latencies, 50)
	p95 = percentile(latencies, 95)
	p99 = percentile(latencies, 99)
	return avg, lo, hi, p50, p95, p99
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Race             OperationMetrics
	Slots            OperationMetrics
	Booking          OperationMetrics
	ReadByID         OperationMetrics
	ListAppointments OperationMetrics
	Credits          OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d race_workers=%d booking=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.RaceWorkers, cfg.BookingRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d doctors", len(dataPool.Patients), len(dataPool.Doctors))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	winners, ran := sim.Race(context.Background())
	switch {
	case !ran:
		log.Println("WARNING: single-slot race did not run, no free slot was found")
	case winners != 1:
		log.Printf("WARNING: race on a single slot produced %d bookings, want exactly 1", winners)
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		RaceWorkers:  getInt("SIM_RACE_WORKERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.6),
		SlotSpread:   getInt("SIM_SLOT_SPREAD", 3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 1000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		PostgresDSN:  baseCfg.PostgresDSN,
		AuthSecret:   baseCfg.AuthJWTSecret,
	}

	total := cfg.BookingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.RaceWorkers <= 1 {
		return fmt.Errorf("SIM_RACE_WORKERS must be > 1")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotSpread <= 0 {
		return fmt.Errorf("SIM_SLOT_SPREAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{tokens: make(map[uuid.UUID]string)}

	patients, err := loadIDs(ctx, pool, `
		SELECT id FROM users WHERE role = 'PATIENT' AND credits >= 2 LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	doctors, err := loadIDs(ctx, pool, `
		SELECT u.id FROM users u
		JOIN availabilities a ON a.doctor_id = u.id AND a.status = 'AVAILABLE'
		WHERE u.role = 'DOCTOR' AND u.verification_status = 'VERIFIED'
		LIMIT $1
	`, cfg.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(patients) < cfg.RaceWorkers {
		return nil, fmt.Errorf("need at least %d patients with credits, found %d", cfg.RaceWorkers, len(patients))
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("no bookable doctors loaded")
	}

	dataPool.Patients = patients
	dataPool.Doctors = doctors

	for _, id := range patients {
		token, err := signToken(cfg.AuthSecret, id)
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		dataPool.tokens[id] = token
	}

	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// signToken mints the bearer token the identity provider would issue.
func signToken(secret string, userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Race fires RaceWorkers concurrent bookings, from distinct patients, for one
// free slot and returns how many of them succeeded. ran is false when no free
// slot could be found and nothing was fired.
func (s *Simulator) Race(ctx context.Context) (winners int64, ran bool) {
	doctorID := s.pool.Doctors[0]
	viewer := s.pool.Patients[0]

	slots, err := s.freeSlots(ctx, viewer, doctorID)
	if err != nil || len(slots) == 0 {
		log.Printf("race skipped: no free slot for doctor %s (err=%v)", doctorID, err)
		return 0, false
	}
	slot := slots[0]

	log.Printf("race: %d patients booking doctor %s at %s", s.config.RaceWorkers, doctorID, slot.Start.Format(time.RFC3339))

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < s.config.RaceWorkers; i++ {
		patientID := s.pool.Patients[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s.book(ctx, &s.metrics.Race, patientID, doctorID, slot)
		}()
	}
	close(start)
	wg.Wait()

	winners = atomic.LoadInt64(&s.metrics.Race.Success)
	log.Printf("race complete: %d booked, %d rejected", winners, atomic.LoadInt64(&s.metrics.Race.Conflict))
	return winners, true
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng)
				continue
			}
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListAppointments(ctx, rng)
			case 2:
				s.doCredits(ctx, rng)
			}
		}
	}
}

// doBooking picks one of the first few free slots so that workers collide.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	doctorID := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]

	slots, err := s.freeSlots(ctx, patientID, doctorID)
	if err != nil || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(min(s.config.SlotSpread, len(slots)))]

	s.book(ctx, &s.metrics.Booking, patientID, doctorID, slot)
}

func (s *Simulator) book(ctx context.Context, om *OperationMetrics, patientID, doctorID uuid.UUID, slot scheduling.Slot) {
	body, _ := json.Marshal(map[string]any{
		"doctor_id":  doctorID.String(),
		"start_time": slot.Start,
		"end_time":   slot.End,
	})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments", patientID, body)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(booked{ID: appt.ID, PatientID: patientID})
			}
		case http.StatusConflict, http.StatusPaymentRequired:
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) freeSlots(ctx context.Context, viewer, doctorID uuid.UUID) ([]scheduling.Slot, error) {
	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/doctors/"+doctorID.String()+"/slots", viewer, nil)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Slots.Record(latency, false, false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.Slots.Record(latency, false, false)
		return nil, fmt.Errorf("slots: status %d", resp.StatusCode)
	}

	var out struct {
		Days []scheduling.DaySlots `json:"days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		s.metrics.Slots.Record(latency, false, false)
		return nil, err
	}
	s.metrics.Slots.Record(latency, true, false)

	var slots []scheduling.Slot
	for _, day := range out.Days {
		slots = append(slots, day.Slots...)
	}
	return slots, nil
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	s.get(ctx, &s.metrics.ReadByID, appt.PatientID, "/appointments/"+appt.ID.String())
}

func (s *Simulator) doListAppointments(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.get(ctx, &s.metrics.ListAppointments, patientID, "/appointments?limit=20&offset=0")
}

func (s *Simulator) doCredits(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.get(ctx, &s.metrics.Credits, patientID, "/me/credits")
}

func (s *Simulator) get(ctx context.Context, om *OperationMetrics, userID uuid.UUID, path string) {
	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, path, userID, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	om.Record(latency, success, false)
}

func (s *Simulator) do(ctx context.Context, method, path string, userID uuid.UUID, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.pool.Token(userID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Single-slot race", &s.metrics.Race)
	printOperationReport("Slot listing", &s.metrics.Slots)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List appointments", &s.metrics.ListAppointments)
	printOperationReport("Credits", &s.metrics.Credits)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95, p99 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
