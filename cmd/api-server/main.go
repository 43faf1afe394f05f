package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/chat"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/credits"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
	"github.com/hackgods/telehealth-scheduling/internal/video"
	"github.com/hackgods/telehealth-scheduling/pkg/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)
	for _, feature := range cfg.Degraded() {
		logger.Warn("running degraded", "feature", feature)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.WithMaxConns(cfg.PostgresMaxConn))
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to redis")

	var provisioner video.Provisioner
	if cfg.FakeVideo() {
		provisioner = video.NewFakeProvisioner(cfg.AuthJWTSecret)
	} else {
		provisioner, err = video.NewVonageClient(video.VonageConfig{
			ApplicationID: cfg.VonageApplicationID,
			PrivateKey:    cfg.VonagePrivateKey,
			BaseURL:       cfg.VonageAPIBaseURL,
		}, logger)
		if err != nil {
			log.Fatalf("video provider error: %v", err)
		}
	}

	var llm chat.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := chat.NewGeminiClient(rootCtx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("gemini client unavailable, chat disabled", "error", err)
		} else {
			defer func() { _ = gemini.Close() }()
			llm = gemini
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	bookings := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait),
		provisioner,
		appointment.WithLogger(logger),
		appointment.WithMetrics(bookingMetrics),
		appointment.WithDefaultLocation(cfg.Location()),
	)

	router := api.NewRouter(api.RouterConfig{
		Bookings:   bookings,
		Credits:    credits.NewLedger(pgPool),
		Chat:       chat.NewService(llm, logger),
		Health:     api.NewHealthHandler(pgPool.Ping, api.RedisPing(rdb), cfg.Env, version, cfg.Degraded()),
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthSecret: cfg.AuthJWTSecret,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
