package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/receptionist-scheduler/internal/api/router"
	"github.com/wolfman30/receptionist-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/receptionist-scheduler/internal/booking"
	appconfig "github.com/wolfman30/receptionist-scheduler/internal/config"
	"github.com/wolfman30/receptionist-scheduler/internal/crm"
	"github.com/wolfman30/receptionist-scheduler/internal/holds"
	"github.com/wolfman30/receptionist-scheduler/internal/observability/metrics"
	"github.com/wolfman30/receptionist-scheduler/internal/reaper"
	"github.com/wolfman30/receptionist-scheduler/internal/tools"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting receptionist scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.Location().String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := connectStores(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	gateway, err := bootstrap.BuildCalendar(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure calendar", "error", err)
		os.Exit(1)
	}
	publisher, err := bootstrap.BuildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure event publisher", "error", err)
		os.Exit(1)
	}
	opts, err := bootstrap.BuildBookingOptions(cfg)
	if err != nil {
		logger.Error("invalid slot configuration", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, bookingMetrics := setupMetrics()

	orchestrator := booking.New(booking.Deps{
		Store:     stores.holds,
		Calendar:  gateway,
		CRM:       stores.crm,
		Locker:    bootstrap.BuildGroupLocker(redisClient, cfg, logger),
		Publisher: publisher,
		Metrics:   bookingMetrics,
		Logger:    logger,
	}, opts)

	if cfg.HoldReaperInterval > 0 {
		holdReaper := reaper.New(stores.holds, gateway, logger).
			WithTTL(cfg.HoldTTL).
			WithInterval(cfg.HoldReaperInterval).
			WithPublisher(publisher).
			WithMetrics(bookingMetrics)
		go holdReaper.Run(ctx)
	} else {
		logger.Warn("hold reaper disabled; expired holds stay on the calendar")
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Tools:              tools.NewHandler(orchestrator, stores.crm, bookingMetrics, logger),
		MetricsHandler:     metricsHandler,
		WebhookToken:       cfg.RetellWebhookToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})
	if cfg.RetellWebhookToken == "" {
		logger.Warn("RETELL_WEBHOOK_TOKEN not set; tool endpoints are unauthenticated")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

// stores bundles the ledger and CRM backends with their connections.
type stores struct {
	holds holds.Store
	crm   crm.Gateway
	pool  *pgxpool.Pool
	db    *sql.DB
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// connectStores uses Postgres when databaseURL is set and in-memory stores
// otherwise.
func connectStores(ctx context.Context, databaseURL string, logger *logging.Logger) (*stores, error) {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn("DATABASE_URL not set; holds and patients are kept in memory")
		return &stores{holds: holds.NewMemoryStore(), crm: crm.NewMemoryStore()}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &stores{
		holds: holds.NewPostgresStore(pool),
		crm:   crm.NewSQLStore(db, logger),
		pool:  pool,
		db:    db,
	}, nil
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}
