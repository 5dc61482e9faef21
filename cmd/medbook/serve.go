package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/access"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/directory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/events"
	v1 "github.com/dmehra2102/prod-golang-projects/medbook/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/repository/memory"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/repository/postgres"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/service"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/ratelimit"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/tracer"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool) error {
	log = log.With(
		zap.String("service", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return fmt.Errorf("loading scheduling timezone: %w", err)
	}

	st, err := openStores(ctx, cfg, log, migrate)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector("medbook", reg)

	guard, err := access.NewGuard(st.appointments)
	if err != nil {
		return fmt.Errorf("building access guard: %w", err)
	}

	publisher := events.New(cfg.Events, log)
	auditSvc := service.NewAuditService(st.audit, m, log)
	jwtManager := auth.NewJWTManager(cfg.JWT)

	opts := service.SchedulingOptions{
		SlotMinutes:         cfg.Scheduling.SlotMinutes,
		DefaultDurationMins: cfg.Scheduling.DefaultDurationMins,
		Policy: appointment.Policy{
			Location:           loc,
			CancellationCutoff: cfg.Scheduling.CancellationCutoff,
		},
	}

	global, authLimiter, closeLimiters := buildLimiters(ctx, cfg, log)
	defer closeLimiters()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterDeps{
		Appointments:  service.NewAppointmentService(st.appointments, st.directory, guard, auditSvc, publisher, m, opts, log),
		Availability:  service.NewAvailabilityService(st.directory, st.appointments, opts.SlotMinutes, m, log),
		Profiles:      service.NewProfileService(st.directory, guard, auditSvc, log),
		Auth:          service.NewAuthService(st.directory, jwtManager, auditSvc, log),
		JWT:           jwtManager,
		Directory:     st.directory,
		GlobalLimiter: global,
		AuthLimiter:   authLimiter,
		FailOpen:      cfg.RateLimit.FailOpen,
		CORS:          cfg.CORS,
		Metrics:       m,
		Gatherer:      reg,
		Log:           log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      otelhttp.NewHandler(router, cfg.App.Name),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	auditSvc.Shutdown()
	if err := publisher.Close(); err != nil {
		log.Error("closing event publisher", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

type directoryStore interface {
	directory.Directory
	directory.ProfileStore
	service.UserRepository
}

type stores struct {
	appointments appointment.Repository
	directory    directoryStore
	audit        service.AuditRepository
	close        func()
}

// openStores builds the repositories for the configured storage driver.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool) (*stores, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("using in-memory storage; nothing is persisted")
		return &stores{
			appointments: memory.NewAppointmentStore(),
			directory:    memory.NewDirectory(),
			audit:        &memory.AuditSink{},
			close:        func() {},
		}, nil
	}

	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := database.Migrate(db, log); err != nil {
			return nil, err
		}
	}
	return &stores{
		appointments: postgres.NewAppointmentRepository(db),
		directory:    postgres.NewDirectoryRepository(db),
		audit:        postgres.NewAuditRepository(db),
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}, nil
}

// buildLimiters returns the global and auth limiters for the configured
// backend and a func releasing what they hold.
func buildLimiters(ctx context.Context, cfg *config.Config, log *zap.Logger) (ratelimit.Limiter, ratelimit.Limiter, func()) {
	rl := cfg.RateLimit
	if rl.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}

		rps := int(rl.RequestsPerSecond)
		if rps < 1 {
			rps = 1
		}
		global := ratelimit.NewRedisLimiter(rdb, rps, time.Second, "medbook:rl:global")
		authLimiter := ratelimit.NewRedisLimiter(rdb, rl.AuthRequestsPerMinute, time.Minute, "medbook:rl:auth")
		return global, authLimiter, func() { _ = rdb.Close() }
	}

	global := ratelimit.NewLocalLimiter(rl.RequestsPerSecond, rl.BurstSize)
	authLimiter := ratelimit.PerMinute(rl.AuthRequestsPerMinute)
	go global.RunSweeper(ctx, time.Minute)
	go authLimiter.RunSweeper(ctx, time.Minute)
	return global, authLimiter, func() {}
}
