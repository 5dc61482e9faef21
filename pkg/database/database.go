package database

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const pingTimeout = 5 * time.Second

// Connect opens the pool and verifies the server is reachable. Driver errors
// are translated so repositories can match gorm.ErrDuplicatedKey.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt:            true,
		TranslateError:         true,
		SkipDefaultTransaction: true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: cfg.DSN(),
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	for _, schema := range []string{"directory", "scheduling", "audit"} {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}
	// gen_random_uuid and gist equality on uuid columns.
	for _, ext := range []string{"pgcrypto", "btree_gist"} {
		if err := db.Exec(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", ext)).Error; err != nil {
			return fmt.Errorf("creating extension %s: %w", ext, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&schedule.Workplace{},
		&schedule.AvailabilityEntry{},
		&appointment.Appointment{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createConstraints(db); err != nil {
		return fmt.Errorf("creating constraints: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createConstraints(db *gorm.DB) error {
	statements := []struct {
		name  string
		query string
	}{
		{
			name: "uq_appointments_active_slot",
			query: `CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_active_slot
				ON scheduling.appointments (doctor_id, workplace_id, appointment_date, appointment_time)
				WHERE status IN ('pending', 'confirmed')`,
		},
		{
			name: "ex_appointments_no_overlap",
			query: `DO $$ BEGIN
				ALTER TABLE scheduling.appointments
					ADD CONSTRAINT ex_appointments_no_overlap
					EXCLUDE USING gist (
						doctor_id WITH =,
						workplace_id WITH =,
						appointment_date WITH =,
						int4range(start_minute, end_minute) WITH &&
					) WHERE (status IN ('pending', 'confirmed'));
			EXCEPTION WHEN duplicate_object THEN NULL;
			END $$`,
		},
		{
			name: "idx_appointments_relationship",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_relationship
				ON scheduling.appointments (doctor_id, patient_id, status)`,
		},
		{
			name: "idx_appointments_day",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_day
				ON scheduling.appointments (doctor_id, workplace_id, appointment_date, start_minute)
				WHERE status IN ('pending', 'confirmed')`,
		},
		{
			name: "idx_availability_day",
			query: `CREATE INDEX IF NOT EXISTS idx_availability_day
				ON directory.workplace_availability (workplace_id, day_of_week)`,
		},
	}

	for _, s := range statements {
		if err := db.Exec(s.query).Error; err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}
