// Package config loads medbook settings from the environment.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Log        LogConfig
	Tracing    TracingConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Redis      RedisConfig
	Events     EventsConfig
	Scheduling SchedulingConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

func (a AppConfig) IsProduction() bool { return a.Environment == "production" }

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StorageConfig selects the repository backend. "memory" keeps everything
// in process and is meant for local runs.
type StorageConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host               string
	Port               int
	Name               string
	User               string
	Password           string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
}

// DSN renders a libpq keyword/value string. Sessions run in UTC; calendar
// dates are stored as DATE and never shifted.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// OTLP/HTTP collector as host:port.
	Endpoint   string
	Insecure   bool
	SampleRate float64
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type RateLimitConfig struct {
	// "memory" keeps per-instance token buckets, "redis" shares a fixed window across instances.
	Backend string
	// per client IP
	RequestsPerSecond float64
	BurstSize         int
	// login, refresh and password change
	AuthRequestsPerMinute int
	// Redis limiter failure lets traffic through instead of answering 503.
	FailOpen bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig controls publication of appointment lifecycle events.
// An empty broker list disables publishing.
type EventsConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type SchedulingConfig struct {
	SlotMinutes         int
	DefaultDurationMins int
	CancellationCutoff  time.Duration
	// Calendar dates and wall-clock slot times are interpreted in this location.
	Timezone string
}

func (s SchedulingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Load reads the environment, applying defaults for unset keys. Values that
// are set but malformed are reported rather than silently replaced.
func Load() (*Config, error) {
	env := &envReader{}

	cfg := &Config{
		App: AppConfig{
			Name:        env.str("APP_NAME", "medbook-api"),
			Environment: env.str("APP_ENV", "development"),
			Version:     env.str("APP_VERSION", "0.0.0"),
		},
		Server: ServerConfig{
			Host:            env.str("SERVER_HOST", "0.0.0.0"),
			Port:            env.int("SERVER_PORT", 8080),
			ReadTimeout:     env.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    env.duration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     env.duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: env.duration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Driver: env.str("STORAGE_DRIVER", "postgres"),
		},
		Database: DatabaseConfig{
			Host:               env.str("DB_HOST", "localhost"),
			Port:               env.int("DB_PORT", 5432),
			Name:               env.str("DB_NAME", "medbook"),
			User:               env.str("DB_USER", "medbook"),
			Password:           env.str("DB_PASSWORD", ""),
			SSLMode:            env.str("DB_SSLMODE", "require"),
			MaxOpenConns:       env.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       env.int("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime:    env.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:    env.duration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowQueryThreshold: env.duration("DB_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		},
		JWT: JWTConfig{
			Secret:          env.str("JWT_SECRET", ""),
			AccessTokenTTL:  env.duration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: env.duration("JWT_REFRESH_TTL", 7*24*time.Hour),
			Issuer:          env.str("JWT_ISSUER", "medbook-api"),
		},
		Log: LogConfig{
			Level:      env.str("LOG_LEVEL", "info"),
			Format:     env.str("LOG_FORMAT", "json"),
			OutputPath: env.str("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:     env.bool("TRACING_ENABLED", false),
			ServiceName: env.str("TRACING_SERVICE_NAME", "medbook-api"),
			Endpoint:    env.str("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4318"),
			Insecure:    env.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRate:  env.float("TRACING_SAMPLE_RATE", 0.1),
		},
		CORS: CORSConfig{
			AllowedOrigins: env.list("CORS_ALLOWED_ORIGINS", []string{"https://app.medbook.io"}),
			AllowedMethods: env.list("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "OPTIONS"}),
			AllowedHeaders: env.list("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         env.duration("CORS_MAX_AGE", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Backend:               env.str("RATE_LIMIT_BACKEND", "memory"),
			RequestsPerSecond:     env.float("RATE_LIMIT_RPS", 100),
			BurstSize:             env.int("RATE_LIMIT_BURST", 200),
			AuthRequestsPerMinute: env.int("RATE_LIMIT_AUTH_RPM", 10),
			FailOpen:              env.bool("RATE_LIMIT_FAIL_OPEN", true),
		},
		Redis: RedisConfig{
			Addr:     env.str("REDIS_ADDR", "localhost:6379"),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.int("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Brokers:      env.list("KAFKA_BROKERS", nil),
			Topic:        env.str("KAFKA_APPOINTMENTS_TOPIC", "appointments.lifecycle"),
			WriteTimeout: env.duration("KAFKA_WRITE_TIMEOUT", 5*time.Second),
		},
		Scheduling: SchedulingConfig{
			SlotMinutes:         env.int("SCHEDULING_SLOT_MINUTES", 30),
			DefaultDurationMins: env.int("SCHEDULING_DEFAULT_DURATION", 30),
			CancellationCutoff:  env.duration("SCHEDULING_CANCEL_CUTOFF", 2*time.Hour),
			Timezone:            env.str("SCHEDULING_TIMEZONE", "UTC"),
		},
	}

	errs := append(env.errs, validate(cfg)...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return cfg, nil
}

func validate(cfg *Config) []string {
	var errs []string
	prod := cfg.App.IsProduction()

	switch {
	case cfg.JWT.Secret == "":
		errs = append(errs, "JWT_SECRET is required")
	case prod && len(cfg.JWT.Secret) < 32:
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}

	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Database.Password == "" && cfg.App.Environment != "development" {
			errs = append(errs, "DB_PASSWORD is required in non-development environments")
		}
		if prod && cfg.Database.SSLMode == "disable" {
			errs = append(errs, "DB_SSLMODE=disable is not allowed in production")
		}
	case "memory":
		if prod {
			errs = append(errs, "STORAGE_DRIVER=memory is not allowed in production")
		}
	default:
		errs = append(errs, "STORAGE_DRIVER must be one of: postgres, memory")
	}

	sc := cfg.Scheduling
	if sc.SlotMinutes < 5 || sc.SlotMinutes > 240 {
		errs = append(errs, "SCHEDULING_SLOT_MINUTES must be between 5 and 240")
	}
	if sc.DefaultDurationMins < 15 || sc.DefaultDurationMins > 120 {
		errs = append(errs, "SCHEDULING_DEFAULT_DURATION must be between 15 and 120")
	}
	if sc.CancellationCutoff < 0 {
		errs = append(errs, "SCHEDULING_CANCEL_CUTOFF cannot be negative")
	}
	if _, err := sc.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("SCHEDULING_TIMEZONE is invalid: %v", err))
	}

	switch cfg.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, "RATE_LIMIT_BACKEND must be one of: memory, redis")
	}

	if r := cfg.Tracing.SampleRate; r < 0 || r > 1 {
		errs = append(errs, "TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	return errs
}

// envReader looks keys up once and records values that fail to parse.
type envReader struct {
	errs []string
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) invalid(key, v, kind string) {
	e.errs = append(e.errs, fmt.Sprintf("%s=%q is not a valid %s", key, v, kind))
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "integer")
		return fallback
	}
	return i
}

func (e *envReader) float(key string, fallback float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(key, v, "number")
		return fallback
	}
	return f
}

func (e *envReader) bool(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(key, v, "boolean")
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, "duration")
		return fallback
	}
	return d
}

// list splits a comma-separated value, dropping blanks. A value with no
// items falls back.
func (e *envReader) list(key string, fallback []string) []string {
	v, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
