package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("expected postgres storage, got %q", cfg.Storage.Driver)
	}
	if cfg.Scheduling.SlotMinutes != 30 || cfg.Scheduling.CancellationCutoff != 2*time.Hour {
		t.Fatalf("unexpected scheduling defaults %+v", cfg.Scheduling)
	}
	loc, err := cfg.Scheduling.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC, got %v (%v)", loc, err)
	}
	if got := cfg.Server.Address(); got != "0.0.0.0:8080" {
		t.Fatalf("unexpected address %q", got)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SCHEDULING_SLOT_MINUTES", "15")
	t.Setenv("SCHEDULING_CANCEL_CUTOFF", "90m")
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Scheduling.SlotMinutes != 15 {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Storage, cfg.Scheduling)
	}
	if cfg.Scheduling.CancellationCutoff != 90*time.Minute {
		t.Fatalf("unexpected cutoff %s", cfg.Scheduling.CancellationCutoff)
	}
	if len(cfg.Events.Brokers) != 2 || cfg.Events.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Events.Brokers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET is required"},
		{"short secret in production", map[string]string{"APP_ENV": "production", "JWT_SECRET": "short", "DB_PASSWORD": "x"}, "at least 32 characters"},
		{"memory storage in production", map[string]string{"APP_ENV": "production", "JWT_SECRET": strings.Repeat("s", 32), "DB_PASSWORD": "x", "STORAGE_DRIVER": "memory"}, "STORAGE_DRIVER=memory"},
		{"unknown storage", map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER must be one of"},
		{"slot too small", map[string]string{"JWT_SECRET": "s", "SCHEDULING_SLOT_MINUTES": "1"}, "SCHEDULING_SLOT_MINUTES"},
		{"negative cutoff", map[string]string{"JWT_SECRET": "s", "SCHEDULING_CANCEL_CUTOFF": "-1h"}, "cannot be negative"},
		{"bad timezone", map[string]string{"JWT_SECRET": "s", "SCHEDULING_TIMEZONE": "Not/AZone"}, "SCHEDULING_TIMEZONE"},
		{"malformed port", map[string]string{"JWT_SECRET": "s", "SERVER_PORT": "eighty"}, `SERVER_PORT="eighty" is not a valid integer`},
		{"malformed duration", map[string]string{"JWT_SECRET": "s", "JWT_ACCESS_TTL": "soon"}, "not a valid duration"},
		{"sample rate above one", map[string]string{"JWT_SECRET": "s", "TRACING_SAMPLE_RATE": "1.5"}, "TRACING_SAMPLE_RATE"},
		{"unknown rate limit backend", map[string]string{"JWT_SECRET": "s", "RATE_LIMIT_BACKEND": "memcached"}, "RATE_LIMIT_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected an error containing %q, got %v", tt.want, err)
			}
		})
	}
}
