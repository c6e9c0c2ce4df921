package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"SCHEDULER_HTTP_PORT",
	"SCHEDULER_SQLITE_DSN",
	"SCHEDULER_LOG_LEVEL",
	"SCHEDULER_POLICY_FILE",
	"SCHEDULER_MATERIALIZE_HORIZON",
	"SCHEDULER_MATERIALIZE_SCHEDULE",
	"SCHEDULER_RATE_LIMIT",
	"SCHEDULER_RATE_BURST",
	"SCHEDULER_REPORT_CACHE_SIZE",
	"SCHEDULER_REPORT_CACHE_TTL",
	"SCHEDULER_SHUTDOWN_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		// Setenv registers the restore; Unsetenv then removes the value.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "scheduler.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.MaterializeHorizon != 90*24*time.Hour {
			t.Fatalf("expected 90 day materialize horizon, got %s", cfg.MaterializeHorizon)
		}
		if cfg.MaterializeSchedule != "@hourly" {
			t.Fatalf("unexpected default schedule: %q", cfg.MaterializeSchedule)
		}
		if cfg.PolicyFile != "" {
			t.Fatalf("expected no policy file, got %q", cfg.PolicyFile)
		}
		if cfg.Addr() != ":8080" {
			t.Fatalf("unexpected listen address: %q", cfg.Addr())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_HTTP_PORT", "9090")
		t.Setenv("SCHEDULER_SQLITE_DSN", "/tmp/scheduler.db")
		t.Setenv("SCHEDULER_LOG_LEVEL", "DEBUG")
		t.Setenv("SCHEDULER_POLICY_FILE", "/etc/scheduler/policy.yaml")
		t.Setenv("SCHEDULER_MATERIALIZE_HORIZON", "30")
		t.Setenv("SCHEDULER_MATERIALIZE_SCHEDULE", "*/15 * * * *")
		t.Setenv("SCHEDULER_RATE_LIMIT", "0")
		t.Setenv("SCHEDULER_REPORT_CACHE_TTL", "1m")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "/tmp/scheduler.db" {
			t.Fatalf("unexpected DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.LogLevel != "debug" {
			t.Fatalf("expected lowercased log level, got %q", cfg.LogLevel)
		}
		if cfg.PolicyFile != "/etc/scheduler/policy.yaml" {
			t.Fatalf("unexpected policy file: %q", cfg.PolicyFile)
		}
		if cfg.MaterializeHorizon != 30*24*time.Hour {
			t.Fatalf("expected 30 day horizon, got %s", cfg.MaterializeHorizon)
		}
		if cfg.MaterializeSchedule != "*/15 * * * *" {
			t.Fatalf("unexpected schedule: %q", cfg.MaterializeSchedule)
		}
		if cfg.RateLimit != 0 {
			t.Fatalf("expected rate limiting disabled, got %v", cfg.RateLimit)
		}
		if cfg.ReportCacheTTL != time.Minute {
			t.Fatalf("expected cache TTL 1m, got %s", cfg.ReportCacheTTL)
		}
	})

	t.Run("reports every invalid variable", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SCHEDULER_HTTP_PORT", "eighty")
		t.Setenv("SCHEDULER_MATERIALIZE_SCHEDULE", "every now and then")
		t.Setenv("SCHEDULER_MATERIALIZE_HORIZON", "-1")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		for _, key := range []string{"SCHEDULER_HTTP_PORT", "SCHEDULER_MATERIALIZE_HORIZON", "SCHEDULER_MATERIALIZE_SCHEDULE"} {
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("expected %s in error, got %q", key, err.Error())
			}
		}
	})
}
