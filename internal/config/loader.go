package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string
	LogLevel  string
	// PolicyFile optionally points at a YAML scheduling policy.
	PolicyFile string
	// MaterializeHorizon is how far ahead recurring instances are stored.
	MaterializeHorizon time.Duration
	// MaterializeSchedule is a standard five field cron expression or descriptor.
	MaterializeSchedule string
	// RateLimit is the sustained request rate per second; zero disables limiting.
	RateLimit       float64
	RateBurst       int
	ReportCacheSize int
	ReportCacheTTL  time.Duration
	ShutdownTimeout time.Duration
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		HTTPPort:            8080,
		SQLiteDSN:           "scheduler.db",
		LogLevel:            "info",
		MaterializeHorizon:  90 * 24 * time.Hour,
		MaterializeSchedule: "@hourly",
		RateLimit:           50,
		RateBurst:           100,
		ReportCacheSize:     256,
		ReportCacheTTL:      30 * time.Second,
		ShutdownTimeout:     10 * time.Second,
	}
}

// Load parses configuration values from the current process environment.
//
// Unset variables keep their defaults. Every malformed variable is reported
// in a single error.
func Load() (Config, error) {
	cfg := Default()
	invalid := make([]string, 0, 2)

	if portValue := env("SCHEDULER_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := env("SCHEDULER_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if level := env("SCHEDULER_LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	cfg.PolicyFile = env("SCHEDULER_POLICY_FILE")

	if daysValue := env("SCHEDULER_MATERIALIZE_HORIZON"); daysValue != "" {
		days, err := strconv.Atoi(daysValue)
		if err != nil || days <= 0 {
			invalid = append(invalid, "SCHEDULER_MATERIALIZE_HORIZON")
		} else {
			cfg.MaterializeHorizon = time.Duration(days) * 24 * time.Hour
		}
	}

	if spec := env("SCHEDULER_MATERIALIZE_SCHEDULE"); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			invalid = append(invalid, "SCHEDULER_MATERIALIZE_SCHEDULE")
		} else {
			cfg.MaterializeSchedule = spec
		}
	}

	if rateValue := env("SCHEDULER_RATE_LIMIT"); rateValue != "" {
		limit, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || limit < 0 {
			invalid = append(invalid, "SCHEDULER_RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}

	if burstValue := env("SCHEDULER_RATE_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "SCHEDULER_RATE_BURST")
		} else {
			cfg.RateBurst = burst
		}
	}

	if sizeValue := env("SCHEDULER_REPORT_CACHE_SIZE"); sizeValue != "" {
		size, err := strconv.Atoi(sizeValue)
		if err != nil || size <= 0 {
			invalid = append(invalid, "SCHEDULER_REPORT_CACHE_SIZE")
		} else {
			cfg.ReportCacheSize = size
		}
	}

	if ttlValue := env("SCHEDULER_REPORT_CACHE_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SCHEDULER_REPORT_CACHE_TTL")
		} else {
			cfg.ReportCacheTTL = ttl
		}
	}

	if timeoutValue := env("SCHEDULER_SHUTDOWN_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "SCHEDULER_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
