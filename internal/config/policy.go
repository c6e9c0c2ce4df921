package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/crm-scheduler/internal/scheduler"
)

// SeverityPolicy holds the overlap durations at which conflict severity escalates.
type SeverityPolicy struct {
	// High marks overlaps longer than this as high severity.
	High time.Duration `yaml:"high" json:"high"`
	// Medium marks overlaps of at least this as medium severity.
	Medium time.Duration `yaml:"medium" json:"medium"`
}

// Policy is the tunable scheduling policy read from SCHEDULER_POLICY_FILE.
//
// Example:
//
//	granularity: 15m
//	good_ratio: 0.8
//	quorum_ratio: 0.5
//	max_results: 10
//	severity:
//	  high: 45m
//	  medium: 10m
//	series_horizon: 8760h
type Policy struct {
	// Granularity is the availability grid slot width.
	Granularity time.Duration `yaml:"granularity" json:"granularity"`
	// GoodRatio marks a slot best for meeting when this share of members is free.
	GoodRatio float64 `yaml:"good_ratio" json:"good_ratio"`
	// QuorumRatio is the share of members a recommended window must keep free.
	QuorumRatio float64 `yaml:"quorum_ratio" json:"quorum_ratio"`
	// MaxResults caps the number of recommended windows.
	MaxResults int            `yaml:"max_results" json:"max_results"`
	Severity   SeverityPolicy `yaml:"severity" json:"severity"`
	// SeriesHorizon bounds expansion of open-ended series during conflict checks.
	SeriesHorizon time.Duration `yaml:"series_horizon" json:"series_horizon"`
}

// DefaultPolicy returns the built-in scheduling policy.
func DefaultPolicy() *Policy {
	return &Policy{
		Granularity: 30 * time.Minute,
		GoodRatio:   0.8,
		QuorumRatio: 0.6,
		MaxResults:  5,
		Severity: SeverityPolicy{
			High:   scheduler.DefaultThresholds.High,
			Medium: scheduler.DefaultThresholds.Medium,
		},
		SeriesHorizon: 365 * 24 * time.Hour,
	}
}

// Normalize fills in missing/zero values with defaults so that a partial
// policy file only overrides what it names.
func (p *Policy) Normalize() {
	def := DefaultPolicy()
	if p.Granularity == 0 {
		p.Granularity = def.Granularity
	}
	if p.GoodRatio == 0 {
		p.GoodRatio = def.GoodRatio
	}
	if p.QuorumRatio == 0 {
		p.QuorumRatio = def.QuorumRatio
	}
	if p.MaxResults == 0 {
		p.MaxResults = def.MaxResults
	}
	if p.Severity == (SeverityPolicy{}) {
		p.Severity = def.Severity
	}
	if p.SeriesHorizon == 0 {
		p.SeriesHorizon = def.SeriesHorizon
	}
}

// Validate rejects values the scheduling core cannot work with.
func (p *Policy) Validate() error {
	var errs []error
	if p.Granularity <= 0 || p.Granularity > 24*time.Hour {
		errs = append(errs, fmt.Errorf("granularity must be within (0, 24h], got %s", p.Granularity))
	}
	if p.GoodRatio <= 0 || p.GoodRatio > 1 {
		errs = append(errs, fmt.Errorf("good_ratio must be within (0, 1], got %v", p.GoodRatio))
	}
	if p.QuorumRatio <= 0 || p.QuorumRatio > 1 {
		errs = append(errs, fmt.Errorf("quorum_ratio must be within (0, 1], got %v", p.QuorumRatio))
	}
	if p.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", p.MaxResults))
	}
	if err := p.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("severity: %w", err))
	}
	if p.SeriesHorizon <= 0 {
		errs = append(errs, fmt.Errorf("series_horizon must be positive, got %s", p.SeriesHorizon))
	}
	return errors.Join(errs...)
}

// Thresholds converts the severity section for conflict detection.
func (p *Policy) Thresholds() scheduler.Thresholds {
	return scheduler.Thresholds{High: p.Severity.High, Medium: p.Severity.Medium}
}

// LoadPolicy reads the YAML policy at path. An empty path yields the
// defaults. The result is normalized and validated.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	policy.Normalize()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return &policy, nil
}
