package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// Severity ranks how disruptive an overlap is.
type Severity int

const (
	// SeverityNone means the intervals do not overlap.
	SeverityNone Severity = iota
	// SeverityLow is an overlap shorter than the medium threshold.
	SeverityLow
	// SeverityMedium is an overlap from the medium threshold up to the high threshold.
	SeverityMedium
	// SeverityHigh is an overlap above the high threshold, or full containment.
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

// Thresholds are the overlap durations at which severity escalates. An
// overlap longer than High is high; one of at least Medium is medium.
type Thresholds struct {
	High   time.Duration
	Medium time.Duration
}

// DefaultThresholds are 30 and 15 minutes.
var DefaultThresholds = Thresholds{High: 30 * time.Minute, Medium: 15 * time.Minute}

// ErrInvalidThresholds indicates severity thresholds that cannot be ordered.
var ErrInvalidThresholds = errors.New("scheduler: invalid severity thresholds")

// Validate rejects non-positive or inverted thresholds.
func (t Thresholds) Validate() error {
	if t.High <= 0 || t.Medium <= 0 {
		return fmt.Errorf("%w: thresholds must be positive", ErrInvalidThresholds)
	}
	if t.Medium >= t.High {
		return fmt.Errorf("%w: medium (%s) must be below high (%s)", ErrInvalidThresholds, t.Medium, t.High)
	}
	return nil
}

func (t Thresholds) orDefault() Thresholds {
	if t == (Thresholds{}) {
		return DefaultThresholds
	}
	return t
}

// Overlap is the shared portion of two intervals and its severity.
type Overlap struct {
	Duration time.Duration
	Severity Severity
}

// Minutes returns the overlap length in minutes.
func (o Overlap) Minutes() float64 {
	return o.Duration.Minutes()
}

// Classify measures the overlap of two intervals with DefaultThresholds.
func Classify(candidate, other TimeInterval) Overlap {
	return ClassifyWith(candidate, other, DefaultThresholds)
}

// ClassifyWith measures the overlap of two intervals. Touching intervals do
// not overlap. Containment in either direction is always high severity.
func ClassifyWith(candidate, other TimeInterval, thresholds Thresholds) Overlap {
	if !candidate.Overlaps(other) {
		return Overlap{}
	}
	thresholds = thresholds.orDefault()

	start := candidate.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := candidate.End
	if other.End.Before(end) {
		end = other.End
	}
	overlap := Overlap{Duration: end.Sub(start)}

	switch {
	case candidate.Contains(other) || other.Contains(candidate):
		overlap.Severity = SeverityHigh
	case overlap.Duration > thresholds.High:
		overlap.Severity = SeverityHigh
	case overlap.Duration >= thresholds.Medium:
		overlap.Severity = SeverityMedium
	default:
		overlap.Severity = SeverityLow
	}
	return overlap
}
