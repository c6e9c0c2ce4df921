package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/crm-scheduler/internal/recurrence"
)

// ErrInvalidInterval indicates an interval whose start is not before its end.
var ErrInvalidInterval = errors.New("scheduler: interval start must be before end")

// TimeInterval is a half-open range [Start, End).
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// NewInterval builds a UTC interval and validates it.
func NewInterval(start, end time.Time) (TimeInterval, error) {
	iv := TimeInterval{Start: start.UTC(), End: end.UTC()}
	if err := iv.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return iv, nil
}

// Validate reports ErrInvalidInterval for empty, inverted or unset intervals.
func (iv TimeInterval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidInterval)
	}
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidInterval, iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

// Duration returns End - Start.
func (iv TimeInterval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the intervals share any positive duration.
func (iv TimeInterval) Overlaps(other TimeInterval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv TimeInterval) Contains(other TimeInterval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// UTC returns the interval with both bounds converted to UTC.
func (iv TimeInterval) UTC() TimeInterval {
	return TimeInterval{Start: iv.Start.UTC(), End: iv.End.UTC()}
}

// Status is the lifecycle state of a booking.
type Status string

const (
	// StatusConfirmed bookings block time. It is the default.
	StatusConfirmed Status = "confirmed"
	// StatusTentative bookings also block time and are reported like confirmed ones.
	StatusTentative Status = "tentative"
	// StatusCancelled bookings are ignored by conflict and availability checks.
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the lowercase status names; empty means confirmed.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case "", StatusConfirmed:
		return StatusConfirmed, nil
	case StatusTentative, StatusCancelled:
		return Status(value), nil
	}
	return "", fmt.Errorf("scheduler: unknown booking status %q", value)
}

// Booking is a scheduled commitment considered by conflict and availability checks.
type Booking struct {
	ID       string
	Title    string
	Interval TimeInterval
	// AllDay bookings occupy whole UTC days from the start date through the end date.
	AllDay     bool
	Recurrence *recurrence.Rule
	Attendees  []string
	RoomID     string
	Status     Status
	// Sequence is the position of an expanded instance within its series.
	Sequence int
}

// Active reports whether the booking takes part in conflict reasoning.
func (b Booking) Active() bool {
	return b.Status != StatusCancelled
}

// Span returns the interval the booking actually occupies.
func (b Booking) Span() TimeInterval {
	if !b.AllDay {
		return b.Interval.UTC()
	}
	start := b.Interval.Start.UTC()
	end := b.Interval.End.UTC()
	if end.Before(start) {
		end = start
	}
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	return TimeInterval{
		Start: time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC),
		End:   time.Date(ey, em, ed+1, 0, 0, 0, 0, time.UTC),
	}
}

// Validate checks the booking's interval and recurrence rule.
func (b Booking) Validate() error {
	if b.AllDay {
		if b.Interval.Start.IsZero() || b.Interval.End.IsZero() || b.Interval.End.Before(b.Interval.Start) {
			return fmt.Errorf("%w: all-day booking needs a start date on or before its end date", ErrInvalidInterval)
		}
	} else if err := b.Interval.Validate(); err != nil {
		return err
	}
	if b.Recurrence != nil {
		return b.Recurrence.Validate()
	}
	return nil
}

// Occurrences expands a recurring booking into one booking per instance up to
// horizon. Non-recurring bookings are returned as-is when they start before
// horizon (or always when horizon is zero).
func (b Booking) Occurrences(horizon time.Time) ([]Booking, error) {
	return b.OccurrencesBetween(time.Time{}, horizon)
}

// OccurrencesBetween is Occurrences limited to instances that end after from.
// Instances before from do not count against the expansion cap, so a long
// running series can still be read for a recent window. A zero from keeps
// every instance.
func (b Booking) OccurrencesBetween(from, horizon time.Time) ([]Booking, error) {
	span := b.Span()
	if b.Recurrence == nil {
		if !horizon.IsZero() && !span.Start.Before(horizon) {
			return nil, nil
		}
		if !from.IsZero() && !span.End.After(from) {
			return nil, nil
		}
		return []Booking{b}, nil
	}

	occurrences, err := recurrence.ExpandIntervalsFrom(*b.Recurrence, span.Start, span.End, from, horizon)
	if err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(occurrences))
	for _, occ := range occurrences {
		instance := b
		instance.Recurrence = nil
		instance.AllDay = false
		instance.Interval = TimeInterval{Start: occ.Start, End: occ.End}
		instance.Sequence = occ.Index
		out = append(out, instance)
	}
	return out, nil
}
