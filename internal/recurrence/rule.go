package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily advances by whole days.
	FrequencyDaily
	// FrequencyWeekly advances by whole weeks, optionally on selected weekdays.
	FrequencyWeekly
	// FrequencyMonthly lands on a fixed day of the month.
	FrequencyMonthly
	// FrequencyYearly lands on the anchor's month and day every year.
	FrequencyYearly
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyYearly:
		return "yearly"
	default:
		return "unspecified"
	}
}

// ParseFrequency maps the lowercase names used by the API and storage layer.
func ParseFrequency(value string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	case "yearly":
		return FrequencyYearly, nil
	}
	return FrequencyUnspecified, fmt.Errorf("%w: unknown frequency %q", ErrInvalidRule, value)
}

// MonthOverflow selects what happens when the target day does not exist in a month.
type MonthOverflow int

const (
	// MonthOverflowClamp moves the occurrence to the last day of the month.
	MonthOverflowClamp MonthOverflow = iota
	// MonthOverflowSkip drops the month entirely.
	MonthOverflowSkip
)

func (m MonthOverflow) String() string {
	if m == MonthOverflowSkip {
		return "skip"
	}
	return "clamp"
}

// ParseMonthOverflow accepts "clamp" (also the empty string) and "skip".
func ParseMonthOverflow(value string) (MonthOverflow, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "clamp":
		return MonthOverflowClamp, nil
	case "skip":
		return MonthOverflowSkip, nil
	}
	return MonthOverflowClamp, fmt.Errorf("%w: unknown month overflow policy %q", ErrInvalidRule, value)
}

// EndCondition bounds a rule. Exactly one of Never, Until or Count is in effect.
type EndCondition interface {
	isEndCondition()
}

// Never leaves the rule open ended; a horizon must be supplied to Expand.
type Never struct{}

// Until stops after the given calendar date (inclusive).
type Until struct {
	Date Date
}

// Count stops after N emitted occurrences.
type Count struct {
	N int
}

func (Never) isEndCondition() {}
func (Until) isEndCondition() {}
func (Count) isEndCondition() {}

// Rule describes how a booking repeats.
type Rule struct {
	Frequency Frequency
	// Interval is the step between periods. Zero is treated as 1.
	Interval int
	// Weekdays restricts weekly rules to the given days.
	Weekdays []time.Weekday
	// MonthDay pins monthly and yearly rules to a day of month. Zero means the anchor's day.
	MonthDay      int
	End           EndCondition
	Exceptions    []Date
	MonthOverflow MonthOverflow
}

// EndCondition returns the configured end condition, defaulting to Never.
func (r Rule) EndCondition() EndCondition {
	if r.End == nil {
		return Never{}
	}
	return r.End
}

func (r Rule) step() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// Validate reports structural problems with the rule.
func (r Rule) Validate() error {
	var problems []string

	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		problems = append(problems, "frequency is required")
	}
	if r.Interval < 0 {
		problems = append(problems, "interval must be positive")
	}
	for _, day := range r.Weekdays {
		if day < time.Sunday || day > time.Saturday {
			problems = append(problems, fmt.Sprintf("weekday %d out of range", day))
		}
	}
	if len(r.Weekdays) > 0 && r.Frequency != FrequencyWeekly {
		problems = append(problems, "weekdays only apply to weekly rules")
	}
	if r.MonthDay < 0 || r.MonthDay > 31 {
		problems = append(problems, "month day must be between 1 and 31")
	}
	if r.MonthOverflow != MonthOverflowClamp && r.MonthOverflow != MonthOverflowSkip {
		problems = append(problems, "unknown month overflow policy")
	}

	switch end := r.EndCondition().(type) {
	case Never:
	case Until:
		if end.Date.IsZero() {
			problems = append(problems, "until date is required")
		}
	case Count:
		if end.N <= 0 {
			problems = append(problems, "count must be positive")
		}
	default:
		problems = append(problems, "unknown end condition")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(problems, "; "))
}

func (r Rule) weekdaySet(anchor time.Weekday) []time.Weekday {
	if len(r.Weekdays) == 0 {
		return []time.Weekday{anchor}
	}
	days := slices.Clone(r.Weekdays)
	slices.Sort(days)
	return slices.Compact(days)
}

func (r Rule) exceptionSet() map[Date]struct{} {
	if len(r.Exceptions) == 0 {
		return nil
	}
	set := make(map[Date]struct{}, len(r.Exceptions))
	for _, d := range r.Exceptions {
		set[d] = struct{}{}
	}
	return set
}

// Date is a calendar date without a time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: invalid date %q", ErrInvalidRule, value)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.compare(other) < 0
}

// After reports whether d is later than other.
func (d Date) After(other Date) bool {
	return d.compare(other) > 0
}

func (d Date) compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return d.Year - other.Year
	case d.Month != other.Month:
		return int(d.Month) - int(other.Month)
	default:
		return d.Day - other.Day
	}
}

func (d Date) String() string {
	return d.In(time.UTC).Format(time.DateOnly)
}

var (
	// ErrInvalidRule indicates the rule is structurally invalid.
	ErrInvalidRule = errors.New("recurrence: invalid rule")
	// ErrUnboundedRecurrence indicates neither the rule nor the caller bound the expansion.
	ErrUnboundedRecurrence = errors.New("recurrence: expansion requires an end condition or horizon")
	// ErrTooManyOccurrences indicates the expansion exceeded the engine's safety cap.
	ErrTooManyOccurrences = errors.New("recurrence: occurrence limit exceeded")
	// ErrInvalidDuration indicates the base booking duration is invalid.
	ErrInvalidDuration = errors.New("recurrence: booking duration must be positive")
)
