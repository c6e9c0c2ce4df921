package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidOptions indicates a malformed scan window, granularity or ratio.
	ErrInvalidOptions = errors.New("availability: invalid options")
	// ErrInvalidMember indicates a member with an unknown timezone or unusable working hours.
	ErrInvalidMember = errors.New("availability: invalid member")
)

// ClockTime is a wall-clock time of day. 24:00 is allowed as an end bound.
type ClockTime struct {
	Hour   int
	Minute int
}

// Clock builds a ClockTime.
func Clock(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute}
}

// ParseClock parses "HH:MM".
func ParseClock(value string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: clock time %q must be HH:MM", ErrInvalidOptions, value)
	}
	hour, errH := strconv.Atoi(hh)
	minute, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil {
		return ClockTime{}, fmt.Errorf("%w: clock time %q must be HH:MM", ErrInvalidOptions, value)
	}
	c := ClockTime{Hour: hour, Minute: minute}
	if !c.valid() {
		return ClockTime{}, fmt.Errorf("%w: clock time %q out of range", ErrInvalidOptions, value)
	}
	return c, nil
}

func (c ClockTime) valid() bool {
	if c.Hour == 24 {
		return c.Minute == 0
	}
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On returns the instant of c on the given calendar day in loc.
func (c ClockTime) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Member is a person whose availability is computed from working hours in
// their own timezone.
type Member struct {
	ID          string
	Timezone    string
	WorkStart   ClockTime
	WorkEnd     ClockTime
	WorkingDays []time.Weekday
}

// Location resolves the member's IANA timezone. Empty means UTC.
func (m Member) Location() (*time.Location, error) {
	if strings.TrimSpace(m.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: member %s timezone %q: %v", ErrInvalidMember, m.ID, m.Timezone, err)
	}
	return loc, nil
}

// Validate checks the timezone and working window. Windows that wrap past
// midnight are rejected.
func (m Member) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidMember)
	}
	if _, err := m.Location(); err != nil {
		return err
	}
	if !m.WorkStart.valid() || !m.WorkEnd.valid() {
		return fmt.Errorf("%w: member %s working hours out of range", ErrInvalidMember, m.ID)
	}
	if m.WorkEnd.Minutes() <= m.WorkStart.Minutes() {
		return fmt.Errorf("%w: member %s working hours %s-%s must end after they start", ErrInvalidMember, m.ID, m.WorkStart, m.WorkEnd)
	}
	for _, d := range m.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: member %s working day %d out of range", ErrInvalidMember, m.ID, d)
		}
	}
	return nil
}

func (m Member) worksOn(day time.Weekday) bool {
	for _, d := range m.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}
