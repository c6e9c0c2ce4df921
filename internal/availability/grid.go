package availability

import (
	"fmt"
	"math"
	"time"

	"github.com/example/crm-scheduler/internal/recurrence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

const (
	// DefaultGranularity is the slot width used when none is given.
	DefaultGranularity = 30 * time.Minute
	// DefaultGoodRatio marks a slot as good for meeting when this share of members is free.
	DefaultGoodRatio = 0.8
)

// Reason explains why a member is unavailable in a slot.
type Reason string

const (
	// ReasonNone is reported for available members.
	ReasonNone Reason = ""
	// ReasonNonWorkingDay means the slot falls on a day the member does not work.
	ReasonNonWorkingDay Reason = "non_working_day"
	// ReasonOutsideHours means the slot is not inside the member's working hours.
	ReasonOutsideHours Reason = "outside_working_hours"
	// ReasonHasBooking means an active booking overlaps the slot.
	ReasonHasBooking Reason = "has_booking"
)

// MemberStatus is one member's availability in one slot.
type MemberStatus struct {
	MemberID  string
	Available bool
	Reason    Reason
}

// Slot is a fixed-width, half-open time bucket.
type Slot struct {
	Interval       scheduler.TimeInterval
	Members        []MemberStatus
	AvailableCount int
	TotalCount     int
	BestForMeeting bool
}

// UnavailableCount returns TotalCount - AvailableCount.
func (s Slot) UnavailableCount() int {
	return s.TotalCount - s.AvailableCount
}

// Grid is the availability table for one scan day.
type Grid struct {
	Date        recurrence.Date
	Location    *time.Location
	Granularity time.Duration
	TotalCount  int
	Slots       []Slot
}

// GridRequest describes a "find a time" scan.
type GridRequest struct {
	Members []Member
	// Date is the scan day in Location.
	Date     recurrence.Date
	Location *time.Location
	DayStart ClockTime
	DayEnd   ClockTime
	// Granularity defaults to DefaultGranularity.
	Granularity time.Duration
	// GoodRatio defaults to DefaultGoodRatio.
	GoodRatio float64
	// Bookings are keyed by member id. Cancelled bookings are ignored and
	// recurring ones are expanded across the scan window.
	Bookings map[string][]scheduler.Booking
}

func (r GridRequest) normalized() (GridRequest, error) {
	if r.Location == nil {
		r.Location = time.UTC
	}
	if r.Granularity == 0 {
		r.Granularity = DefaultGranularity
	}
	if r.GoodRatio == 0 {
		r.GoodRatio = DefaultGoodRatio
	}

	switch {
	case r.Date.IsZero():
		return r, fmt.Errorf("%w: scan date is required", ErrInvalidOptions)
	case r.Granularity < time.Minute:
		return r, fmt.Errorf("%w: granularity must be at least one minute", ErrInvalidOptions)
	case !validRatio(r.GoodRatio):
		return r, fmt.Errorf("%w: good slot ratio %v must be in (0, 1]", ErrInvalidOptions, r.GoodRatio)
	case !r.DayStart.valid() || !r.DayEnd.valid():
		return r, fmt.Errorf("%w: day window out of range", ErrInvalidOptions)
	case r.DayEnd.Minutes() <= r.DayStart.Minutes():
		return r, fmt.Errorf("%w: day window %s-%s must end after it starts", ErrInvalidOptions, r.DayStart, r.DayEnd)
	}
	return r, nil
}

// BuildGrid computes per-slot, per-member availability. Only whole slots that
// fit inside the day window are produced. The call fails without a partial
// grid if any member is invalid.
func BuildGrid(req GridRequest) (Grid, error) {
	req, err := req.normalized()
	if err != nil {
		return Grid{}, err
	}

	windowStart := req.DayStart.On(req.Date.Year, req.Date.Month, req.Date.Day, req.Location)
	windowEnd := req.DayEnd.On(req.Date.Year, req.Date.Month, req.Date.Day, req.Location)

	calendars := make([]memberCalendar, 0, len(req.Members))
	for _, m := range req.Members {
		cal, err := newMemberCalendar(m, req.Bookings[m.ID], windowStart, windowEnd)
		if err != nil {
			return Grid{}, err
		}
		calendars = append(calendars, cal)
	}

	total := len(calendars)
	good := quorum(req.GoodRatio, total)
	grid := Grid{
		Date:        req.Date,
		Location:    req.Location,
		Granularity: req.Granularity,
		TotalCount:  total,
		Slots:       make([]Slot, 0),
	}

	for start := windowStart; !start.Add(req.Granularity).After(windowEnd); start = start.Add(req.Granularity) {
		slot := Slot{
			Interval:   scheduler.TimeInterval{Start: start.UTC(), End: start.Add(req.Granularity).UTC()},
			Members:    make([]MemberStatus, 0, total),
			TotalCount: total,
		}
		for _, cal := range calendars {
			status := cal.status(slot.Interval)
			if status.Available {
				slot.AvailableCount++
			}
			slot.Members = append(slot.Members, status)
		}
		slot.BestForMeeting = total > 0 && slot.AvailableCount >= good
		grid.Slots = append(grid.Slots, slot)
	}

	return grid, nil
}

type memberCalendar struct {
	member   Member
	location *time.Location
	busy     []scheduler.TimeInterval
}

func newMemberCalendar(m Member, bookings []scheduler.Booking, from, horizon time.Time) (memberCalendar, error) {
	if err := m.Validate(); err != nil {
		return memberCalendar{}, err
	}
	loc, err := m.Location()
	if err != nil {
		return memberCalendar{}, err
	}

	cal := memberCalendar{member: m, location: loc}
	for _, b := range bookings {
		if !b.Active() {
			continue
		}
		instances, err := b.OccurrencesBetween(from, horizon)
		if err != nil {
			return memberCalendar{}, fmt.Errorf("member %s booking %s: %w", m.ID, b.ID, err)
		}
		for _, instance := range instances {
			cal.busy = append(cal.busy, instance.Span())
		}
	}
	return cal, nil
}

// status applies the reason precedence: non-working day, then outside working
// hours, then an overlapping booking.
func (c memberCalendar) status(slot scheduler.TimeInterval) MemberStatus {
	local := slot.Start.In(c.location)
	status := MemberStatus{MemberID: c.member.ID}

	if !c.member.worksOn(local.Weekday()) {
		status.Reason = ReasonNonWorkingDay
		return status
	}

	y, m, d := local.Date()
	workStart := c.member.WorkStart.On(y, m, d, c.location)
	workEnd := c.member.WorkEnd.On(y, m, d, c.location)
	if slot.Start.Before(workStart) || slot.End.After(workEnd) {
		status.Reason = ReasonOutsideHours
		return status
	}

	for _, busy := range c.busy {
		if busy.Overlaps(slot) {
			status.Reason = ReasonHasBooking
			return status
		}
	}

	status.Available = true
	return status
}

func validRatio(r float64) bool {
	return r > 0 && r <= 1 && !math.IsNaN(r)
}

// quorum returns ceil(ratio*total), tolerating float error at exact multiples.
func quorum(ratio float64, total int) int {
	return int(math.Ceil(ratio*float64(total) - 1e-9))
}
