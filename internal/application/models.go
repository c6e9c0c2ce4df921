package application

import (
	"time"

	"github.com/example/crm-scheduler/internal/availability"
	"github.com/example/crm-scheduler/internal/scheduler"
)

// Recurrence captures how a booking repeats in its stored text form.
type Recurrence struct {
	// RRule is an RFC 5545 RRULE value such as "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=10".
	RRule string
	// Exceptions are skipped dates as YYYY-MM-DD.
	Exceptions []string
	// MonthOverflow is "clamp" (default) or "skip".
	MonthOverflow string
}

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	Title      string
	Start      time.Time
	End        time.Time
	AllDay     bool
	Status     string
	RoomID     *string
	Attendees  []string
	Recurrence *Recurrence
}

// Booking represents a persisted calendar entry.
type Booking struct {
	ID         string
	Title      string
	Start      time.Time
	End        time.Time
	AllDay     bool
	Status     string
	RoomID     *string
	Attendees  []string
	Recurrence *Recurrence
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Occurrence is one concrete instance of a booking.
type Occurrence struct {
	BookingID string
	Index     int
	Start     time.Time
	End       time.Time
}

// CreateBookingParams wraps the data required to create a booking.
type CreateBookingParams struct {
	Input BookingInput
	// Force stores the booking even when it conflicts.
	Force bool
}

// UpdateBookingParams wraps the data required to update an existing booking.
type UpdateBookingParams struct {
	BookingID string
	Input     BookingInput
	Force     bool
}

// BookingResult is a stored booking together with the conflicts it was saved over.
type BookingResult struct {
	Booking Booking
	Report  scheduler.ConflictReport
}

// ListBookingsParams wraps booking listing filters.
type ListBookingsParams struct {
	AttendeeIDs      []string
	RoomID           string
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
}

// CheckConflictsParams describes a candidate booking checked without saving.
type CheckConflictsParams struct {
	// BookingID excludes the stored version of the booking being edited.
	BookingID string
	Input     BookingInput
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	Name      string
	Location  string
	Capacity  int
	Amenities []string
}

// Room represents a catalog entry for a physical meeting room.
type Room struct {
	ID        string
	Name      string
	Location  string
	Capacity  int
	Amenities []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	RoomID string
	Input  RoomInput
}

// SearchRoomsParams describes a room feasibility query.
type SearchRoomsParams struct {
	Start     time.Time
	End       time.Time
	Capacity  int
	Amenities []string
}

// RoomSearchResult lists the feasible rooms and why the others were excluded.
type RoomSearchResult struct {
	Feasible []Room
	Excluded []RoomExclusion
}

// RoomExclusion explains why a room cannot host the requested booking.
type RoomExclusion struct {
	Room             Room
	Reasons          []string
	BlockingIDs      []string
	MissingAmenities []string
}

// MemberInput captures caller provided member fields.
type MemberInput struct {
	DisplayName string
	Email       string
	Timezone    string
	WorkStart   string
	WorkEnd     string
	WorkingDays []time.Weekday
}

// Member represents a roster entry.
type Member struct {
	ID          string
	DisplayName string
	Email       string
	Timezone    string
	WorkStart   string
	WorkEnd     string
	WorkingDays []time.Weekday
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpdateMemberParams wraps the data required to update a member.
type UpdateMemberParams struct {
	MemberID string
	Input    MemberInput
}

// FindTimeParams describes a "find a time" request.
type FindTimeParams struct {
	MemberIDs []string
	// Date is the scan day as YYYY-MM-DD in Timezone.
	Date     string
	Timezone string
	// DayStart and DayEnd are "HH:MM"; empty values span the whole day.
	DayStart string
	DayEnd   string
	Duration time.Duration
	// Zero values fall back to the service policy.
	Granularity time.Duration
	QuorumRatio float64
	MaxResults  int
}

// FindTimeResult holds the availability grid and the ranked windows.
type FindTimeResult struct {
	Grid            availability.Grid
	Recommendations []availability.RecommendedSlot
}

// Policy carries the tunable scheduling constants.
type Policy struct {
	Granularity time.Duration
	GoodRatio   float64
	QuorumRatio float64
	MaxResults  int
	Thresholds  scheduler.Thresholds
	// SeriesHorizon bounds expansion of open-ended series during conflict checks.
	SeriesHorizon time.Duration
	// MaterializeHorizon is how far ahead recurring instances are stored.
	MaterializeHorizon time.Duration
}

// DefaultPolicy returns the stock scheduling constants.
func DefaultPolicy() Policy {
	return Policy{
		Granularity:        availability.DefaultGranularity,
		GoodRatio:          availability.DefaultGoodRatio,
		QuorumRatio:        availability.DefaultQuorumRatio,
		MaxResults:         availability.DefaultMaxResults,
		Thresholds:         scheduler.DefaultThresholds,
		SeriesHorizon:      365 * 24 * time.Hour,
		MaterializeHorizon: 90 * 24 * time.Hour,
	}
}

func (p Policy) orDefault() Policy {
	def := DefaultPolicy()
	if p.Granularity <= 0 {
		p.Granularity = def.Granularity
	}
	if p.GoodRatio <= 0 {
		p.GoodRatio = def.GoodRatio
	}
	if p.QuorumRatio <= 0 {
		p.QuorumRatio = def.QuorumRatio
	}
	if p.MaxResults <= 0 {
		p.MaxResults = def.MaxResults
	}
	if p.Thresholds == (scheduler.Thresholds{}) {
		p.Thresholds = def.Thresholds
	}
	if p.SeriesHorizon <= 0 {
		p.SeriesHorizon = def.SeriesHorizon
	}
	if p.MaterializeHorizon <= 0 {
		p.MaterializeHorizon = def.MaterializeHorizon
	}
	return p
}
