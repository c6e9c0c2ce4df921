package persistence

import "time"

// Member is a roster entry whose working hours feed availability scans.
type Member struct {
	ID          string
	DisplayName string
	Email       string
	Timezone    string
	// WorkStart and WorkEnd are "HH:MM" in the member's timezone.
	WorkStart   string
	WorkEnd     string
	WorkingDays []time.Weekday
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Room represents a meeting room catalog entry.
type Room struct {
	ID        string
	Name      string
	Location  string
	Capacity  int
	Amenities []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecurrenceRule is the stored form of a booking's repetition.
type RecurrenceRule struct {
	// RRule is RFC 5545 RRULE text without the "RRULE:" prefix.
	RRule string
	// Exceptions are excluded dates as YYYY-MM-DD.
	Exceptions    []string
	MonthOverflow string
}

// Booking represents a calendar entry stored in persistence.
type Booking struct {
	ID         string
	Title      string
	Start      time.Time
	End        time.Time
	AllDay     bool
	Status     string
	RoomID     *string
	Attendees  []string
	Recurrence *RecurrenceRule
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Occurrence is one materialized instance of a recurring booking.
type Occurrence struct {
	BookingID string
	Index     int
	Start     time.Time
	End       time.Time
}
