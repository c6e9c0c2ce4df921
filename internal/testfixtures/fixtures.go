package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/crm-scheduler/internal/application"
	"github.com/example/crm-scheduler/internal/persistence"
)

var (
	memberCounter  uint64
	roomCounter    uint64
	bookingCounter uint64
)

// referenceTime is a Monday morning.
var referenceTime = time.Date(2024, time.April, 1, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns hour:minute UTC on the day offset days after ReferenceTime.
func At(dayOffset, hour, minute int) time.Time {
	return time.Date(referenceTime.Year(), referenceTime.Month(), referenceTime.Day()+dayOffset, hour, minute, 0, 0, time.UTC)
}

// ---------------------------- Member fixtures ----------------------------

// MemberFixture is a deterministic roster entry working 09:00-17:00 on weekdays.
type MemberFixture struct {
	ID          string
	DisplayName string
	Email       string
	Timezone    string
	WorkStart   string
	WorkEnd     string
	WorkingDays []time.Weekday
}

// MemberOption configures the generated member fixture.
type MemberOption func(*MemberFixture)

// NewMemberFixture returns a deterministic member fixture with optional overrides.
func NewMemberFixture(opts ...MemberOption) MemberFixture {
	idx := atomic.AddUint64(&memberCounter, 1)
	id := fmt.Sprintf("member-%03d", idx)
	fixture := MemberFixture{
		ID:          id,
		DisplayName: fmt.Sprintf("Member %03d", idx),
		Email:       id + "@example.com",
		Timezone:    "UTC",
		WorkStart:   "09:00",
		WorkEnd:     "17:00",
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithMemberID overrides the generated member ID.
func WithMemberID(id string) MemberOption {
	return func(f *MemberFixture) { f.ID = id }
}

// WithMemberName overrides the display name.
func WithMemberName(name string) MemberOption {
	return func(f *MemberFixture) { f.DisplayName = name }
}

// WithMemberTimezone overrides the IANA timezone.
func WithMemberTimezone(tz string) MemberOption {
	return func(f *MemberFixture) { f.Timezone = tz }
}

// WithMemberHours overrides the working window.
func WithMemberHours(start, end string) MemberOption {
	return func(f *MemberFixture) {
		f.WorkStart = start
		f.WorkEnd = end
	}
}

// WithMemberDays overrides the working days.
func WithMemberDays(days ...time.Weekday) MemberOption {
	return func(f *MemberFixture) { f.WorkingDays = append([]time.Weekday(nil), days...) }
}

// Input converts the fixture into service input.
func (f MemberFixture) Input() application.MemberInput {
	return application.MemberInput{
		DisplayName: f.DisplayName,
		Email:       f.Email,
		Timezone:    f.Timezone,
		WorkStart:   f.WorkStart,
		WorkEnd:     f.WorkEnd,
		WorkingDays: append([]time.Weekday(nil), f.WorkingDays...),
	}
}

// Persistence converts the fixture into a stored row.
func (f MemberFixture) Persistence() persistence.Member {
	return persistence.Member{
		ID:          f.ID,
		DisplayName: f.DisplayName,
		Email:       f.Email,
		Timezone:    f.Timezone,
		WorkStart:   f.WorkStart,
		WorkEnd:     f.WorkEnd,
		WorkingDays: append([]time.Weekday(nil), f.WorkingDays...),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture is a deterministic meeting room.
type RoomFixture struct {
	ID        string
	Name      string
	Location  string
	Capacity  int
	Amenities []string
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a deterministic six seat room with a screen.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:        fmt.Sprintf("room-%03d", idx),
		Name:      fmt.Sprintf("Room %03d", idx),
		Location:  "HQ",
		Capacity:  6,
		Amenities: []string{"screen"},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) { f.ID = id }
}

// WithRoomName overrides the room name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) { f.Name = name }
}

// WithRoomCapacity overrides the seat count.
func WithRoomCapacity(capacity int) RoomOption {
	return func(f *RoomFixture) { f.Capacity = capacity }
}

// WithRoomAmenities overrides the amenity list.
func WithRoomAmenities(amenities ...string) RoomOption {
	return func(f *RoomFixture) { f.Amenities = append([]string(nil), amenities...) }
}

// Input converts the fixture into service input.
func (f RoomFixture) Input() application.RoomInput {
	return application.RoomInput{
		Name:      f.Name,
		Location:  f.Location,
		Capacity:  f.Capacity,
		Amenities: append([]string(nil), f.Amenities...),
	}
}

// Persistence converts the fixture into a stored row.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:        f.ID,
		Name:      f.Name,
		Location:  f.Location,
		Capacity:  f.Capacity,
		Amenities: append([]string(nil), f.Amenities...),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// ---------------------------- Booking fixtures ----------------------------

// BookingFixture is a deterministic one hour confirmed booking on the
// reference Monday at 10:00 UTC.
type BookingFixture struct {
	ID         string
	Title      string
	Start      time.Time
	End        time.Time
	AllDay     bool
	Status     string
	RoomID     *string
	Attendees  []string
	Recurrence *application.Recurrence
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a deterministic booking fixture with optional overrides.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	fixture := BookingFixture{
		ID:     fmt.Sprintf("booking-%03d", idx),
		Title:  fmt.Sprintf("Booking %03d", idx),
		Start:  At(0, 10, 0),
		End:    At(0, 11, 0),
		Status: "confirmed",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated booking ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) { f.ID = id }
}

// WithBookingTitle overrides the title.
func WithBookingTitle(title string) BookingOption {
	return func(f *BookingFixture) { f.Title = title }
}

// WithBookingWindow overrides the start and end.
func WithBookingWindow(start, end time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.Start = start
		f.End = end
	}
}

// WithBookingAllDay marks the booking as all-day.
func WithBookingAllDay() BookingOption {
	return func(f *BookingFixture) { f.AllDay = true }
}

// WithBookingStatus overrides the status.
func WithBookingStatus(status string) BookingOption {
	return func(f *BookingFixture) { f.Status = status }
}

// WithBookingRoom assigns a room.
func WithBookingRoom(roomID string) BookingOption {
	return func(f *BookingFixture) { f.RoomID = &roomID }
}

// WithBookingAttendees overrides the attendee list.
func WithBookingAttendees(ids ...string) BookingOption {
	return func(f *BookingFixture) { f.Attendees = append([]string(nil), ids...) }
}

// WithBookingRRule makes the booking recur. Exceptions are YYYY-MM-DD dates.
func WithBookingRRule(rrule string, exceptions ...string) BookingOption {
	return func(f *BookingFixture) {
		f.Recurrence = &application.Recurrence{RRule: rrule, Exceptions: append([]string(nil), exceptions...)}
	}
}

// Input converts the fixture into service input.
func (f BookingFixture) Input() application.BookingInput {
	input := application.BookingInput{
		Title:     f.Title,
		Start:     f.Start,
		End:       f.End,
		AllDay:    f.AllDay,
		Status:    f.Status,
		RoomID:    copyStringPtr(f.RoomID),
		Attendees: append([]string(nil), f.Attendees...),
	}
	if f.Recurrence != nil {
		rec := *f.Recurrence
		rec.Exceptions = append([]string(nil), f.Recurrence.Exceptions...)
		input.Recurrence = &rec
	}
	return input
}

// Persistence converts the fixture into a stored row.
func (f BookingFixture) Persistence() persistence.Booking {
	booking := persistence.Booking{
		ID:        f.ID,
		Title:     f.Title,
		Start:     f.Start.UTC(),
		End:       f.End.UTC(),
		AllDay:    f.AllDay,
		Status:    f.Status,
		RoomID:    copyStringPtr(f.RoomID),
		Attendees: append([]string(nil), f.Attendees...),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	if f.Recurrence != nil {
		booking.Recurrence = &persistence.RecurrenceRule{
			RRule:         f.Recurrence.RRule,
			Exceptions:    append([]string(nil), f.Recurrence.Exceptions...),
			MonthOverflow: f.Recurrence.MonthOverflow,
		}
	}
	return booking
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
