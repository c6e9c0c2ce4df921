package persistence

import (
	"context"
	"time"
)

// MemberRepository exposes CRUD operations for roster members.
type MemberRepository interface {
	CreateMember(ctx context.Context, member Member) error
	UpdateMember(ctx context.Context, member Member) error
	GetMember(ctx context.Context, id string) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	DeleteMember(ctx context.Context, id string) error
}

// RoomRepository exposes CRUD operations for rooms.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) error
}

// BookingFilter narrows booking queries. Empty fields do not filter.
type BookingFilter struct {
	// AttendeeIDs matches bookings with at least one of the attendees.
	AttendeeIDs []string
	RoomID      string
	// From and To select bookings overlapping [From, To). A recurring booking
	// matches whenever its first instance starts before To.
	From             *time.Time
	To               *time.Time
	IncludeCancelled bool
}

// BookingRepository stores bookings with their attendees and recurrence.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	DeleteBooking(ctx context.Context, id string) error
}

// OccurrenceRepository stores materialized instances of recurring bookings.
type OccurrenceRepository interface {
	ReplaceOccurrences(ctx context.Context, bookingID string, occurrences []Occurrence) error
	ListOccurrences(ctx context.Context, from, to time.Time) ([]Occurrence, error)
	DeleteOccurrencesForBooking(ctx context.Context, bookingID string) error
}
