package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/crm-scheduler/internal/persistence"
)

var testNow = time.Date(2024, time.April, 1, 8, 0, 0, 0, time.UTC) // Monday

func fixedNow() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.April, day, hour, minute, 0, 0, time.UTC)
}

type bookingRepoStub struct {
	mu        sync.Mutex
	bookings  map[string]persistence.Booking
	listCalls int
	listErr   error
	// afterList runs once, after the next ListBookings call has read its rows.
	afterList func()
}

func newBookingRepoStub(seed ...persistence.Booking) *bookingRepoStub {
	r := &bookingRepoStub{bookings: make(map[string]persistence.Booking)}
	for _, b := range seed {
		if b.Status == "" {
			b.Status = "confirmed"
		}
		r.bookings[b.ID] = b
	}
	return r
}

func (r *bookingRepoStub) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[booking.ID]; ok {
		return persistence.ErrDuplicate
	}
	r.bookings[booking.ID] = booking
	return nil
}

func (r *bookingRepoStub) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[booking.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.bookings[booking.ID] = booking
	return nil
}

func (r *bookingRepoStub) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return b, nil
}

func (r *bookingRepoStub) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	out, err := r.listBookings(filter)

	r.mu.Lock()
	hook := r.afterList
	r.afterList = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, err
}

func (r *bookingRepoStub) listBookings(filter persistence.BookingFilter) ([]persistence.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}

	var out []persistence.Booking
	for _, b := range r.bookings {
		if !filter.IncludeCancelled && b.Status == "cancelled" {
			continue
		}
		if filter.RoomID != "" && (b.RoomID == nil || *b.RoomID != filter.RoomID) {
			continue
		}
		if len(filter.AttendeeIDs) > 0 && !sharesAny(b.Attendees, filter.AttendeeIDs) {
			continue
		}
		if filter.To != nil && !b.Start.Before(*filter.To) {
			continue
		}
		if filter.From != nil && b.Recurrence == nil && !b.End.After(*filter.From) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (r *bookingRepoStub) DeleteBooking(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *bookingRepoStub) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

func sharesAny(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type occurrenceRepoStub struct {
	mu   sync.Mutex
	rows map[string][]persistence.Occurrence
}

func newOccurrenceRepoStub() *occurrenceRepoStub {
	return &occurrenceRepoStub{rows: make(map[string][]persistence.Occurrence)}
}

func (r *occurrenceRepoStub) ReplaceOccurrences(ctx context.Context, bookingID string, occurrences []persistence.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[bookingID] = append([]persistence.Occurrence(nil), occurrences...)
	return nil
}

func (r *occurrenceRepoStub) ListOccurrences(ctx context.Context, from, to time.Time) ([]persistence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []persistence.Occurrence
	for _, rows := range r.rows {
		for _, row := range rows {
			if row.Start.Before(to) && row.End.After(from) {
				out = append(out, row)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *occurrenceRepoStub) DeleteOccurrencesForBooking(ctx context.Context, bookingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, bookingID)
	return nil
}

func (r *occurrenceRepoStub) forBooking(id string) []persistence.Occurrence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

type roomRepoStub struct {
	mu    sync.Mutex
	rooms map[string]persistence.Room
}

func newRoomRepoStub(seed ...persistence.Room) *roomRepoStub {
	r := &roomRepoStub{rooms: make(map[string]persistence.Room)}
	for _, room := range seed {
		r.rooms[room.ID] = room
	}
	return r
}

func (r *roomRepoStub) CreateRoom(ctx context.Context, room persistence.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return persistence.ErrDuplicate
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *roomRepoStub) UpdateRoom(ctx context.Context, room persistence.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *roomRepoStub) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (r *roomRepoStub) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]persistence.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *roomRepoStub) DeleteRoom(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.rooms, id)
	return nil
}

type memberRepoStub struct {
	mu      sync.Mutex
	members map[string]persistence.Member
}

func newMemberRepoStub(seed ...persistence.Member) *memberRepoStub {
	r := &memberRepoStub{members: make(map[string]persistence.Member)}
	for _, m := range seed {
		r.members[m.ID] = m
	}
	return r
}

func (r *memberRepoStub) CreateMember(ctx context.Context, member persistence.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[member.ID]; ok {
		return persistence.ErrDuplicate
	}
	r.members[member.ID] = member
	return nil
}

func (r *memberRepoStub) UpdateMember(ctx context.Context, member persistence.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[member.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.members[member.ID] = member
	return nil
}

func (r *memberRepoStub) GetMember(ctx context.Context, id string) (persistence.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return persistence.Member{}, persistence.ErrNotFound
	}
	return m, nil
}

func (r *memberRepoStub) ListMembers(ctx context.Context) ([]persistence.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]persistence.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memberRepoStub) DeleteMember(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.members, id)
	return nil
}
