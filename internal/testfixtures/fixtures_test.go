package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixturesPersistThroughHarness(t *testing.T) {
	ctx := context.Background()
	harness := NewSQLiteHarness(t)

	member := NewMemberFixture(WithMemberID("member-x"), WithMemberTimezone("Europe/Berlin"), WithMemberDays(time.Monday))
	require.NoError(t, harness.Members.CreateMember(ctx, member.Persistence()))

	room := NewRoomFixture(WithRoomID("room-x"), WithRoomAmenities("whiteboard", "screen"))
	require.NoError(t, harness.Rooms.CreateRoom(ctx, room.Persistence()))

	booking := NewBookingFixture(
		WithBookingID("booking-x"),
		WithBookingRoom(room.ID),
		WithBookingAttendees(member.ID),
		WithBookingRRule("FREQ=WEEKLY;COUNT=2", "2024-04-08"),
	)
	require.NoError(t, harness.Bookings.CreateBooking(ctx, booking.Persistence()))

	storedMember, err := harness.Members.GetMember(ctx, "member-x")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", storedMember.Timezone)
	assert.Equal(t, []time.Weekday{time.Monday}, storedMember.WorkingDays)

	storedBooking, err := harness.Bookings.GetBooking(ctx, "booking-x")
	require.NoError(t, err)
	assert.Equal(t, booking.Start, storedBooking.Start.UTC())
	require.NotNil(t, storedBooking.RoomID)
	assert.Equal(t, room.ID, *storedBooking.RoomID)
	assert.Equal(t, []string{member.ID}, storedBooking.Attendees)
	require.NotNil(t, storedBooking.Recurrence)
	assert.Equal(t, []string{"2024-04-08"}, storedBooking.Recurrence.Exceptions)
}

func TestFixtureInputsAreIndependentCopies(t *testing.T) {
	booking := NewBookingFixture(WithBookingAttendees("a"), WithBookingRoom("r"), WithBookingRRule("FREQ=DAILY;COUNT=2"))
	input := booking.Input()
	input.Attendees[0] = "changed"
	*input.RoomID = "changed"
	input.Recurrence.RRule = "changed"

	assert.Equal(t, []string{"a"}, booking.Attendees)
	assert.Equal(t, "r", *booking.RoomID)
	assert.Equal(t, "FREQ=DAILY;COUNT=2", booking.Recurrence.RRule)

	first := NewMemberFixture()
	second := NewMemberFixture()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "09:00", first.Input().WorkStart)
	assert.Equal(t, 6, NewRoomFixture().Input().Capacity)
}
