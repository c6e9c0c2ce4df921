package application

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crm-scheduler/internal/availability"
	"github.com/example/crm-scheduler/internal/persistence"
)

func availabilityFixture() (*AvailabilityService, *bookingRepoStub) {
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	members := newMemberRepoStub(
		persistence.Member{ID: "alice", DisplayName: "Alice", Timezone: "UTC", WorkStart: "09:00", WorkEnd: "17:00", WorkingDays: weekdays},
		persistence.Member{ID: "bob", DisplayName: "Bob", Timezone: "Asia/Tokyo", WorkStart: "09:00", WorkEnd: "18:00", WorkingDays: weekdays},
		persistence.Member{ID: "chen", DisplayName: "Chen", Timezone: "UTC", WorkStart: "09:00", WorkEnd: "17:00", WorkingDays: weekdays},
	)
	bookings := newBookingRepoStub(
		persistence.Booking{ID: "chen-call", Title: "Call", Start: at(8, 10, 0), End: at(8, 11, 0), Attendees: []string{"chen"}},
	)
	svc := NewAvailabilityService(members, bookings, NewReportCache(8, time.Minute), DefaultPolicy(), discardLogger())
	return svc, bookings
}

func TestAvailabilityService_FindTime(t *testing.T) {
	ctx := context.Background()
	svc, bookings := availabilityFixture()

	params := FindTimeParams{
		MemberIDs: []string{"alice", "bob", "chen"},
		Date:      "2024-04-08",
		Timezone:  "UTC",
		DayStart:  "08:00",
		DayEnd:    "12:00",
		Duration:  time.Hour,
	}
	result, err := svc.FindTime(ctx, params)
	require.NoError(t, err)

	require.Len(t, result.Grid.Slots, 8)
	counts := make([]int, 0, len(result.Grid.Slots))
	for _, slot := range result.Grid.Slots {
		counts = append(counts, slot.AvailableCount)
	}
	assert.Equal(t, []int{1, 1, 2, 2, 1, 1, 2, 2}, counts)
	assert.Equal(t, availability.ReasonHasBooking, result.Grid.Slots[4].Members[2].Reason)

	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, at(8, 9, 0), result.Recommendations[0].Start)
	assert.Equal(t, at(8, 11, 0), result.Recommendations[1].Start)
	assert.Equal(t, []string{"alice", "chen"}, result.Recommendations[0].AvailableMembers)

	t.Run("repeated requests are served from the cache", func(t *testing.T) {
		before := bookings.calls()
		again, err := svc.FindTime(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, before, bookings.calls())
		assert.Equal(t, len(result.Recommendations), len(again.Recommendations))
	})

	t.Run("mutating a result leaves the cached entry intact", func(t *testing.T) {
		first, err := svc.FindTime(ctx, params)
		require.NoError(t, err)
		first.Grid.Slots[0].AvailableCount = 99
		first.Grid.Slots[0].Members[0].Reason = availability.ReasonHasBooking
		first.Recommendations[0].AvailableMembers[0] = "mallory"

		second, err := svc.FindTime(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 1, second.Grid.Slots[0].AvailableCount)
		assert.Equal(t, result.Grid.Slots[0].Members[0].Reason, second.Grid.Slots[0].Members[0].Reason)
		assert.Equal(t, []string{"alice", "chen"}, second.Recommendations[0].AvailableMembers)
	})

	t.Run("unknown members", func(t *testing.T) {
		_, err := svc.FindTime(ctx, FindTimeParams{MemberIDs: []string{"alice", "ghost"}, Date: "2024-04-08", Duration: time.Hour})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors["member_ids"], "ghost")
	})

	t.Run("validation", func(t *testing.T) {
		_, err := svc.FindTime(ctx, FindTimeParams{Date: "tomorrow", Timezone: "Nowhere/City", DayStart: "8am"})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		for _, field := range []string{"duration", "date", "timezone", "day_start"} {
			assert.Contains(t, vErr.FieldErrors, field)
		}
	})

	t.Run("core option errors pass through", func(t *testing.T) {
		_, err := svc.FindTime(ctx, FindTimeParams{Date: "2024-04-08", Duration: time.Hour, QuorumRatio: 2})
		require.ErrorIs(t, err, availability.ErrInvalidOptions)
		assert.Equal(t, "invalid_input", ErrorKind(err))
	})
}
