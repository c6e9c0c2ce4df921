package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crm-scheduler/internal/recurrence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

var (
	scanDate = recurrence.Date{Year: 2024, Month: time.April, Day: 8} // Monday
	weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
)

func utc(hour, minute int) time.Time {
	return time.Date(2024, time.April, 8, hour, minute, 0, 0, time.UTC)
}

func roster() ([]Member, map[string][]scheduler.Booking) {
	weekly := recurrence.Rule{Frequency: recurrence.FrequencyWeekly, End: recurrence.Count{N: 10}}
	members := []Member{
		{ID: "alice", Timezone: "UTC", WorkStart: Clock(9, 0), WorkEnd: Clock(17, 0), WorkingDays: weekdays},
		{ID: "bob", WorkStart: Clock(8, 0), WorkEnd: Clock(17, 0), WorkingDays: weekdays},
		{ID: "chen", Timezone: "Asia/Tokyo", WorkStart: Clock(9, 0), WorkEnd: Clock(21, 0), WorkingDays: weekdays},
		{ID: "dana", Timezone: "UTC", WorkStart: Clock(9, 0), WorkEnd: Clock(17, 0), WorkingDays: []time.Weekday{time.Saturday, time.Sunday}},
		{ID: "eve", Timezone: "America/New_York", WorkStart: Clock(6, 0), WorkEnd: Clock(18, 0), WorkingDays: weekdays},
	}
	bookings := map[string][]scheduler.Booking{
		"bob": {{
			ID:         "bob-weekly",
			Interval:   scheduler.TimeInterval{Start: utc(10, 0).AddDate(0, 0, -7), End: utc(11, 0).AddDate(0, 0, -7)},
			Recurrence: &weekly,
			Status:     scheduler.StatusConfirmed,
		}},
		"dana": {{ID: "dana-1", Interval: scheduler.TimeInterval{Start: utc(9, 0), End: utc(10, 0)}, Status: scheduler.StatusConfirmed}},
		"alice": {{ID: "alice-cancelled", Interval: scheduler.TimeInterval{Start: utc(11, 0), End: utc(12, 0)}, Status: scheduler.StatusCancelled}},
	}
	return members, bookings
}

func morningRequest() GridRequest {
	members, bookings := roster()
	return GridRequest{
		Members:  members,
		Date:     scanDate,
		Location: time.UTC,
		DayStart: Clock(8, 0),
		DayEnd:   Clock(12, 0),
		Bookings: bookings,
	}
}

func TestBuildGrid(t *testing.T) {
	t.Parallel()

	grid, err := BuildGrid(morningRequest())
	require.NoError(t, err)
	require.Len(t, grid.Slots, 8)
	assert.Equal(t, 5, grid.TotalCount)
	assert.Equal(t, DefaultGranularity, grid.Granularity)

	counts := make([]int, len(grid.Slots))
	for i, slot := range grid.Slots {
		counts[i] = slot.AvailableCount
		assert.Equal(t, 30*time.Minute, slot.Interval.Duration())
	}
	assert.Equal(t, []int{2, 2, 3, 3, 3, 3, 4, 4}, counts)

	t.Run("three of five is not good for meeting", func(t *testing.T) {
		slot := grid.Slots[2]
		assert.True(t, slot.Interval.Start.Equal(utc(9, 0)))
		assert.Equal(t, 3, slot.AvailableCount)
		assert.Equal(t, 5, slot.TotalCount)
		assert.False(t, slot.BestForMeeting)
		assert.True(t, grid.Slots[6].BestForMeeting)
	})

	t.Run("reasons follow precedence", func(t *testing.T) {
		reasons := func(slot Slot) map[string]Reason {
			out := map[string]Reason{}
			for _, s := range slot.Members {
				out[s.MemberID] = s.Reason
			}
			return out
		}

		first := reasons(grid.Slots[0])
		assert.Equal(t, ReasonOutsideHours, first["alice"])
		assert.Equal(t, ReasonNone, first["bob"])
		assert.Equal(t, ReasonNone, first["chen"])
		assert.Equal(t, ReasonNonWorkingDay, first["dana"])
		assert.Equal(t, ReasonOutsideHours, first["eve"])

		// dana has a booking at 09:00 but does not work Mondays.
		assert.Equal(t, ReasonNonWorkingDay, reasons(grid.Slots[2])["dana"])
		assert.Equal(t, ReasonHasBooking, reasons(grid.Slots[4])["bob"])
		assert.Equal(t, ReasonNone, reasons(grid.Slots[6])["alice"])
	})

	t.Run("availability is conserved", func(t *testing.T) {
		for _, slot := range grid.Slots {
			free := 0
			for _, s := range slot.Members {
				if s.Available {
					free++
					assert.Equal(t, ReasonNone, s.Reason)
				}
			}
			assert.Equal(t, slot.AvailableCount, free)
			assert.Equal(t, slot.TotalCount, slot.AvailableCount+slot.UnavailableCount())
			assert.Len(t, slot.Members, slot.TotalCount)
		}
	})
}

func TestBuildGridEdges(t *testing.T) {
	t.Parallel()

	t.Run("empty roster", func(t *testing.T) {
		t.Parallel()

		grid, err := BuildGrid(GridRequest{Date: scanDate, DayStart: Clock(9, 0), DayEnd: Clock(10, 0)})
		require.NoError(t, err)
		require.Len(t, grid.Slots, 2)
		for _, slot := range grid.Slots {
			assert.Zero(t, slot.TotalCount)
			assert.Zero(t, slot.AvailableCount)
			assert.False(t, slot.BestForMeeting)
		}
	})

	t.Run("long running open-ended series only expands the scan window", func(t *testing.T) {
		t.Parallel()

		daily := recurrence.Rule{Frequency: recurrence.FrequencyDaily}
		anchor := time.Date(2010, time.January, 4, 9, 0, 0, 0, time.UTC)
		req := GridRequest{
			Members:  []Member{{ID: "a", Timezone: "UTC", WorkStart: Clock(8, 0), WorkEnd: Clock(12, 0), WorkingDays: weekdays}},
			Date:     scanDate,
			Location: time.UTC,
			DayStart: Clock(8, 0),
			DayEnd:   Clock(10, 0),
			Bookings: map[string][]scheduler.Booking{"a": {{
				ID:         "standup",
				Interval:   scheduler.TimeInterval{Start: anchor, End: anchor.Add(15 * time.Minute)},
				Recurrence: &daily,
				Status:     scheduler.StatusConfirmed,
			}}},
		}

		grid, err := BuildGrid(req)
		require.NoError(t, err)
		require.Len(t, grid.Slots, 4)
		assert.True(t, grid.Slots[0].Members[0].Available)
		assert.False(t, grid.Slots[2].Members[0].Available)
		assert.Equal(t, ReasonHasBooking, grid.Slots[2].Members[0].Reason)
		assert.True(t, grid.Slots[3].Members[0].Available)
	})

	t.Run("partial trailing slot is dropped", func(t *testing.T) {
		t.Parallel()

		req := morningRequest()
		req.DayEnd = Clock(9, 40)
		grid, err := BuildGrid(req)
		require.NoError(t, err)
		require.Len(t, grid.Slots, 3)
		assert.True(t, grid.Slots[2].Interval.End.Equal(utc(9, 30)))
	})

	t.Run("reference location shifts the window", func(t *testing.T) {
		t.Parallel()

		tokyo, err := time.LoadLocation("Asia/Tokyo")
		require.NoError(t, err)
		req := morningRequest()
		req.Location = tokyo
		req.DayStart = Clock(17, 0)
		req.DayEnd = Clock(18, 0)
		req.Granularity = 15 * time.Minute
		grid, err := BuildGrid(req)
		require.NoError(t, err)
		require.Len(t, grid.Slots, 4)
		assert.True(t, grid.Slots[0].Interval.Start.Equal(utc(8, 0)))
	})

	t.Run("invalid members fail the whole call", func(t *testing.T) {
		t.Parallel()

		for name, member := range map[string]Member{
			"unknown timezone": {ID: "x", Timezone: "Mars/Olympus", WorkStart: Clock(9, 0), WorkEnd: Clock(17, 0)},
			"overnight window": {ID: "x", WorkStart: Clock(22, 0), WorkEnd: Clock(6, 0)},
			"bad weekday":      {ID: "x", WorkStart: Clock(9, 0), WorkEnd: Clock(17, 0), WorkingDays: []time.Weekday{8}},
			"missing id":       {WorkStart: Clock(9, 0), WorkEnd: Clock(17, 0)},
		} {
			req := morningRequest()
			req.Members = append(req.Members, member)
			grid, err := BuildGrid(req)
			require.ErrorIs(t, err, ErrInvalidMember, name)
			assert.Empty(t, grid.Slots, name)
		}
	})

	t.Run("invalid options", func(t *testing.T) {
		t.Parallel()

		mutations := map[string]func(*GridRequest){
			"inverted window": func(r *GridRequest) { r.DayStart, r.DayEnd = Clock(12, 0), Clock(8, 0) },
			"ratio above one": func(r *GridRequest) { r.GoodRatio = 1.5 },
			"negative ratio":  func(r *GridRequest) { r.GoodRatio = -0.2 },
			"sub-minute step": func(r *GridRequest) { r.Granularity = time.Second },
			"missing date":    func(r *GridRequest) { r.Date = recurrence.Date{} },
			"bad clock":       func(r *GridRequest) { r.DayEnd = Clock(25, 0) },
		}
		for name, mutate := range mutations {
			req := morningRequest()
			mutate(&req)
			_, err := BuildGrid(req)
			require.ErrorIs(t, err, ErrInvalidOptions, name)
		}
	})
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	end, err := ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, end.Minutes())

	for _, bad := range []string{"9", "24:30", "12:60", "ab:cd", ""} {
		_, err := ParseClock(bad)
		require.ErrorIs(t, err, ErrInvalidOptions, bad)
	}
}
