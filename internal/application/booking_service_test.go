package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crm-scheduler/internal/persistence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func standup() persistence.Booking {
	return persistence.Booking{
		ID:        "b-1",
		Title:     "Pipeline review",
		Start:     at(8, 10, 0),
		End:       at(8, 11, 0),
		Status:    "confirmed",
		RoomID:    strPtr("r1"),
		Attendees: []string{"alice", "bob"},
	}
}

func newBookingFixture(seed ...persistence.Booking) (*BookingService, *bookingRepoStub, *occurrenceRepoStub) {
	repo := newBookingRepoStub(seed...)
	occ := newOccurrenceRepoStub()
	svc := NewBookingServiceWithLogger(repo, occ, NewReportCache(16, time.Minute), DefaultPolicy(), sequentialIDs("bk"), fixedNow, discardLogger())
	return svc, repo, occ
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a booking that only touches another", func(t *testing.T) {
		svc, repo, _ := newBookingFixture(standup())

		result, err := svc.CreateBooking(ctx, CreateBookingParams{Input: BookingInput{
			Title:     " Follow-up ",
			Start:     at(8, 11, 0),
			End:       at(8, 12, 0),
			Attendees: []string{"alice", " alice ", ""},
		}})
		require.NoError(t, err)
		assert.False(t, result.Report.HasConflicts)
		assert.Equal(t, "bk-1", result.Booking.ID)
		assert.Equal(t, "Follow-up", result.Booking.Title)
		assert.Equal(t, "confirmed", result.Booking.Status)
		assert.Equal(t, []string{"alice"}, result.Booking.Attendees)
		assert.Equal(t, testNow, result.Booking.CreatedAt)

		stored, err := repo.GetBooking(ctx, "bk-1")
		require.NoError(t, err)
		assert.Equal(t, "Follow-up", stored.Title)
	})

	t.Run("rejects an overlapping booking with the report", func(t *testing.T) {
		svc, repo, _ := newBookingFixture(standup())

		_, err := svc.CreateBooking(ctx, CreateBookingParams{Input: BookingInput{
			Title:     "Clash",
			Start:     at(8, 10, 30),
			End:       at(8, 11, 30),
			Attendees: []string{"alice"},
		}})
		require.ErrorIs(t, err, ErrConflict)

		var cErr *ConflictError
		require.ErrorAs(t, err, &cErr)
		require.Len(t, cErr.Report.Conflicts, 1)
		conflict := cErr.Report.Conflicts[0]
		assert.Equal(t, "b-1", conflict.Booking.ID)
		assert.Equal(t, scheduler.SeverityMedium, conflict.Severity)
		assert.Equal(t, 30*time.Minute, conflict.Overlap)
		assert.Equal(t, []string{"alice"}, conflict.SharedAttendees)
		assert.False(t, conflict.SameRoom)

		_, err = repo.GetBooking(ctx, "bk-1")
		require.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("force stores over conflicts", func(t *testing.T) {
		svc, repo, _ := newBookingFixture(standup())

		result, err := svc.CreateBooking(ctx, CreateBookingParams{Force: true, Input: BookingInput{
			Title:  "Room grab",
			Start:  at(8, 10, 0),
			End:    at(8, 10, 20),
			RoomID: strPtr("r1"),
		}})
		require.NoError(t, err)
		require.True(t, result.Report.HasConflicts)
		assert.True(t, result.Report.Conflicts[0].SameRoom)
		assert.Equal(t, scheduler.SeverityHigh, result.Report.Conflicts[0].Severity)

		_, err = repo.GetBooking(ctx, result.Booking.ID)
		require.NoError(t, err)
	})

	t.Run("recurring candidate hits a later instance", func(t *testing.T) {
		svc, _, occ := newBookingFixture(standup())

		_, err := svc.CreateBooking(ctx, CreateBookingParams{Input: BookingInput{
			Title:      "Weekly sync",
			Start:      at(1, 10, 0),
			End:        at(1, 11, 0),
			Attendees:  []string{"bob"},
			Recurrence: &Recurrence{RRule: "FREQ=WEEKLY;BYDAY=MO;COUNT=4"},
		}})
		var cErr *ConflictError
		require.ErrorAs(t, err, &cErr)
		require.Len(t, cErr.Report.Conflicts, 1)
		assert.Equal(t, scheduler.SeverityHigh, cErr.Report.Conflicts[0].Severity)
		assert.Empty(t, occ.forBooking("bk-1"))
	})

	t.Run("count bounded series is checked past the open-ended horizon", func(t *testing.T) {
		later := persistence.Booking{
			ID:        "late",
			Title:     "Quarterly planning",
			Start:     time.Date(2025, time.September, 1, 10, 0, 0, 0, time.UTC),
			End:       time.Date(2025, time.September, 1, 11, 0, 0, 0, time.UTC),
			Attendees: []string{"alice"},
		}
		svc, _, _ := newBookingFixture(later)

		_, err := svc.CreateBooking(ctx, CreateBookingParams{Input: BookingInput{
			Title:      "Weekly sync",
			Start:      at(1, 10, 0),
			End:        at(1, 11, 0),
			Attendees:  []string{"alice"},
			Recurrence: &Recurrence{RRule: "FREQ=WEEKLY;COUNT=100"},
		}})
		var cErr *ConflictError
		require.ErrorAs(t, err, &cErr)
		require.Len(t, cErr.Report.Conflicts, 1)
		assert.Equal(t, "late", cErr.Report.Conflicts[0].Booking.ID)
		assert.Equal(t, time.Hour, cErr.Report.Conflicts[0].Overlap)
	})

	t.Run("recurring booking materializes its instances", func(t *testing.T) {
		svc, _, occ := newBookingFixture()

		result, err := svc.CreateBooking(ctx, CreateBookingParams{Input: BookingInput{
			Title:      "Daily check-in",
			Start:      at(1, 9, 0),
			End:        at(1, 9, 15),
			Attendees:  []string{"alice"},
			Recurrence: &Recurrence{RRule: "FREQ=DAILY;COUNT=3", Exceptions: []string{"2024-04-02"}},
		}})
		require.NoError(t, err)
		require.NotNil(t, result.Booking.Recurrence)
		assert.Equal(t, []string{"2024-04-02"}, result.Booking.Recurrence.Exceptions)
		assert.Equal(t, "clamp", result.Booking.Recurrence.MonthOverflow)

		rows := occ.forBooking(result.Booking.ID)
		require.Len(t, rows, 3)
		assert.Equal(t, at(1, 9, 0), rows[0].Start)
		assert.Equal(t, at(3, 9, 0), rows[1].Start)
		assert.Equal(t, at(4, 9, 0), rows[2].Start)
	})

	t.Run("all-day bookings are stored with a positive length", func(t *testing.T) {
		svc, repo, _ := newBookingFixture()

		result, err := svc.CreateBooking(ctx, CreateBookingParams{Input: BookingInput{
			Title:  "Offsite",
			Start:  at(9, 13, 0),
			End:    at(9, 13, 0),
			AllDay: true,
		}})
		require.NoError(t, err)
		stored, err := repo.GetBooking(ctx, result.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, at(9, 0, 0), stored.Start)
		assert.Equal(t, at(9, 23, 59).Add(59*time.Second), stored.End)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _ := newBookingFixture()

		cases := map[string]struct {
			input BookingInput
			field string
		}{
			"missing title":   {BookingInput{Start: at(8, 9, 0), End: at(8, 10, 0)}, "title"},
			"inverted":        {BookingInput{Title: "x", Start: at(8, 10, 0), End: at(8, 9, 0)}, "end"},
			"unknown status":  {BookingInput{Title: "x", Start: at(8, 9, 0), End: at(8, 10, 0), Status: "maybe"}, "status"},
			"bad rrule":       {BookingInput{Title: "x", Start: at(8, 9, 0), End: at(8, 10, 0), Recurrence: &Recurrence{RRule: "FREQ=HOURLY"}}, "recurrence"},
			"bad exception":   {BookingInput{Title: "x", Start: at(8, 9, 0), End: at(8, 10, 0), Recurrence: &Recurrence{RRule: "FREQ=DAILY;COUNT=2", Exceptions: []string{"04/02/2024"}}}, "recurrence"},
			"missing instant": {BookingInput{Title: "x", End: at(8, 10, 0)}, "start"},
		}
		for name, tc := range cases {
			_, err := svc.CreateBooking(ctx, CreateBookingParams{Input: tc.input})
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, name)
			assert.Contains(t, vErr.FieldErrors, tc.field, name)
		}
	})
}

func TestBookingService_UpdateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("does not conflict with its own stored version", func(t *testing.T) {
		svc, repo, _ := newBookingFixture(standup())

		result, err := svc.UpdateBooking(ctx, UpdateBookingParams{BookingID: "b-1", Input: BookingInput{
			Title:     "Pipeline review (moved)",
			Start:     at(8, 10, 15),
			End:       at(8, 11, 15),
			RoomID:    strPtr("r1"),
			Attendees: []string{"alice", "bob"},
		}})
		require.NoError(t, err)
		assert.False(t, result.Report.HasConflicts)

		stored, err := repo.GetBooking(ctx, "b-1")
		require.NoError(t, err)
		assert.Equal(t, at(8, 10, 15), stored.Start)
		assert.Equal(t, testNow, stored.UpdatedAt)
	})

	t.Run("unknown booking", func(t *testing.T) {
		svc, _, _ := newBookingFixture()

		_, err := svc.UpdateBooking(ctx, UpdateBookingParams{BookingID: "missing", Input: BookingInput{
			Title: "x", Start: at(8, 9, 0), End: at(8, 10, 0),
		}})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBookingService_CancelAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newBookingFixture(standup())

	cancelled, err := svc.CancelBooking(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)

	report, err := svc.CheckConflicts(ctx, CheckConflictsParams{Input: BookingInput{
		Title: "Now free", Start: at(8, 10, 0), End: at(8, 11, 0), Attendees: []string{"alice"},
	}})
	require.NoError(t, err)
	assert.False(t, report.HasConflicts)

	require.NoError(t, svc.DeleteBooking(ctx, "b-1"))
	_, err = repo.GetBooking(ctx, "b-1")
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.ErrorIs(t, svc.DeleteBooking(ctx, "b-1"), ErrNotFound)
	_, err = svc.CancelBooking(ctx, "b-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBookingService_CheckConflictsCache(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newBookingFixture(standup())

	params := CheckConflictsParams{Input: BookingInput{
		Title: "Slot check", Start: at(8, 10, 50), End: at(8, 11, 30), Attendees: []string{"bob"},
	}}

	first, err := svc.CheckConflicts(ctx, params)
	require.NoError(t, err)
	require.True(t, first.HasConflicts)
	assert.Equal(t, scheduler.SeverityLow, first.Conflicts[0].Severity)
	callsAfterFirst := repo.calls()

	second, err := svc.CheckConflicts(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, repo.calls())

	_, err = svc.CancelBooking(ctx, "b-1")
	require.NoError(t, err)

	third, err := svc.CheckConflicts(ctx, params)
	require.NoError(t, err)
	assert.False(t, third.HasConflicts)
	assert.Greater(t, repo.calls(), callsAfterFirst)
}

func TestBookingService_Occurrences(t *testing.T) {
	ctx := context.Background()
	series := persistence.Booking{
		ID:         "series",
		Title:      "Daily",
		Start:      at(1, 9, 0),
		End:        at(1, 9, 30),
		Status:     "confirmed",
		Attendees:  []string{"alice"},
		Recurrence: &persistence.RecurrenceRule{RRule: "FREQ=DAILY;COUNT=5"},
	}
	weekly := persistence.Booking{
		ID:         "weekly",
		Title:      "Open-ended",
		Start:      time.Date(2024, time.March, 25, 10, 0, 0, 0, time.UTC),
		End:        time.Date(2024, time.March, 25, 11, 0, 0, 0, time.UTC),
		Status:     "confirmed",
		Recurrence: &persistence.RecurrenceRule{RRule: "FREQ=WEEKLY"},
	}
	svc, _, occ := newBookingFixture(series, weekly, standup())

	t.Run("preview within a window keeps series indexes", func(t *testing.T) {
		got, err := svc.Occurrences(ctx, "series", at(2, 0, 0), at(4, 0, 0))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, at(2, 9, 0), got[0].Start)
		assert.Equal(t, 2, got[1].Index)

		single, err := svc.Occurrences(ctx, "b-1", at(8, 0, 0), at(9, 0, 0))
		require.NoError(t, err)
		require.Len(t, single, 1)

		_, err = svc.Occurrences(ctx, "series", at(4, 0, 0), at(2, 0, 0))
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
	})

	t.Run("materialize stores future instances of every series", func(t *testing.T) {
		refreshed, err := svc.MaterializeOccurrences(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, refreshed)

		assert.Len(t, occ.forBooking("series"), 5)
		rows := occ.forBooking("weekly")
		require.Len(t, rows, 13)
		assert.Equal(t, 1, rows[0].Index)
		assert.Equal(t, at(1, 10, 0), rows[0].Start)
		assert.Empty(t, occ.forBooking("b-1"))

		listed, err := svc.ListOccurrences(ctx, at(1, 0, 0), at(2, 0, 0))
		require.NoError(t, err)
		assert.Len(t, listed, 2)
	})
}

func TestBookingService_MaterializeSkipsBookingsChangedMidSweep(t *testing.T) {
	ctx := context.Background()
	series := persistence.Booking{
		ID:         "series",
		Title:      "Daily",
		Start:      at(1, 9, 0),
		End:        at(1, 9, 30),
		Status:     "confirmed",
		Attendees:  []string{"alice"},
		Recurrence: &persistence.RecurrenceRule{RRule: "FREQ=DAILY;COUNT=5"},
	}
	svc, repo, occ := newBookingFixture(series)

	repo.afterList = func() {
		_, err := svc.CancelBooking(ctx, "series")
		require.NoError(t, err)
	}

	refreshed, err := svc.MaterializeOccurrences(ctx)
	require.NoError(t, err)
	assert.Zero(t, refreshed)
	assert.Empty(t, occ.forBooking("series"))

	stored, err := repo.GetBooking(ctx, "series")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", stored.Status)
}
