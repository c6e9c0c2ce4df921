package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crm-scheduler/internal/persistence"
)

func TestRoomService_CreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("validates required attributes", func(t *testing.T) {
		svc := NewRoomService(nil, nil, nil, nil)

		_, err := svc.CreateRoom(ctx, RoomInput{Name: "   ", Capacity: 0})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "name")
		assert.Contains(t, vErr.FieldErrors, "capacity")
	})

	t.Run("normalizes amenities and persists", func(t *testing.T) {
		repo := newRoomRepoStub()
		cache := NewReportCache(4, 0)
		cache.store("stale", "value")
		svc := NewRoomServiceWithLogger(repo, nil, cache, sequentialIDs("room"), fixedNow, discardLogger())

		room, err := svc.CreateRoom(ctx, RoomInput{
			Name:      " Harbor ",
			Location:  "Floor 3",
			Capacity:  8,
			Amenities: []string{"Projector", "whiteboard", " projector ", ""},
		})
		require.NoError(t, err)
		assert.Equal(t, "room-1", room.ID)
		assert.Equal(t, "Harbor", room.Name)
		assert.Equal(t, []string{"projector", "whiteboard"}, room.Amenities)
		assert.Zero(t, cache.Len())

		stored, err := repo.GetRoom(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, 8, stored.Capacity)
	})
}

func TestRoomService_UpdateDeleteList(t *testing.T) {
	ctx := context.Background()
	repo := newRoomRepoStub(
		persistence.Room{ID: "r2", Name: "beacon", Capacity: 4, CreatedAt: testNow},
		persistence.Room{ID: "r1", Name: "Atlas", Capacity: 10, CreatedAt: testNow},
	)
	svc := NewRoomService(repo, nil, nil, fixedNow)

	rooms, err := svc.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Atlas", rooms[0].Name)
	assert.Equal(t, "beacon", rooms[1].Name)

	updated, err := svc.UpdateRoom(ctx, UpdateRoomParams{RoomID: "r2", Input: RoomInput{Name: "Beacon", Capacity: 6}})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Capacity)
	assert.Equal(t, testNow, updated.CreatedAt)

	_, err = svc.UpdateRoom(ctx, UpdateRoomParams{RoomID: "nope", Input: RoomInput{Name: "x", Capacity: 1}})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteRoom(ctx, "r2"))
	_, err = svc.GetRoom(ctx, "r2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRoomService_SearchRooms(t *testing.T) {
	ctx := context.Background()
	rooms := newRoomRepoStub(
		persistence.Room{ID: "small", Name: "Small", Capacity: 4, Amenities: []string{"screen"}},
		persistence.Room{ID: "mid", Name: "Mid", Capacity: 8, Amenities: []string{"screen", "whiteboard"}},
		persistence.Room{ID: "large", Name: "Large", Capacity: 20, Amenities: []string{"screen"}},
		persistence.Room{ID: "busy", Name: "Busy", Capacity: 10, Amenities: []string{"screen"}},
	)
	bookings := newBookingRepoStub(
		persistence.Booking{ID: "hold", Title: "Hold", Start: at(8, 9, 30), End: at(8, 10, 30), RoomID: strPtr("busy")},
		persistence.Booking{ID: "gone", Title: "Gone", Start: at(8, 9, 0), End: at(8, 11, 0), RoomID: strPtr("large"), Status: "cancelled"},
		persistence.Booking{ID: "before", Title: "Before", Start: at(8, 8, 0), End: at(8, 9, 0), RoomID: strPtr("mid")},
	)
	svc := NewRoomService(rooms, bookings, nil, fixedNow)

	result, err := svc.SearchRooms(ctx, SearchRoomsParams{Start: at(8, 9, 0), End: at(8, 10, 0), Capacity: 6, Amenities: []string{"Screen"}})
	require.NoError(t, err)

	feasible := make([]string, 0, len(result.Feasible))
	for _, room := range result.Feasible {
		feasible = append(feasible, room.ID)
	}
	assert.Equal(t, []string{"mid", "large"}, feasible)

	require.Len(t, result.Excluded, 2)
	assert.Equal(t, "busy", result.Excluded[0].Room.ID)
	assert.Equal(t, []string{"unavailable"}, result.Excluded[0].Reasons)
	assert.Equal(t, []string{"hold"}, result.Excluded[0].BlockingIDs)
	assert.Equal(t, "small", result.Excluded[1].Room.ID)
	assert.Equal(t, []string{"capacity"}, result.Excluded[1].Reasons)

	t.Run("missing amenities are reported", func(t *testing.T) {
		result, err := svc.SearchRooms(ctx, SearchRoomsParams{Start: at(8, 9, 0), End: at(8, 10, 0), Amenities: []string{"whiteboard"}})
		require.NoError(t, err)
		require.Len(t, result.Feasible, 1)
		assert.Equal(t, "mid", result.Feasible[0].ID)
		for _, exclusion := range result.Excluded {
			assert.Contains(t, exclusion.Reasons, "missing_amenities")
			assert.Equal(t, []string{"whiteboard"}, exclusion.MissingAmenities)
		}
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := svc.SearchRooms(ctx, SearchRoomsParams{Start: at(8, 10, 0), End: at(8, 10, 0)})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "end")
	})
}
