package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/example/crm-scheduler/internal/persistence"
)

// RoomRepository implements persistence.RoomRepository using SQLite
type RoomRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRoomRepository creates a new SQLite room repository
func NewRoomRepository(pool *ConnectionPool) *RoomRepository {
	return &RoomRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateRoom inserts a room and its amenities
func (r *RoomRepository) CreateRoom(ctx context.Context, room persistence.Room) error {
	if strings.TrimSpace(room.ID) == "" || room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = room.CreatedAt
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rooms (id, name, capacity, location, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			room.ID,
			room.Name,
			room.Capacity,
			nullString(&room.Location),
			formatTime(room.CreatedAt),
			formatTime(room.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return r.replaceAmenities(ctx, tx, room.ID, room.Amenities)
	})
}

// UpdateRoom updates a room and replaces its amenities
func (r *RoomRepository) UpdateRoom(ctx context.Context, room persistence.Room) error {
	if strings.TrimSpace(room.ID) == "" {
		return persistence.ErrNotFound
	}
	if room.Capacity <= 0 {
		return persistence.ErrConstraintViolation
	}
	if room.UpdatedAt.IsZero() {
		room.UpdatedAt = time.Now().UTC()
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE rooms
			SET name = ?, capacity = ?, location = ?, updated_at = ?
			WHERE id = ?`,
			room.Name,
			room.Capacity,
			nullString(&room.Location),
			formatTime(room.UpdatedAt),
			room.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return r.replaceAmenities(ctx, tx, room.ID, room.Amenities)
	})
}

// GetRoom retrieves a room by ID
func (r *RoomRepository) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	if id == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}
	rooms, err := r.queryRooms(ctx, `WHERE id = ?`, id)
	if err != nil {
		return persistence.Room{}, err
	}
	if len(rooms) == 0 {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return rooms[0], nil
}

// ListRooms returns all rooms ordered by name then ID
func (r *RoomRepository) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	return r.queryRooms(ctx, ``)
}

// DeleteRoom removes a room. Bookings that used it keep their times but lose
// the room reference.
func (r *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE bookings SET room_id = NULL WHERE room_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

func (r *RoomRepository) replaceAmenities(ctx context.Context, tx *sql.Tx, roomID string, amenities []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_amenities WHERE room_id = ?`, roomID); err != nil {
		return r.mapper.MapError(err)
	}
	for _, amenity := range uniqueTrimmed(amenities) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO room_amenities (room_id, amenity) VALUES (?, ?)`, roomID, amenity); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

// queryRooms loads rooms matching where, then their amenities in one pass.
func (r *RoomRepository) queryRooms(ctx context.Context, where string, args ...any) ([]persistence.Room, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, name, capacity, location, created_at, updated_at
		FROM rooms `+where+`
		ORDER BY name ASC, id ASC`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var rooms []persistence.Room
	index := make(map[string]int)
	for rows.Next() {
		var (
			room                 persistence.Room
			location             sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&room.ID, &room.Name, &room.Capacity, &location, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		room.Location = location.String
		if room.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		if room.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[room.ID] = len(rooms)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	if len(rooms) == 0 {
		return rooms, nil
	}

	ids := make([]any, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	amenityRows, err := r.helper.Query(ctx,
		`SELECT room_id, amenity FROM room_amenities WHERE room_id IN (`+placeholders(len(ids))+`)`, ids...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer amenityRows.Close()
	for amenityRows.Next() {
		var roomID, amenity string
		if err := amenityRows.Scan(&roomID, &amenity); err != nil {
			return nil, r.mapper.MapError(err)
		}
		i := index[roomID]
		rooms[i].Amenities = append(rooms[i].Amenities, amenity)
	}
	if err := amenityRows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	for i := range rooms {
		sort.Strings(rooms[i].Amenities)
	}
	return rooms, nil
}
