package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/crm-scheduler/internal/persistence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

// RoomService orchestrates validation, persistence and feasibility search for rooms.
type RoomService struct {
	rooms       persistence.RoomRepository
	bookings    persistence.BookingRepository
	cache       *ReportCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(rooms persistence.RoomRepository, bookings persistence.BookingRepository, idGenerator func() string, now func() time.Time) *RoomService {
	return NewRoomServiceWithLogger(rooms, bookings, nil, idGenerator, now, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger and cache.
func NewRoomServiceWithLogger(rooms persistence.RoomRepository, bookings persistence.BookingRepository, cache *ReportCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RoomService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RoomService{rooms: rooms, bookings: bookings, cache: cache, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// CreateRoom validates input and persists a new room.
func (s *RoomService) CreateRoom(ctx context.Context, input RoomInput) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	vErr := validateRoomInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	room = Room{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(input.Name),
		Location:  strings.TrimSpace(input.Location),
		Capacity:  input.Capacity,
		Amenities: normalizeAmenities(input.Amenities),
		CreatedAt: s.now().UTC(),
	}
	room.UpdatedAt = room.CreatedAt

	if s.rooms == nil {
		return
	}

	if err = s.rooms.CreateRoom(ctx, toPersistenceRoom(room)); err != nil {
		err = mapRoomRepoError(err)
		return
	}
	s.cache.Invalidate()
	return
}

// UpdateRoom validates input and updates an existing room.
func (s *RoomService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRoom", "room_id", params.RoomID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room updated")
	}()

	var existing persistence.Room
	existing, err = s.rooms.GetRoom(ctx, params.RoomID)
	if err != nil {
		err = mapRoomRepoError(err)
		return
	}

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	room = toRoom(existing)
	room.Name = strings.TrimSpace(params.Input.Name)
	room.Location = strings.TrimSpace(params.Input.Location)
	room.Capacity = params.Input.Capacity
	room.Amenities = normalizeAmenities(params.Input.Amenities)
	room.UpdatedAt = s.now().UTC()

	if err = s.rooms.UpdateRoom(ctx, toPersistenceRoom(room)); err != nil {
		err = mapRoomRepoError(err)
		return
	}
	s.cache.Invalidate()
	return
}

// DeleteRoom removes an existing room. Bookings that used it keep their time
// but lose the room.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID string) error {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return fmt.Errorf("room repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteRoom", "room_id", roomID)

	if err := s.rooms.DeleteRoom(ctx, roomID); err != nil {
		err = mapRoomRepoError(err)
		logger.ErrorContext(ctx, "failed to delete room", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.cache.Invalidate()

	logger.InfoContext(ctx, "room deleted")
	return nil
}

// GetRoom returns a single room.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (Room, error) {
	if s == nil {
		return Room{}, fmt.Errorf("RoomService is nil")
	}
	if s.rooms == nil {
		return Room{}, fmt.Errorf("room repository not configured")
	}
	stored, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, mapRoomRepoError(err)
	}
	return toRoom(stored), nil
}

// ListRooms returns the catalog of rooms ordered by name.
func (s *RoomService) ListRooms(ctx context.Context) (rooms []Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListRooms")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(rooms)).DebugContext(ctx, "rooms listed")
	}()

	var raw []persistence.Room
	raw, err = s.rooms.ListRooms(ctx)
	if err != nil {
		return
	}

	rooms = make([]Room, 0, len(raw))
	for _, model := range raw {
		rooms = append(rooms, toRoom(model))
	}
	sortRoomsByName(rooms)
	return
}

// SearchRooms returns the rooms that can host a booking of the given size
// and amenities over [Start, End), plus the reasons every other room was excluded.
func (s *RoomService) SearchRooms(ctx context.Context, params SearchRoomsParams) (result RoomSearchResult, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.rooms == nil {
		err = fmt.Errorf("room repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SearchRooms", "capacity", params.Capacity)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to search rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("feasible", len(result.Feasible), "excluded", len(result.Excluded)).DebugContext(ctx, "rooms searched")
	}()

	vErr := &ValidationError{}
	interval, iErr := scheduler.NewInterval(params.Start, params.End)
	if iErr != nil {
		vErr.add("end", "end must be after start")
	}
	if params.Capacity < 0 {
		vErr.add("capacity", "capacity must not be negative")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var (
		roomModels    []persistence.Room
		bookingModels []persistence.Booking
	)
	from := interval.Start.Add(-allDaySlack)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roomModels, err = s.rooms.ListRooms(gctx)
		return err
	})
	if s.bookings != nil {
		g.Go(func() error {
			var err error
			bookingModels, err = s.bookings.ListBookings(gctx, persistence.BookingFilter{From: &from, To: &interval.End})
			return err
		})
	}
	if err = g.Wait(); err != nil {
		return
	}

	byRoom := make(map[string][]scheduler.Booking)
	for _, model := range bookingModels {
		if model.RoomID == nil {
			continue
		}
		var core scheduler.Booking
		core, err = coreBooking(toBooking(model))
		if err != nil {
			return
		}
		byRoom[*model.RoomID] = append(byRoom[*model.RoomID], core)
	}

	catalog := make(map[string]Room, len(roomModels))
	candidates := make([]scheduler.Room, 0, len(roomModels))
	for _, model := range roomModels {
		room := toRoom(model)
		catalog[room.ID] = room
		candidates = append(candidates, coreRoom(room, byRoom[room.ID]))
	}

	var feasibility scheduler.RoomFeasibility
	feasibility, err = scheduler.FilterRooms(candidates, interval, params.Capacity, params.Amenities)
	if err != nil {
		return
	}

	result.Feasible = make([]Room, 0, len(feasibility.Feasible))
	for _, room := range feasibility.Feasible {
		result.Feasible = append(result.Feasible, catalog[room.ID])
	}
	result.Excluded = make([]RoomExclusion, 0, len(feasibility.Excluded))
	for _, exclusion := range feasibility.Excluded {
		out := RoomExclusion{
			Room:             catalog[exclusion.Room.ID],
			MissingAmenities: exclusion.MissingAmenities,
		}
		for _, reason := range exclusion.Reasons {
			out.Reasons = append(out.Reasons, string(reason))
		}
		for _, blocking := range exclusion.Blocking {
			out.BlockingIDs = append(out.BlockingIDs, blocking.ID)
		}
		out.BlockingIDs = compactSorted(out.BlockingIDs)
		result.Excluded = append(result.Excluded, out)
	}
	return
}

func validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}

	return vErr
}

func mapRoomRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return fieldError("capacity", "capacity must be positive")
	}
	return err
}

// normalizeAmenities lowercases, trims and de-duplicates amenity names.
func normalizeAmenities(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return compactSorted(out)
}

func compactSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sort.Strings(values)
	out := values[:1]
	for _, value := range values[1:] {
		if value != out[len(out)-1] {
			out = append(out, value)
		}
	}
	return out
}

func sortRoomsByName(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if strings.EqualFold(rooms[i].Name, rooms[j].Name) {
			return rooms[i].ID < rooms[j].ID
		}
		return strings.ToLower(rooms[i].Name) < strings.ToLower(rooms[j].Name)
	})
}
