package scheduler

import (
	"cmp"
	"slices"
	"strings"
)

// Room is a bookable space with its own booking pool.
type Room struct {
	ID        string
	Name      string
	Capacity  int
	Amenities []string
	Bookings  []Booking
}

// ExclusionReason explains why a room cannot host a booking.
type ExclusionReason string

const (
	// ReasonCapacity means the room seats fewer people than requested.
	ReasonCapacity ExclusionReason = "capacity"
	// ReasonUnavailable means an active booking overlaps the requested interval.
	ReasonUnavailable ExclusionReason = "unavailable"
	// ReasonMissingAmenities means at least one required amenity is absent.
	ReasonMissingAmenities ExclusionReason = "missing_amenities"
)

// RoomExclusion lists every reason a room was filtered out.
type RoomExclusion struct {
	Room    Room
	Reasons []ExclusionReason
	// Blocking holds the active room bookings that overlap the candidate interval.
	Blocking []Booking
	// MissingAmenities holds the requested amenities the room lacks.
	MissingAmenities []string
}

// RoomFeasibility splits a roster into usable and excluded rooms.
type RoomFeasibility struct {
	Feasible []Room
	Excluded []RoomExclusion
}

// FilterRooms keeps rooms that seat at least capacity people, offer every
// requested amenity, and have no active booking overlapping interval by any
// positive amount. Feasible rooms are ordered by smallest sufficient capacity,
// then id. Excluded rooms are ordered by id.
func FilterRooms(rooms []Room, interval TimeInterval, capacity int, amenities []string) (RoomFeasibility, error) {
	if err := interval.Validate(); err != nil {
		return RoomFeasibility{}, err
	}
	interval = interval.UTC()
	required := normalizedSet(amenities)

	result := RoomFeasibility{Feasible: make([]Room, 0), Excluded: make([]RoomExclusion, 0)}
	for _, room := range rooms {
		var exclusion RoomExclusion

		if room.Capacity < capacity {
			exclusion.Reasons = append(exclusion.Reasons, ReasonCapacity)
		}

		for _, booking := range room.Bookings {
			if !booking.Active() {
				continue
			}
			instances, err := booking.OccurrencesBetween(interval.Start, interval.End)
			if err != nil {
				return RoomFeasibility{}, err
			}
			for _, instance := range instances {
				if instance.Span().Overlaps(interval) {
					exclusion.Blocking = append(exclusion.Blocking, instance)
				}
			}
		}
		if len(exclusion.Blocking) > 0 {
			exclusion.Reasons = append(exclusion.Reasons, ReasonUnavailable)
		}

		if missing := missingAmenities(required, room.Amenities); len(missing) > 0 {
			exclusion.Reasons = append(exclusion.Reasons, ReasonMissingAmenities)
			exclusion.MissingAmenities = missing
		}

		if len(exclusion.Reasons) == 0 {
			result.Feasible = append(result.Feasible, room)
			continue
		}
		exclusion.Room = room
		result.Excluded = append(result.Excluded, exclusion)
	}

	slices.SortStableFunc(result.Feasible, func(a, b Room) int {
		if c := cmp.Compare(a.Capacity, b.Capacity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortStableFunc(result.Excluded, func(a, b RoomExclusion) int {
		return strings.Compare(a.Room.ID, b.Room.ID)
	})
	return result, nil
}

func missingAmenities(required map[string]struct{}, offered []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := normalizedSet(offered)
	var missing []string
	for amenity := range required {
		if _, ok := have[amenity]; !ok {
			missing = append(missing, amenity)
		}
	}
	slices.Sort(missing)
	return missing
}
