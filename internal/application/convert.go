package application

import (
	"strings"

	"github.com/example/crm-scheduler/internal/availability"
	"github.com/example/crm-scheduler/internal/persistence"
	"github.com/example/crm-scheduler/internal/recurrence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

func toBooking(model persistence.Booking) Booking {
	booking := Booking{
		ID:        model.ID,
		Title:     model.Title,
		Start:     model.Start,
		End:       model.End,
		AllDay:    model.AllDay,
		Status:    model.Status,
		RoomID:    cloneString(model.RoomID),
		Attendees: append([]string(nil), model.Attendees...),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if model.Recurrence != nil {
		booking.Recurrence = &Recurrence{
			RRule:         model.Recurrence.RRule,
			Exceptions:    append([]string(nil), model.Recurrence.Exceptions...),
			MonthOverflow: model.Recurrence.MonthOverflow,
		}
	}
	return booking
}

func toPersistenceBooking(booking Booking) persistence.Booking {
	model := persistence.Booking{
		ID:        booking.ID,
		Title:     booking.Title,
		Start:     booking.Start,
		End:       booking.End,
		AllDay:    booking.AllDay,
		Status:    booking.Status,
		RoomID:    cloneString(booking.RoomID),
		Attendees: append([]string(nil), booking.Attendees...),
		CreatedAt: booking.CreatedAt,
		UpdatedAt: booking.UpdatedAt,
	}
	if booking.Recurrence != nil {
		model.Recurrence = &persistence.RecurrenceRule{
			RRule:         booking.Recurrence.RRule,
			Exceptions:    append([]string(nil), booking.Recurrence.Exceptions...),
			MonthOverflow: booking.Recurrence.MonthOverflow,
		}
	}
	return model
}

func toRoom(model persistence.Room) Room {
	return Room{
		ID:        model.ID,
		Name:      model.Name,
		Location:  model.Location,
		Capacity:  model.Capacity,
		Amenities: append([]string(nil), model.Amenities...),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceRoom(room Room) persistence.Room {
	return persistence.Room{
		ID:        room.ID,
		Name:      room.Name,
		Location:  room.Location,
		Capacity:  room.Capacity,
		Amenities: append([]string(nil), room.Amenities...),
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}

func toMember(model persistence.Member) Member {
	return Member{
		ID:          model.ID,
		DisplayName: model.DisplayName,
		Email:       model.Email,
		Timezone:    model.Timezone,
		WorkStart:   model.WorkStart,
		WorkEnd:     model.WorkEnd,
		WorkingDays: append(model.WorkingDays[:0:0], model.WorkingDays...),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceMember(member Member) persistence.Member {
	return persistence.Member{
		ID:          member.ID,
		DisplayName: member.DisplayName,
		Email:       member.Email,
		Timezone:    member.Timezone,
		WorkStart:   member.WorkStart,
		WorkEnd:     member.WorkEnd,
		WorkingDays: append(member.WorkingDays[:0:0], member.WorkingDays...),
		CreatedAt:   member.CreatedAt,
		UpdatedAt:   member.UpdatedAt,
	}
}

// parseRecurrence turns the stored text form into a core rule. A nil input
// yields a nil rule.
func parseRecurrence(input *Recurrence) (*recurrence.Rule, error) {
	if input == nil {
		return nil, nil
	}
	exceptions := make([]recurrence.Date, 0, len(input.Exceptions))
	for _, raw := range input.Exceptions {
		date, err := recurrence.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, date)
	}
	rule, err := recurrence.ParseRRule(input.RRule, exceptions)
	if err != nil {
		return nil, err
	}
	overflow, err := recurrence.ParseMonthOverflow(input.MonthOverflow)
	if err != nil {
		return nil, err
	}
	rule.MonthOverflow = overflow
	return &rule, nil
}

// coreBooking converts a booking into the shape the conflict detector works on.
func coreBooking(booking Booking) (scheduler.Booking, error) {
	status, err := scheduler.ParseStatus(booking.Status)
	if err != nil {
		return scheduler.Booking{}, err
	}
	rule, err := parseRecurrence(booking.Recurrence)
	if err != nil {
		return scheduler.Booking{}, err
	}
	core := scheduler.Booking{
		ID:         booking.ID,
		Title:      booking.Title,
		Interval:   scheduler.TimeInterval{Start: booking.Start.UTC(), End: booking.End.UTC()},
		AllDay:     booking.AllDay,
		Recurrence: rule,
		Attendees:  append([]string(nil), booking.Attendees...),
		Status:     status,
	}
	if booking.RoomID != nil {
		core.RoomID = *booking.RoomID
	}
	return core, nil
}

func coreBookings(bookings []Booking) ([]scheduler.Booking, error) {
	out := make([]scheduler.Booking, 0, len(bookings))
	for _, booking := range bookings {
		core, err := coreBooking(booking)
		if err != nil {
			return nil, err
		}
		out = append(out, core)
	}
	return out, nil
}

func coreMember(member Member) (availability.Member, error) {
	start, err := availability.ParseClock(member.WorkStart)
	if err != nil {
		return availability.Member{}, err
	}
	end, err := availability.ParseClock(member.WorkEnd)
	if err != nil {
		return availability.Member{}, err
	}
	return availability.Member{
		ID:          member.ID,
		Timezone:    member.Timezone,
		WorkStart:   start,
		WorkEnd:     end,
		WorkingDays: append(member.WorkingDays[:0:0], member.WorkingDays...),
	}, nil
}

func coreRoom(room Room, bookings []scheduler.Booking) scheduler.Room {
	return scheduler.Room{
		ID:        room.ID,
		Name:      room.Name,
		Capacity:  room.Capacity,
		Amenities: append([]string(nil), room.Amenities...),
		Bookings:  bookings,
	}
}

// normalizeIDs trims, drops blanks and removes duplicates while keeping order.
func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
