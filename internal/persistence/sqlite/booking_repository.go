package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/crm-scheduler/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const bookingColumns = `b.id, b.title, b.start_at, b.end_at, b.all_day, b.status, b.room_id, b.rrule, b.exdates, b.month_overflow, b.created_at, b.updated_at`

// CreateBooking inserts a booking with its attendees
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if err := validateBooking(booking); err != nil {
		return err
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now().UTC()
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		rrule, exdates, overflow := recurrenceColumns(booking.Recurrence)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (id, title, start_at, end_at, all_day, status, room_id, rrule, exdates, month_overflow, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			booking.ID,
			booking.Title,
			formatTime(booking.Start),
			formatTime(booking.End),
			booking.AllDay,
			statusOrDefault(booking.Status),
			nullString(booking.RoomID),
			rrule,
			exdates,
			overflow,
			formatTime(booking.CreatedAt),
			formatTime(booking.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return r.replaceAttendees(ctx, tx, booking.ID, booking.Attendees)
	})
}

// UpdateBooking replaces a booking's fields, attendees and recurrence
func (r *BookingRepository) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	if strings.TrimSpace(booking.ID) == "" {
		return persistence.ErrNotFound
	}
	if err := validateBooking(booking); err != nil {
		return err
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = time.Now().UTC()
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		rrule, exdates, overflow := recurrenceColumns(booking.Recurrence)
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET title = ?, start_at = ?, end_at = ?, all_day = ?, status = ?, room_id = ?,
			    rrule = ?, exdates = ?, month_overflow = ?, updated_at = ?
			WHERE id = ?`,
			booking.Title,
			formatTime(booking.Start),
			formatTime(booking.End),
			booking.AllDay,
			statusOrDefault(booking.Status),
			nullString(booking.RoomID),
			rrule,
			exdates,
			overflow,
			formatTime(booking.UpdatedAt),
			booking.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return r.replaceAttendees(ctx, tx, booking.ID, booking.Attendees)
	})
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	bookings, err := r.queryBookings(ctx, `WHERE b.id = ?`, []any{id})
	if err != nil {
		return persistence.Booking{}, err
	}
	if len(bookings) == 0 {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return bookings[0], nil
}

// ListBookings returns bookings matching filter ordered by start then ID
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	where, args := buildBookingFilter(filter)
	return r.queryBookings(ctx, where, args)
}

// DeleteBooking removes a booking with its attendees and occurrences
func (r *BookingRepository) DeleteBooking(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

func validateBooking(booking persistence.Booking) error {
	if strings.TrimSpace(booking.ID) == "" || !booking.End.After(booking.Start) {
		return persistence.ErrConstraintViolation
	}
	if booking.Recurrence != nil && strings.TrimSpace(booking.Recurrence.RRule) == "" {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func statusOrDefault(status string) string {
	if status == "" {
		return "confirmed"
	}
	return status
}

func recurrenceColumns(rule *persistence.RecurrenceRule) (sql.NullString, string, string) {
	if rule == nil {
		return sql.NullString{}, "", ""
	}
	return sql.NullString{String: rule.RRule, Valid: true}, joinList(rule.Exceptions), rule.MonthOverflow
}

func (r *BookingRepository) replaceAttendees(ctx context.Context, tx *sql.Tx, bookingID string, attendees []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_attendees WHERE booking_id = ?`, bookingID); err != nil {
		return r.mapper.MapError(err)
	}
	for _, attendee := range uniqueTrimmed(attendees) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_attendees (booking_id, attendee_id) VALUES (?, ?)`, bookingID, attendee); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

// buildBookingFilter turns filter into a WHERE clause. Recurring bookings
// can have instances anywhere after their first start, so only the upper
// bound applies to them.
func buildBookingFilter(filter persistence.BookingFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if !filter.IncludeCancelled {
		conditions = append(conditions, `b.status <> 'cancelled'`)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, `b.room_id = ?`)
		args = append(args, filter.RoomID)
	}
	if attendees := uniqueTrimmed(filter.AttendeeIDs); len(attendees) > 0 {
		conditions = append(conditions, `EXISTS (SELECT 1 FROM booking_attendees a WHERE a.booking_id = b.id AND a.attendee_id IN (`+placeholders(len(attendees))+`))`)
		for _, id := range attendees {
			args = append(args, id)
		}
	}
	if filter.To != nil {
		conditions = append(conditions, `b.start_at < ?`)
		args = append(args, formatTime(*filter.To))
	}
	if filter.From != nil {
		conditions = append(conditions, `(b.rrule IS NOT NULL OR b.end_at > ?)`)
		args = append(args, formatTime(*filter.From))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *BookingRepository) queryBookings(ctx context.Context, where string, args []any) ([]persistence.Booking, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+bookingColumns+` FROM bookings b `+where+` ORDER BY b.start_at ASC, b.id ASC`, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var bookings []persistence.Booking
	index := make(map[string]int)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, r.mapper.MapError(err)
		}
		index[booking.ID] = len(bookings)
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	if len(bookings) == 0 {
		return bookings, nil
	}
	ids := make([]any, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	attendeeRows, err := r.helper.Query(ctx, `
		SELECT booking_id, attendee_id FROM booking_attendees
		WHERE booking_id IN (`+placeholders(len(ids))+`)
		ORDER BY booking_id ASC, attendee_id ASC`, ids...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer attendeeRows.Close()
	for attendeeRows.Next() {
		var bookingID, attendee string
		if err := attendeeRows.Scan(&bookingID, &attendee); err != nil {
			return nil, r.mapper.MapError(err)
		}
		i := index[bookingID]
		bookings[i].Attendees = append(bookings[i].Attendees, attendee)
	}
	if err := attendeeRows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking                            persistence.Booking
		startAt, endAt, createdAt, updated string
		roomID, rrule                      sql.NullString
		exdates, overflow                  string
	)
	err := row.Scan(
		&booking.ID,
		&booking.Title,
		&startAt,
		&endAt,
		&booking.AllDay,
		&booking.Status,
		&roomID,
		&rrule,
		&exdates,
		&overflow,
		&createdAt,
		&updated,
	)
	if err != nil {
		return persistence.Booking{}, err
	}
	booking.RoomID = stringPtr(roomID)
	if rrule.Valid {
		booking.Recurrence = &persistence.RecurrenceRule{
			RRule:         rrule.String,
			Exceptions:    splitList(exdates),
			MonthOverflow: overflow,
		}
	}
	for _, ts := range []struct {
		column string
		value  string
		dest   *time.Time
	}{
		{"start_at", startAt, &booking.Start},
		{"end_at", endAt, &booking.End},
		{"created_at", createdAt, &booking.CreatedAt},
		{"updated_at", updated, &booking.UpdatedAt},
	} {
		if *ts.dest, err = parseTime(ts.column, ts.value); err != nil {
			return persistence.Booking{}, err
		}
	}
	return booking, nil
}
