package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/crm-scheduler/internal/persistence"
)

// OccurrenceRepository implements persistence.OccurrenceRepository using SQLite
type OccurrenceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewOccurrenceRepository creates a new SQLite occurrence repository
func NewOccurrenceRepository(pool *ConnectionPool) *OccurrenceRepository {
	return &OccurrenceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// ReplaceOccurrences swaps the stored instances of a booking in one transaction
func (r *OccurrenceRepository) ReplaceOccurrences(ctx context.Context, bookingID string, occurrences []persistence.Occurrence) error {
	if bookingID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_occurrences WHERE booking_id = ?`, bookingID); err != nil {
			return r.mapper.MapError(err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO booking_occurrences (booking_id, occurrence_index, start_at, end_at)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer stmt.Close()

		for _, occ := range occurrences {
			if !occ.End.After(occ.Start) {
				return persistence.ErrConstraintViolation
			}
			if _, err := stmt.ExecContext(ctx, bookingID, occ.Index, formatTime(occ.Start), formatTime(occ.End)); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// ListOccurrences returns stored instances overlapping [from, to)
func (r *OccurrenceRepository) ListOccurrences(ctx context.Context, from, to time.Time) ([]persistence.Occurrence, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT booking_id, occurrence_index, start_at, end_at
		FROM booking_occurrences
		WHERE start_at < ? AND end_at > ?
		ORDER BY start_at ASC, booking_id ASC, occurrence_index ASC`,
		formatTime(to), formatTime(from))
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var occurrences []persistence.Occurrence
	for rows.Next() {
		var (
			occ        persistence.Occurrence
			start, end string
		)
		if err := rows.Scan(&occ.BookingID, &occ.Index, &start, &end); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if occ.Start, err = parseTime("start_at", start); err != nil {
			return nil, err
		}
		if occ.End, err = parseTime("end_at", end); err != nil {
			return nil, err
		}
		occurrences = append(occurrences, occ)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return occurrences, nil
}

// DeleteOccurrencesForBooking drops every stored instance of a booking
func (r *OccurrenceRepository) DeleteOccurrencesForBooking(ctx context.Context, bookingID string) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM booking_occurrences WHERE booking_id = ?`, bookingID)
	return r.mapper.MapError(err)
}
