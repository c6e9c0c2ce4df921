package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/crm-scheduler/internal/persistence"
)

// MemberRepository implements persistence.MemberRepository using SQLite
type MemberRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewMemberRepository creates a new SQLite member repository
func NewMemberRepository(pool *ConnectionPool) *MemberRepository {
	return &MemberRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const memberColumns = `id, display_name, email, timezone, work_start, work_end, working_days, created_at, updated_at`

// CreateMember inserts a new roster member
func (r *MemberRepository) CreateMember(ctx context.Context, member persistence.Member) error {
	if strings.TrimSpace(member.ID) == "" {
		return persistence.ErrConstraintViolation
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	if member.UpdatedAt.IsZero() {
		member.UpdatedAt = member.CreatedAt
	}

	_, err := r.helper.Exec(ctx, `INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.DisplayName,
		strings.ToLower(strings.TrimSpace(member.Email)),
		member.Timezone,
		member.WorkStart,
		member.WorkEnd,
		encodeWeekdays(member.WorkingDays),
		formatTime(member.CreatedAt),
		formatTime(member.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateMember replaces a member's profile and working hours
func (r *MemberRepository) UpdateMember(ctx context.Context, member persistence.Member) error {
	if strings.TrimSpace(member.ID) == "" {
		return persistence.ErrNotFound
	}
	if member.UpdatedAt.IsZero() {
		member.UpdatedAt = time.Now().UTC()
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE members
		SET display_name = ?, email = ?, timezone = ?, work_start = ?, work_end = ?, working_days = ?, updated_at = ?
		WHERE id = ?`,
		member.DisplayName,
		strings.ToLower(strings.TrimSpace(member.Email)),
		member.Timezone,
		member.WorkStart,
		member.WorkEnd,
		encodeWeekdays(member.WorkingDays),
		formatTime(member.UpdatedAt),
		member.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetMember retrieves a member by ID
func (r *MemberRepository) GetMember(ctx context.Context, id string) (persistence.Member, error) {
	if id == "" {
		return persistence.Member{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	member, err := scanMember(row)
	if err != nil {
		return persistence.Member{}, r.mapper.MapError(err)
	}
	return member, nil
}

// ListMembers returns all members ordered by display name then ID
func (r *MemberRepository) ListMembers(ctx context.Context) ([]persistence.Member, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY display_name ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var members []persistence.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return members, nil
}

// DeleteMember removes a member and their attendance on bookings
func (r *MemberRepository) DeleteMember(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_attendees WHERE attendee_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireAffected(result)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (persistence.Member, error) {
	var (
		member               persistence.Member
		workingDays          int64
		createdAt, updatedAt string
	)
	err := row.Scan(
		&member.ID,
		&member.DisplayName,
		&member.Email,
		&member.Timezone,
		&member.WorkStart,
		&member.WorkEnd,
		&workingDays,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Member{}, err
	}
	member.WorkingDays = decodeWeekdays(workingDays)
	if member.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Member{}, err
	}
	if member.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Member{}, err
	}
	return member, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
