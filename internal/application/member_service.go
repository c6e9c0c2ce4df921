package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/example/crm-scheduler/internal/availability"
	"github.com/example/crm-scheduler/internal/persistence"
)

// MemberService manages the roster used by availability scans.
type MemberService struct {
	members     persistence.MemberRepository
	cache       *ReportCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMemberService constructs a member service with the provided dependencies.
func NewMemberService(members persistence.MemberRepository, idGenerator func() string, now func() time.Time) *MemberService {
	return NewMemberServiceWithLogger(members, nil, idGenerator, now, nil)
}

// NewMemberServiceWithLogger constructs a member service with a specified logger and cache.
func NewMemberServiceWithLogger(members persistence.MemberRepository, cache *ReportCache, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MemberService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MemberService{members: members, cache: cache, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *MemberService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MemberService", operation, attrs...)
}

// CreateMember validates input and persists a new member.
func (s *MemberService) CreateMember(ctx context.Context, input MemberInput) (member Member, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateMember")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("member_id", member.ID).InfoContext(ctx, "member created")
	}()

	member, vErr := normalizeMemberInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	member.ID = s.idGenerator()
	member.CreatedAt = s.now().UTC()
	member.UpdatedAt = member.CreatedAt

	if s.members == nil {
		return
	}
	if err = s.members.CreateMember(ctx, toPersistenceMember(member)); err != nil {
		err = mapMemberRepoError(err)
		return
	}
	s.cache.Invalidate()
	return
}

// UpdateMember validates input and replaces an existing member's profile.
func (s *MemberService) UpdateMember(ctx context.Context, params UpdateMemberParams) (member Member, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}
	if s.members == nil {
		err = fmt.Errorf("member repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateMember", "member_id", params.MemberID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member updated")
	}()

	var existing persistence.Member
	existing, err = s.members.GetMember(ctx, params.MemberID)
	if err != nil {
		err = mapMemberRepoError(err)
		return
	}

	member, vErr := normalizeMemberInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	member.ID = existing.ID
	member.CreatedAt = existing.CreatedAt
	member.UpdatedAt = s.now().UTC()

	if err = s.members.UpdateMember(ctx, toPersistenceMember(member)); err != nil {
		err = mapMemberRepoError(err)
		return
	}
	s.cache.Invalidate()
	return
}

// DeleteMember removes a member and their booking attendance.
func (s *MemberService) DeleteMember(ctx context.Context, memberID string) error {
	if s == nil {
		return fmt.Errorf("MemberService is nil")
	}
	if s.members == nil {
		return fmt.Errorf("member repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteMember", "member_id", memberID)
	if err := s.members.DeleteMember(ctx, memberID); err != nil {
		err = mapMemberRepoError(err)
		logger.ErrorContext(ctx, "failed to delete member", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.cache.Invalidate()

	logger.InfoContext(ctx, "member deleted")
	return nil
}

// GetMember returns a single member.
func (s *MemberService) GetMember(ctx context.Context, memberID string) (Member, error) {
	if s == nil {
		return Member{}, fmt.Errorf("MemberService is nil")
	}
	if s.members == nil {
		return Member{}, fmt.Errorf("member repository not configured")
	}
	stored, err := s.members.GetMember(ctx, memberID)
	if err != nil {
		return Member{}, mapMemberRepoError(err)
	}
	return toMember(stored), nil
}

// ListMembers returns the roster ordered by display name.
func (s *MemberService) ListMembers(ctx context.Context) (members []Member, err error) {
	if s == nil {
		err = fmt.Errorf("MemberService is nil")
		return
	}
	if s.members == nil {
		return nil, nil
	}

	var raw []persistence.Member
	raw, err = s.members.ListMembers(ctx)
	if err != nil {
		s.loggerWith(ctx, "ListMembers").ErrorContext(ctx, "failed to list members", "error", err, "error_kind", ErrorKind(err))
		return
	}

	members = make([]Member, 0, len(raw))
	for _, model := range raw {
		members = append(members, toMember(model))
	}
	sort.Slice(members, func(i, j int) bool {
		if strings.EqualFold(members[i].DisplayName, members[j].DisplayName) {
			return members[i].ID < members[j].ID
		}
		return strings.ToLower(members[i].DisplayName) < strings.ToLower(members[j].DisplayName)
	})
	return
}

// normalizeMemberInput trims input and checks it can take part in a grid scan.
func normalizeMemberInput(input MemberInput) (Member, *ValidationError) {
	vErr := &ValidationError{}

	member := Member{
		DisplayName: strings.TrimSpace(input.DisplayName),
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		Timezone:    strings.TrimSpace(input.Timezone),
		WorkStart:   strings.TrimSpace(input.WorkStart),
		WorkEnd:     strings.TrimSpace(input.WorkEnd),
		WorkingDays: uniqueWeekdays(input.WorkingDays),
	}
	if member.Timezone == "" {
		member.Timezone = "UTC"
	}

	if member.DisplayName == "" {
		vErr.add("display_name", "display name is required")
	}
	if member.Email != "" {
		if _, err := mail.ParseAddress(member.Email); err != nil {
			vErr.add("email", "email is invalid")
		}
	}

	if _, err := time.LoadLocation(member.Timezone); err != nil {
		vErr.add("timezone", "timezone is not a known IANA zone")
	}
	for _, day := range member.WorkingDays {
		if day < time.Sunday || day > time.Saturday {
			vErr.add("working_days", "working days must be between Sunday and Saturday")
			break
		}
	}

	start, err := availability.ParseClock(member.WorkStart)
	if err != nil {
		vErr.add("work_start", "work start must be HH:MM")
	}
	end, err := availability.ParseClock(member.WorkEnd)
	if err != nil {
		vErr.add("work_end", "work end must be HH:MM")
	} else if end.Minutes() <= start.Minutes() {
		vErr.add("work_end", "working hours must end after they start on the same day")
	}
	if vErr.HasErrors() {
		return Member{}, vErr
	}

	// Keep the canonical HH:MM spelling.
	member.WorkStart = start.String()
	member.WorkEnd = end.String()
	return member, vErr
}

func uniqueWeekdays(days []time.Weekday) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func mapMemberRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return fieldError("display_name", "display name is required")
	}
	return err
}
