package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/crm-scheduler/internal/availability"
	"github.com/example/crm-scheduler/internal/persistence"
	"github.com/example/crm-scheduler/internal/recurrence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

// AvailabilityService answers "find a time" questions over the stored roster and bookings.
type AvailabilityService struct {
	members  persistence.MemberRepository
	bookings persistence.BookingRepository
	cache    *ReportCache
	policy   Policy
	logger   *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(members persistence.MemberRepository, bookings persistence.BookingRepository, cache *ReportCache, policy Policy, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{
		members:  members,
		bookings: bookings,
		cache:    cache,
		policy:   policy.orDefault(),
		logger:   defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// FindTime builds the availability grid for the requested members on one day
// and ranks the windows long enough for the meeting. An empty member list
// scans the whole roster.
func (s *AvailabilityService) FindTime(ctx context.Context, params FindTimeParams) (result FindTimeResult, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}
	if s.members == nil {
		err = fmt.Errorf("member repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "FindTime", "date", params.Date, "member_count", len(params.MemberIDs))
	cached := false
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to find time", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("recommendations", len(result.Recommendations), "cached", cached).InfoContext(ctx, "availability computed")
	}()

	req, vErr := s.gridRequest(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	opts := availability.RecommendOptions{QuorumRatio: s.policy.QuorumRatio, MaxResults: s.policy.MaxResults}
	if params.QuorumRatio != 0 {
		opts.QuorumRatio = params.QuorumRatio
	}
	if params.MaxResults != 0 {
		opts.MaxResults = params.MaxResults
	}

	key := cacheKey("availability", params)
	if value, ok := s.cache.get(key); ok {
		if hit, ok := value.(FindTimeResult); ok {
			cached = true
			result = cloneFindTimeResult(hit)
			return
		}
	}

	ids := normalizeIDs(params.MemberIDs)
	windowStart := req.DayStart.On(req.Date.Year, req.Date.Month, req.Date.Day, req.Location)
	windowEnd := req.DayEnd.On(req.Date.Year, req.Date.Month, req.Date.Day, req.Location)
	from := windowStart.Add(-allDaySlack)

	var (
		memberModels  []persistence.Member
		bookingModels []persistence.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		memberModels, err = s.members.ListMembers(gctx)
		return err
	})
	if s.bookings != nil {
		g.Go(func() error {
			var err error
			bookingModels, err = s.bookings.ListBookings(gctx, persistence.BookingFilter{AttendeeIDs: ids, From: &from, To: &windowEnd})
			return err
		})
	}
	if err = g.Wait(); err != nil {
		return
	}

	req.Members, err = selectMembers(memberModels, ids)
	if err != nil {
		return
	}
	req.Bookings, err = bookingsByAttendee(bookingModels)
	if err != nil {
		return
	}

	result.Grid, err = availability.BuildGrid(req)
	if err != nil {
		return
	}
	result.Recommendations, err = availability.Recommend(result.Grid, params.Duration, opts)
	if err != nil {
		return
	}
	s.cache.store(key, cloneFindTimeResult(result))
	return
}

func (s *AvailabilityService) gridRequest(params FindTimeParams) (availability.GridRequest, *ValidationError) {
	vErr := &ValidationError{}
	req := availability.GridRequest{
		Granularity: s.policy.Granularity,
		GoodRatio:   s.policy.GoodRatio,
		Location:    time.UTC,
		DayStart:    availability.Clock(0, 0),
		DayEnd:      availability.Clock(24, 0),
	}
	if params.Granularity != 0 {
		req.Granularity = params.Granularity
	}

	if params.Duration <= 0 {
		vErr.add("duration", "duration must be positive")
	}
	date, err := recurrence.ParseDate(params.Date)
	if err != nil {
		vErr.add("date", "date must be YYYY-MM-DD")
	}
	req.Date = date

	if tz := strings.TrimSpace(params.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			vErr.add("timezone", "timezone is not a known IANA zone")
		} else {
			req.Location = loc
		}
	}
	if strings.TrimSpace(params.DayStart) != "" {
		if req.DayStart, err = availability.ParseClock(params.DayStart); err != nil {
			vErr.add("day_start", "day start must be HH:MM")
		}
	}
	if strings.TrimSpace(params.DayEnd) != "" {
		if req.DayEnd, err = availability.ParseClock(params.DayEnd); err != nil {
			vErr.add("day_end", "day end must be HH:MM")
		}
	}
	return req, vErr
}

// selectMembers picks the requested members from the roster, or all of them
// when ids is empty.
func selectMembers(models []persistence.Member, ids []string) ([]availability.Member, error) {
	byID := make(map[string]persistence.Member, len(models))
	for _, model := range models {
		byID[model.ID] = model
	}

	if len(ids) == 0 {
		ids = make([]string, 0, len(models))
		for _, model := range models {
			ids = append(ids, model.ID)
		}
	}

	members := make([]availability.Member, 0, len(ids))
	var missing []string
	for _, id := range ids {
		model, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		member, err := coreMember(toMember(model))
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if len(missing) > 0 {
		return nil, fieldError("member_ids", "unknown members: "+strings.Join(missing, ", "))
	}
	return members, nil
}

func bookingsByAttendee(models []persistence.Booking) (map[string][]scheduler.Booking, error) {
	out := make(map[string][]scheduler.Booking)
	for _, model := range models {
		core, err := coreBooking(toBooking(model))
		if err != nil {
			return nil, err
		}
		for _, attendee := range core.Attendees {
			out[attendee] = append(out[attendee], core)
		}
	}
	return out, nil
}
