package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/crm-scheduler/internal/persistence"
	"github.com/example/crm-scheduler/internal/recurrence"
	"github.com/example/crm-scheduler/internal/scheduler"
)

// allDaySlack widens store queries so all-day rows, which are stored as dates
// rather than spans, are still loaded.
const allDaySlack = 24 * time.Hour

// BookingService orchestrates validation, conflict detection and persistence for bookings.
type BookingService struct {
	bookings    persistence.BookingRepository
	occurrences persistence.OccurrenceRepository
	cache       *ReportCache
	policy      Policy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	// writeMu serializes detect-then-write so two writes cannot both pass the check.
	writeMu sync.Mutex
}

// NewBookingService constructs a booking service with the default policy.
func NewBookingService(bookings persistence.BookingRepository, occurrences persistence.OccurrenceRepository, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, occurrences, nil, DefaultPolicy(), idGenerator, now, nil)
}

// NewBookingServiceWithLogger constructs a booking service with every dependency supplied.
func NewBookingServiceWithLogger(bookings persistence.BookingRepository, occurrences persistence.OccurrenceRepository, cache *ReportCache, policy Policy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		occurrences: occurrences,
		cache:       cache,
		policy:      policy.orDefault(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking validates input, checks it against stored bookings and persists it.
// A conflicting booking is rejected with *ConflictError unless Force is set, in
// which case the report is returned alongside the stored booking.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (result BookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateBooking", "force", params.Force)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", result.Booking.ID, "conflict_count", len(result.Report.Conflicts)).InfoContext(ctx, "booking created")
	}()

	booking, candidate, vErr := prepareBooking(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	booking.ID = s.idGenerator()
	candidate.ID = booking.ID

	result.Report, err = s.detect(ctx, candidate)
	if err != nil {
		return
	}
	if result.Report.HasConflicts && !params.Force {
		err = &ConflictError{Report: result.Report}
		return
	}

	booking.CreatedAt = s.now().UTC()
	booking.UpdatedAt = booking.CreatedAt
	if err = s.bookings.CreateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		err = mapBookingRepoError(err)
		return
	}
	s.cache.Invalidate()

	if err = s.refreshOccurrences(ctx, booking); err != nil {
		return
	}
	result.Booking = booking
	return
}

// UpdateBooking replaces an existing booking after re-running conflict detection.
func (s *BookingService) UpdateBooking(ctx context.Context, params UpdateBookingParams) (result BookingResult, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateBooking", "booking_id", params.BookingID, "force", params.Force)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("conflict_count", len(result.Report.Conflicts)).InfoContext(ctx, "booking updated")
	}()

	booking, candidate, vErr := prepareBooking(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var existing persistence.Booking
	existing, err = s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}

	booking.ID = existing.ID
	candidate.ID = existing.ID

	result.Report, err = s.detect(ctx, candidate)
	if err != nil {
		return
	}
	if result.Report.HasConflicts && !params.Force {
		err = &ConflictError{Report: result.Report}
		return
	}

	booking.CreatedAt = existing.CreatedAt
	booking.UpdatedAt = s.now().UTC()
	if err = s.bookings.UpdateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		err = mapBookingRepoError(err)
		return
	}
	s.cache.Invalidate()

	if err = s.refreshOccurrences(ctx, booking); err != nil {
		return
	}
	result.Booking = booking
	return
}

// CancelBooking marks a booking cancelled so it no longer takes part in conflicts.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID string) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CancelBooking", "booking_id", bookingID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to cancel booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking cancelled")
	}()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var stored persistence.Booking
	stored, err = s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		err = mapBookingRepoError(err)
		return
	}

	booking = toBooking(stored)
	if booking.Status == string(scheduler.StatusCancelled) {
		return
	}
	booking.Status = string(scheduler.StatusCancelled)
	booking.UpdatedAt = s.now().UTC()
	if err = s.bookings.UpdateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		err = mapBookingRepoError(err)
		return
	}
	s.cache.Invalidate()

	err = s.refreshOccurrences(ctx, booking)
	return
}

// DeleteBooking removes a booking and its materialized occurrences.
func (s *BookingService) DeleteBooking(ctx context.Context, bookingID string) error {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteBooking", "booking_id", bookingID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.bookings.DeleteBooking(ctx, bookingID); err != nil {
		err = mapBookingRepoError(err)
		logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.cache.Invalidate()

	logger.InfoContext(ctx, "booking deleted")
	return nil
}

// GetBooking returns a stored booking.
func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return Booking{}, fmt.Errorf("booking repository not configured")
	}
	stored, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapBookingRepoError(err)
	}
	return toBooking(stored), nil
}

// ListBookings returns bookings matching the filter ordered by start then ID.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) (bookings []Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListBookings")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(bookings)).DebugContext(ctx, "bookings listed")
	}()

	if params.From != nil && params.To != nil && !params.From.Before(*params.To) {
		err = fieldError("to", "to must be after from")
		return
	}

	var models []persistence.Booking
	models, err = s.bookings.ListBookings(ctx, persistence.BookingFilter{
		AttendeeIDs:      normalizeIDs(params.AttendeeIDs),
		RoomID:           strings.TrimSpace(params.RoomID),
		From:             params.From,
		To:               params.To,
		IncludeCancelled: params.IncludeCancelled,
	})
	if err != nil {
		return
	}

	bookings = make([]Booking, 0, len(models))
	for _, model := range models {
		bookings = append(bookings, toBooking(model))
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].Start.Equal(bookings[j].Start) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].Start.Before(bookings[j].Start)
	})
	return
}

// CheckConflicts reports what a candidate booking would conflict with, without saving it.
func (s *BookingService) CheckConflicts(ctx context.Context, params CheckConflictsParams) (report scheduler.ConflictReport, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CheckConflicts", "booking_id", params.BookingID)
	cached := false
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to check conflicts", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("conflict_count", len(report.Conflicts), "cached", cached).DebugContext(ctx, "conflicts checked")
	}()

	_, candidate, vErr := prepareBooking(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	candidate.ID = strings.TrimSpace(params.BookingID)

	key := cacheKey("conflicts", params)
	if value, ok := s.cache.get(key); ok {
		if hit, ok := value.(scheduler.ConflictReport); ok {
			cached = true
			report = cloneConflictReport(hit)
			return
		}
	}

	report, err = s.detect(ctx, candidate)
	if err != nil {
		return
	}
	s.cache.store(key, cloneConflictReport(report))
	return
}

// Occurrences expands a single booking into its instances overlapping [from, to).
func (s *BookingService) Occurrences(ctx context.Context, bookingID string, from, to time.Time) ([]Occurrence, error) {
	if !from.Before(to) {
		return nil, fieldError("to", "to must be after from")
	}
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	core, err := coreBooking(booking)
	if err != nil {
		return nil, err
	}
	instances, err := core.OccurrencesBetween(from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	window := scheduler.TimeInterval{Start: from.UTC(), End: to.UTC()}
	out := make([]Occurrence, 0, len(instances))
	for _, instance := range instances {
		span := instance.Span()
		if !span.Overlaps(window) {
			continue
		}
		out = append(out, Occurrence{BookingID: booking.ID, Index: instance.Sequence, Start: span.Start, End: span.End})
	}
	return out, nil
}

// ListOccurrences returns materialized recurring instances overlapping [from, to).
func (s *BookingService) ListOccurrences(ctx context.Context, from, to time.Time) ([]Occurrence, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if !from.Before(to) {
		return nil, fieldError("to", "to must be after from")
	}
	if s.occurrences == nil {
		return nil, nil
	}
	models, err := s.occurrences.ListOccurrences(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	out := make([]Occurrence, 0, len(models))
	for _, model := range models {
		out = append(out, Occurrence{BookingID: model.BookingID, Index: model.Index, Start: model.Start, End: model.End})
	}
	return out, nil
}

// MaterializeOccurrences refreshes the stored instances of every active
// recurring booking up to the policy's materialize horizon. It returns how
// many bookings were refreshed. Failures on individual bookings are logged
// and reported together after the sweep.
func (s *BookingService) MaterializeOccurrences(ctx context.Context) (refreshed int, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil || s.occurrences == nil {
		return 0, nil
	}

	logger := s.loggerWith(ctx, "MaterializeOccurrences")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "occurrence materialization incomplete", "error", err, "error_kind", ErrorKind(err), "refreshed", refreshed)
			return
		}
		logger.With("refreshed", refreshed).InfoContext(ctx, "occurrences materialized")
	}()

	from := s.now().UTC()
	to := from.Add(s.policy.MaterializeHorizon)
	var models []persistence.Booking
	models, err = s.bookings.ListBookings(ctx, persistence.BookingFilter{From: &from, To: &to})
	if err != nil {
		return
	}

	var failures []error
	for _, model := range models {
		if model.Recurrence == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			failures = append(failures, ctxErr)
			break
		}
		stored, rErr := s.materializeBooking(ctx, model.ID)
		if rErr != nil {
			logger.WarnContext(ctx, "failed to materialize booking", "booking_id", model.ID, "error", rErr)
			failures = append(failures, fmt.Errorf("booking %s: %w", model.ID, rErr))
			continue
		}
		if stored {
			refreshed++
		}
	}
	err = errors.Join(failures...)
	return
}

// materializeBooking refreshes one booking from its current stored state under
// the write lock, so a sweep never restores instances that a concurrent update,
// cancel or delete has already replaced. It reports whether instances were
// stored.
func (s *BookingService) materializeBooking(ctx context.Context, bookingID string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stored, err := s.bookings.GetBooking(ctx, bookingID)
	if errors.Is(err, persistence.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	booking := toBooking(stored)
	if booking.Recurrence == nil || booking.Status == string(scheduler.StatusCancelled) {
		return false, nil
	}
	return true, s.refreshOccurrences(ctx, booking)
}

// refreshOccurrences rewrites the stored instances of one booking. Single and
// cancelled bookings have none.
func (s *BookingService) refreshOccurrences(ctx context.Context, booking Booking) error {
	if s.occurrences == nil {
		return nil
	}
	if booking.Recurrence == nil || booking.Status == string(scheduler.StatusCancelled) {
		return s.occurrences.DeleteOccurrencesForBooking(ctx, booking.ID)
	}

	core, err := coreBooking(booking)
	if err != nil {
		return err
	}
	from := s.now().UTC()
	instances, err := core.OccurrencesBetween(from, from.Add(s.policy.MaterializeHorizon))
	if err != nil {
		return err
	}

	rows := make([]persistence.Occurrence, 0, len(instances))
	for _, instance := range instances {
		span := instance.Span()
		rows = append(rows, persistence.Occurrence{BookingID: booking.ID, Index: instance.Sequence, Start: span.Start, End: span.End})
	}
	return s.occurrences.ReplaceOccurrences(ctx, booking.ID, rows)
}

// detect loads the bookings that share an attendee or the room with the
// candidate and runs series-aware conflict detection over them.
func (s *BookingService) detect(ctx context.Context, candidate scheduler.Booking) (scheduler.ConflictReport, error) {
	span := candidate.Span()
	horizon, err := s.seriesHorizon(candidate)
	if err != nil {
		return scheduler.ConflictReport{}, err
	}

	pool, err := s.loadPool(ctx, candidate.Attendees, candidate.RoomID, span.Start.Add(-allDaySlack), horizon)
	if err != nil {
		return scheduler.ConflictReport{}, err
	}
	return scheduler.DetectSeriesConflicts(candidate, pool, horizon, scheduler.DetectOptions{Thresholds: s.policy.Thresholds})
}

// seriesHorizon returns where conflict checks for candidate stop. Bounded
// series are checked through the end of their last instance. Open-ended series
// are checked for SeriesHorizon past their first start.
func (s *BookingService) seriesHorizon(candidate scheduler.Booking) (time.Time, error) {
	span := candidate.Span()
	if candidate.Recurrence == nil {
		return span.End, nil
	}
	if _, open := candidate.Recurrence.EndCondition().(recurrence.Never); open {
		return span.Start.Add(s.policy.SeriesHorizon), nil
	}
	instances, err := candidate.Occurrences(time.Time{})
	if err != nil {
		return time.Time{}, err
	}
	if len(instances) == 0 {
		return span.End, nil
	}
	return instances[len(instances)-1].Span().End, nil
}

// loadPool fetches attendee and room bookings concurrently and merges them by ID.
func (s *BookingService) loadPool(ctx context.Context, attendees []string, roomID string, from, to time.Time) ([]scheduler.Booking, error) {
	if s.bookings == nil || (len(attendees) == 0 && roomID == "") {
		return nil, nil
	}

	var byAttendee, byRoom []persistence.Booking
	g, gctx := errgroup.WithContext(ctx)
	if len(attendees) > 0 {
		g.Go(func() error {
			var err error
			byAttendee, err = s.bookings.ListBookings(gctx, persistence.BookingFilter{AttendeeIDs: attendees, From: &from, To: &to})
			return err
		})
	}
	if roomID != "" {
		g.Go(func() error {
			var err error
			byRoom, err = s.bookings.ListBookings(gctx, persistence.BookingFilter{RoomID: roomID, From: &from, To: &to})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(byAttendee)+len(byRoom))
	merged := make([]Booking, 0, len(byAttendee)+len(byRoom))
	for _, model := range append(byAttendee, byRoom...) {
		if _, ok := seen[model.ID]; ok {
			continue
		}
		seen[model.ID] = struct{}{}
		merged = append(merged, toBooking(model))
	}
	return coreBookings(merged)
}

// prepareBooking normalizes input and converts it into the detector's shape.
func prepareBooking(input BookingInput) (Booking, scheduler.Booking, *ValidationError) {
	vErr := &ValidationError{}

	booking := Booking{
		Title:     strings.TrimSpace(input.Title),
		Start:     input.Start.UTC(),
		End:       input.End.UTC(),
		AllDay:    input.AllDay,
		Status:    strings.ToLower(strings.TrimSpace(input.Status)),
		RoomID:    normalizeOptionalString(input.RoomID),
		Attendees: normalizeIDs(input.Attendees),
	}

	if booking.Title == "" {
		vErr.add("title", "title is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}

	status, err := scheduler.ParseStatus(booking.Status)
	if err != nil {
		vErr.add("status", "status must be confirmed, tentative or cancelled")
	}
	booking.Status = string(status)

	if input.Recurrence != nil {
		rec, rErr := normalizeRecurrence(*input.Recurrence)
		if rErr != nil {
			vErr.add("recurrence", rErr.Error())
		}
		booking.Recurrence = rec
	}

	if vErr.HasErrors() {
		return Booking{}, scheduler.Booking{}, vErr
	}

	candidate, err := coreBooking(booking)
	if err != nil {
		vErr.add("recurrence", err.Error())
		return Booking{}, scheduler.Booking{}, vErr
	}
	if err := candidate.Validate(); err != nil {
		if errors.Is(err, scheduler.ErrInvalidInterval) {
			vErr.add("end", "end must be after start")
		} else {
			vErr.add("recurrence", err.Error())
		}
		return Booking{}, scheduler.Booking{}, vErr
	}
	if booking.AllDay {
		// Stored as first day 00:00 through last day 23:59:59 so the row has a positive length.
		span := candidate.Span()
		booking.Start = span.Start
		booking.End = span.End.Add(-time.Second)
		candidate.Interval = scheduler.TimeInterval{Start: booking.Start, End: booking.End}
	}
	return booking, candidate, vErr
}

// normalizeRecurrence parses the rule and rewrites it in canonical RRULE form.
func normalizeRecurrence(input Recurrence) (*Recurrence, error) {
	rule, err := parseRecurrence(&input)
	if err != nil {
		return nil, err
	}
	text, err := recurrence.FormatRRule(*rule)
	if err != nil {
		return nil, err
	}
	exceptions := make([]string, 0, len(rule.Exceptions))
	for _, date := range rule.Exceptions {
		exceptions = append(exceptions, date.String())
	}
	sort.Strings(exceptions)
	return &Recurrence{
		RRule:         text,
		Exceptions:    exceptions,
		MonthOverflow: rule.MonthOverflow.String(),
	}, nil
}

func mapBookingRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return fieldError("room_id", "room does not exist")
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return fieldError("end", "end must be after start")
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
