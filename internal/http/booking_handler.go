package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/crm-scheduler/internal/application"
	"github.com/example/crm-scheduler/internal/scheduler"
)

type bookingService interface {
	CreateBooking(ctx context.Context, params application.CreateBookingParams) (application.BookingResult, error)
	UpdateBooking(ctx context.Context, params application.UpdateBookingParams) (application.BookingResult, error)
	CancelBooking(ctx context.Context, bookingID string) (application.Booking, error)
	DeleteBooking(ctx context.Context, bookingID string) error
	GetBooking(ctx context.Context, bookingID string) (application.Booking, error)
	ListBookings(ctx context.Context, params application.ListBookingsParams) ([]application.Booking, error)
	CheckConflicts(ctx context.Context, params application.CheckConflictsParams) (scheduler.ConflictReport, error)
	Occurrences(ctx context.Context, bookingID string, from, to time.Time) ([]application.Occurrence, error)
	ListOccurrences(ctx context.Context, from, to time.Time) ([]application.Occurrence, error)
}

type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	input, force, ok := h.decodeWrite(w, r, "Create")
	if !ok {
		return
	}

	result, err := h.service.CreateBooking(r.Context(), application.CreateBookingParams{Input: input, Force: force})
	if err != nil {
		h.log(r.Context(), "Create").ErrorContext(r.Context(), "booking creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "booking_id", result.Booking.ID).InfoContext(r.Context(), "booking created", "conflicts", len(result.Report.Conflicts))
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toBookingResultResponse(result))
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r, "Update")
	if !ok {
		return
	}
	input, force, ok := h.decodeWrite(w, r, "Update")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Update", "booking_id", bookingID)
	result, err := h.service.UpdateBooking(r.Context(), application.UpdateBookingParams{BookingID: bookingID, Input: input, Force: force})
	if err != nil {
		logger.ErrorContext(r.Context(), "booking update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking updated", "conflicts", len(result.Report.Conflicts))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toBookingResultResponse(result))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r, "Get")
	if !ok {
		return
	}
	booking, err := h.service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r, "Cancel")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Cancel", "booking_id", bookingID)
	booking, err := h.service.CancelBooking(r.Context(), bookingID)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r, "Delete")
	if !ok {
		return
	}
	logger := h.log(r.Context(), "Delete", "booking_id", bookingID)
	if err := h.service.DeleteBooking(r.Context(), bookingID); err != nil {
		logger.ErrorContext(r.Context(), "booking delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "booking deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := buildListParams(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	logger := h.log(r.Context(), "List")
	bookings, err := h.service.ListBookings(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(bookings)).InfoContext(r.Context(), "bookings listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listBookingsResponse{Bookings: toBookingDTOs(bookings)})
}

// CheckConflicts reports the conflicts a candidate booking would have
// without saving it.
func (h *BookingHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req conflictCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "CheckConflicts", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode conflict check", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.Booking.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	report, err := h.service.CheckConflicts(r.Context(), application.CheckConflictsParams{
		BookingID: strings.TrimSpace(req.BookingID),
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReportDTO(report))
}

// Occurrences expands one booking over the from/to query window.
func (h *BookingHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := h.bookingID(w, r, "Occurrences")
	if !ok {
		return
	}
	from, to, err := requiredWindow(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	occurrences, err := h.service.Occurrences(r.Context(), bookingID, from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listOccurrencesResponse{Occurrences: toOccurrenceDTOs(occurrences)})
}

// ListOccurrences returns the materialized instances in the from/to query window.
func (h *BookingHandler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	from, to, err := requiredWindow(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	occurrences, err := h.service.ListOccurrences(r.Context(), from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listOccurrencesResponse{Occurrences: toOccurrenceDTOs(occurrences)})
}

func (h *BookingHandler) bookingID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	bookingID, ok := BookingIDFromContext(r.Context())
	if !ok || strings.TrimSpace(bookingID) == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing booking id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return "", false
	}
	return bookingID, true
}

func (h *BookingHandler) decodeWrite(w http.ResponseWriter, r *http.Request, operation string) (application.BookingInput, bool, bool) {
	force, err := parseBool(r.URL.Query(), "force")
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return application.BookingInput{}, false, false
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode booking request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.BookingInput{}, false, false
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return application.BookingInput{}, false, false
	}
	return input, force, true
}

type recurrenceDTO struct {
	RRule         string   `json:"rrule"`
	Exceptions    []string `json:"exceptions,omitempty"`
	MonthOverflow string   `json:"month_overflow,omitempty"`
}

type bookingRequest struct {
	Title       string         `json:"title"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	AllDay      bool           `json:"all_day"`
	Status      string         `json:"status"`
	RoomID      *string        `json:"room_id"`
	AttendeeIDs []string       `json:"attendee_ids"`
	Recurrence  *recurrenceDTO `json:"recurrence"`
}

func (r bookingRequest) toInput() (application.BookingInput, error) {
	start, err := parseTime("start", r.Start)
	if err != nil {
		return application.BookingInput{}, err
	}
	end, err := parseTime("end", r.End)
	if err != nil {
		return application.BookingInput{}, err
	}

	input := application.BookingInput{
		Title:     strings.TrimSpace(r.Title),
		Start:     start,
		End:       end,
		AllDay:    r.AllDay,
		Status:    strings.ToLower(strings.TrimSpace(r.Status)),
		RoomID:    r.RoomID,
		Attendees: append([]string(nil), r.AttendeeIDs...),
	}
	if r.Recurrence != nil {
		input.Recurrence = &application.Recurrence{
			RRule:         strings.TrimSpace(r.Recurrence.RRule),
			Exceptions:    append([]string(nil), r.Recurrence.Exceptions...),
			MonthOverflow: strings.TrimSpace(r.Recurrence.MonthOverflow),
		}
	}
	return input, nil
}

type conflictCheckRequest struct {
	// BookingID names the stored booking being edited, if any.
	BookingID string         `json:"booking_id"`
	Booking   bookingRequest `json:"booking"`
}

// parseTime reads an RFC 3339 timestamp. An empty value yields the zero time
// so that service validation can report the missing field.
func parseTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", field)
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type bookingResultResponse struct {
	Booking bookingDTO `json:"booking"`
	Report  reportDTO  `json:"report"`
}

type listBookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

type listOccurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type bookingDTO struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	AllDay      bool           `json:"all_day"`
	Status      string         `json:"status"`
	RoomID      *string        `json:"room_id,omitempty"`
	AttendeeIDs []string       `json:"attendee_ids"`
	Recurrence  *recurrenceDTO `json:"recurrence,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

func toBookingDTO(booking application.Booking) bookingDTO {
	dto := bookingDTO{
		ID:          booking.ID,
		Title:       booking.Title,
		Start:       booking.Start.UTC().Format(time.RFC3339),
		End:         booking.End.UTC().Format(time.RFC3339),
		AllDay:      booking.AllDay,
		Status:      booking.Status,
		RoomID:      booking.RoomID,
		AttendeeIDs: append([]string{}, booking.Attendees...),
		CreatedAt:   booking.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   booking.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if booking.Recurrence != nil {
		dto.Recurrence = &recurrenceDTO{
			RRule:         booking.Recurrence.RRule,
			Exceptions:    append([]string(nil), booking.Recurrence.Exceptions...),
			MonthOverflow: booking.Recurrence.MonthOverflow,
		}
	}
	return dto
}

func toBookingDTOs(bookings []application.Booking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bookings))
	for _, booking := range bookings {
		out = append(out, toBookingDTO(booking))
	}
	return out
}

func toBookingResultResponse(result application.BookingResult) bookingResultResponse {
	return bookingResultResponse{Booking: toBookingDTO(result.Booking), Report: toReportDTO(result.Report)}
}

type reportDTO struct {
	HasConflicts bool          `json:"has_conflicts"`
	Conflicts    []conflictDTO `json:"conflicts"`
}

type conflictDTO struct {
	BookingID       string   `json:"booking_id"`
	Title           string   `json:"title"`
	Start           string   `json:"start"`
	End             string   `json:"end"`
	OverlapMinutes  float64  `json:"overlap_minutes"`
	Severity        string   `json:"severity"`
	SharedAttendees []string `json:"shared_attendees,omitempty"`
	SameRoom        bool     `json:"same_room"`
}

func toReportDTO(report scheduler.ConflictReport) reportDTO {
	out := reportDTO{HasConflicts: report.HasConflicts, Conflicts: make([]conflictDTO, 0, len(report.Conflicts))}
	for _, conflict := range report.Conflicts {
		span := conflict.Booking.Span()
		out.Conflicts = append(out.Conflicts, conflictDTO{
			BookingID:       conflict.Booking.ID,
			Title:           conflict.Booking.Title,
			Start:           span.Start.UTC().Format(time.RFC3339),
			End:             span.End.UTC().Format(time.RFC3339),
			OverlapMinutes:  conflict.OverlapMinutes(),
			Severity:        conflict.Severity.String(),
			SharedAttendees: append([]string(nil), conflict.SharedAttendees...),
			SameRoom:        conflict.SameRoom,
		})
	}
	return out
}

type occurrenceDTO struct {
	BookingID string `json:"booking_id"`
	Index     int    `json:"index"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func toOccurrenceDTOs(occurrences []application.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occurrence := range occurrences {
		out = append(out, occurrenceDTO{
			BookingID: occurrence.BookingID,
			Index:     occurrence.Index,
			Start:     occurrence.Start.UTC().Format(time.RFC3339),
			End:       occurrence.End.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func buildListParams(values url.Values) (application.ListBookingsParams, error) {
	params := application.ListBookingsParams{
		AttendeeIDs: parseCSV(values.Get("attendees")),
		RoomID:      strings.TrimSpace(values.Get("room_id")),
	}

	var err error
	if params.From, err = parseOptionalTime(values, "from"); err != nil {
		return params, err
	}
	if params.To, err = parseOptionalTime(values, "to"); err != nil {
		return params, err
	}
	if params.IncludeCancelled, err = parseBool(values, "include_cancelled"); err != nil {
		return params, err
	}
	return params, nil
}

func requiredWindow(values url.Values) (time.Time, time.Time, error) {
	from, err := parseOptionalTime(values, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseOptionalTime(values, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == nil || to == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to are required")
	}
	return *from, *to, nil
}

func parseOptionalTime(values url.Values, key string) (*time.Time, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	ts, err := parseTime(key, raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func parseBool(values url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", key)
	}
	return v, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
