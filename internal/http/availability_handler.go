package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/crm-scheduler/internal/application"
	"github.com/example/crm-scheduler/internal/availability"
)

type availabilityService interface {
	FindTime(ctx context.Context, params application.FindTimeParams) (application.FindTimeResult, error)
}

type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	logger    *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, responder: newResponder(base), logger: base}
}

// FindTime answers POST /availability with the day's grid and ranked windows.
func (h *AvailabilityHandler) FindTime(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req findTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlerLogger(r.Context(), h.logger, "AvailabilityHandler", "FindTime", "error_kind", "bad_request").
			ErrorContext(r.Context(), "failed to decode availability request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.FindTime(r.Context(), req.toParams())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toFindTimeResponse(result))
}

type findTimeRequest struct {
	MemberIDs          []string `json:"member_ids"`
	Date               string   `json:"date"`
	Timezone           string   `json:"timezone"`
	DayStart           string   `json:"day_start"`
	DayEnd             string   `json:"day_end"`
	DurationMinutes    int      `json:"duration_minutes"`
	GranularityMinutes int      `json:"granularity_minutes"`
	QuorumRatio        float64  `json:"quorum_ratio"`
	MaxResults         int      `json:"max_results"`
}

func (r findTimeRequest) toParams() application.FindTimeParams {
	return application.FindTimeParams{
		MemberIDs:   append([]string(nil), r.MemberIDs...),
		Date:        r.Date,
		Timezone:    r.Timezone,
		DayStart:    r.DayStart,
		DayEnd:      r.DayEnd,
		Duration:    time.Duration(r.DurationMinutes) * time.Minute,
		Granularity: time.Duration(r.GranularityMinutes) * time.Minute,
		QuorumRatio: r.QuorumRatio,
		MaxResults:  r.MaxResults,
	}
}

type findTimeResponse struct {
	Grid            gridDTO             `json:"grid"`
	Recommendations []recommendationDTO `json:"recommendations"`
}

type gridDTO struct {
	Date               string    `json:"date"`
	Timezone           string    `json:"timezone"`
	GranularityMinutes int       `json:"granularity_minutes"`
	TotalCount         int       `json:"total_count"`
	Slots              []slotDTO `json:"slots"`
}

type slotDTO struct {
	Start          string            `json:"start"`
	End            string            `json:"end"`
	AvailableCount int               `json:"available_count"`
	TotalCount     int               `json:"total_count"`
	BestForMeeting bool              `json:"best_for_meeting"`
	Members        []memberStatusDTO `json:"members"`
}

type memberStatusDTO struct {
	MemberID  string `json:"member_id"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type recommendationDTO struct {
	Start            string   `json:"start"`
	End              string   `json:"end"`
	MinAvailable     int      `json:"min_available"`
	TotalCount       int      `json:"total_count"`
	AvailableMembers []string `json:"available_members"`
}

func toFindTimeResponse(result application.FindTimeResult) findTimeResponse {
	loc := result.Grid.Location
	if loc == nil {
		loc = time.UTC
	}

	grid := gridDTO{
		Date:               result.Grid.Date.String(),
		Timezone:           loc.String(),
		GranularityMinutes: int(result.Grid.Granularity / time.Minute),
		TotalCount:         result.Grid.TotalCount,
		Slots:              make([]slotDTO, 0, len(result.Grid.Slots)),
	}
	for _, slot := range result.Grid.Slots {
		grid.Slots = append(grid.Slots, toSlotDTO(slot, loc))
	}

	recs := make([]recommendationDTO, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		recs = append(recs, recommendationDTO{
			Start:            rec.Start.In(loc).Format(time.RFC3339),
			End:              rec.End.In(loc).Format(time.RFC3339),
			MinAvailable:     rec.MinAvailable,
			TotalCount:       rec.TotalCount,
			AvailableMembers: append([]string{}, rec.AvailableMembers...),
		})
	}
	return findTimeResponse{Grid: grid, Recommendations: recs}
}

func toSlotDTO(slot availability.Slot, loc *time.Location) slotDTO {
	members := make([]memberStatusDTO, 0, len(slot.Members))
	for _, status := range slot.Members {
		members = append(members, memberStatusDTO{
			MemberID:  status.MemberID,
			Available: status.Available,
			Reason:    string(status.Reason),
		})
	}
	return slotDTO{
		Start:          slot.Interval.Start.In(loc).Format(time.RFC3339),
		End:            slot.Interval.End.In(loc).Format(time.RFC3339),
		AvailableCount: slot.AvailableCount,
		TotalCount:     slot.TotalCount,
		BestForMeeting: slot.BestForMeeting,
		Members:        members,
	}
}
