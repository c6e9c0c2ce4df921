package scheduler

import (
	"slices"
	"strings"
	"time"
)

// Conflict details an overlapping booking that callers can present to users.
type Conflict struct {
	Booking         Booking
	Overlap         time.Duration
	Severity        Severity
	SharedAttendees []string
	SameRoom        bool
}

// OverlapMinutes returns the overlap length in minutes.
func (c Conflict) OverlapMinutes() float64 {
	return c.Overlap.Minutes()
}

// HasSharedAttendees reports whether any attendee is booked on both sides.
func (c Conflict) HasSharedAttendees() bool {
	return len(c.SharedAttendees) > 0
}

// ConflictReport is the full result of a conflict check.
type ConflictReport struct {
	HasConflicts bool
	Conflicts    []Conflict
}

// DetectOptions tunes DetectConflicts.
type DetectOptions struct {
	// RoomID overrides the candidate's room when set.
	RoomID     string
	Thresholds Thresholds
}

// DetectConflicts reports every active booking in existing that overlaps the
// candidate. Bookings sharing the candidate's id are ignored so that an edit
// does not conflict with its own stored version.
func DetectConflicts(candidate Booking, existing []Booking, opts DetectOptions) (ConflictReport, error) {
	if err := candidate.Validate(); err != nil {
		return ConflictReport{}, err
	}
	thresholds := opts.Thresholds.orDefault()
	if err := thresholds.Validate(); err != nil {
		return ConflictReport{}, err
	}

	roomID := candidate.RoomID
	if opts.RoomID != "" {
		roomID = opts.RoomID
	}
	span := candidate.Span()
	attendees := normalizedSet(candidate.Attendees)

	conflicts := make([]Conflict, 0)
	for _, other := range existing {
		if !other.Active() {
			continue
		}
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		overlap := ClassifyWith(span, other.Span(), thresholds)
		if overlap.Severity == SeverityNone {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Booking:         other,
			Overlap:         overlap.Duration,
			Severity:        overlap.Severity,
			SharedAttendees: sharedAttendees(attendees, other.Attendees),
			SameRoom:        roomID != "" && other.RoomID == roomID,
		})
	}

	sortConflicts(conflicts)
	return ConflictReport{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}, nil
}

// DetectSeriesConflicts expands recurring candidates and existing bookings up
// to horizon and checks every candidate instance. An existing instance that
// overlaps several candidate instances is reported once, at its highest
// severity.
func DetectSeriesConflicts(candidate Booking, existing []Booking, horizon time.Time, opts DetectOptions) (ConflictReport, error) {
	if err := candidate.Validate(); err != nil {
		return ConflictReport{}, err
	}
	instances, err := candidate.Occurrences(horizon)
	if err != nil {
		return ConflictReport{}, err
	}

	if len(instances) == 0 {
		return ConflictReport{Conflicts: make([]Conflict, 0)}, nil
	}
	from := instances[0].Span().Start
	pool := make([]Booking, 0, len(existing))
	for _, other := range existing {
		if !other.Active() || (candidate.ID != "" && other.ID == candidate.ID) {
			continue
		}
		expanded, err := other.OccurrencesBetween(from, horizon)
		if err != nil {
			return ConflictReport{}, err
		}
		pool = append(pool, expanded...)
	}

	type key struct {
		id    string
		start int64
	}
	merged := make(map[key]int)
	conflicts := make([]Conflict, 0)
	for _, instance := range instances {
		report, err := DetectConflicts(instance, pool, opts)
		if err != nil {
			return ConflictReport{}, err
		}
		for _, c := range report.Conflicts {
			k := key{id: c.Booking.ID, start: c.Booking.Interval.Start.UnixNano()}
			if idx, seen := merged[k]; seen {
				if c.Severity > conflicts[idx].Severity || (c.Severity == conflicts[idx].Severity && c.Overlap > conflicts[idx].Overlap) {
					conflicts[idx] = c
				}
				continue
			}
			merged[k] = len(conflicts)
			conflicts = append(conflicts, c)
		}
	}

	sortConflicts(conflicts)
	return ConflictReport{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}, nil
}

func sortConflicts(conflicts []Conflict) {
	slices.SortStableFunc(conflicts, func(a, b Conflict) int {
		if a.Severity != b.Severity {
			return int(b.Severity) - int(a.Severity)
		}
		if c := a.Booking.Span().Start.Compare(b.Booking.Span().Start); c != 0 {
			return c
		}
		return strings.Compare(a.Booking.ID, b.Booking.ID)
	})
}

func normalizedSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if norm := normalizeID(id); norm != "" {
			set[norm] = struct{}{}
		}
	}
	return set
}

func sharedAttendees(set map[string]struct{}, ids []string) []string {
	if len(set) == 0 {
		return nil
	}
	var shared []string
	for _, id := range ids {
		norm := normalizeID(id)
		if _, ok := set[norm]; ok {
			shared = append(shared, norm)
		}
	}
	slices.Sort(shared)
	return slices.Compact(shared)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
