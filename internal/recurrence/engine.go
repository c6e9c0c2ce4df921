package recurrence

import (
	"fmt"
	"slices"
	"time"
)

// DefaultMaxOccurrences bounds a single expansion.
const DefaultMaxOccurrences = 5000

// maxIdlePeriods bounds how many consecutive periods may yield no candidate
// before a count-bounded rule is declared unsatisfiable.
const maxIdlePeriods = 1000

// GenerateOptions defines optional range bounds for occurrence generation.
type GenerateOptions struct {
	RangeStart *time.Time
	RangeEnd   *time.Time
}

// Occurrence represents one generated instance of a recurring booking.
type Occurrence struct {
	Index int
	Start time.Time
	End   time.Time
}

// Engine expands recurrence rules into concrete start times.
type Engine struct {
	location       *time.Location
	maxOccurrences int
}

// NewEngine constructs an Engine that performs calendar arithmetic in loc.
// If loc is nil, the anchor's own location is used.
func NewEngine(loc *time.Location) *Engine {
	return &Engine{location: loc, maxOccurrences: DefaultMaxOccurrences}
}

// WithMaxOccurrences returns a copy of the engine with a different safety cap.
func (e *Engine) WithMaxOccurrences(limit int) *Engine {
	clone := *e
	clone.maxOccurrences = limit
	return &clone
}

var defaultEngine = NewEngine(nil)

// Expand returns the start times produced by rule from anchor, stopping at the
// rule's end condition or horizon, whichever comes first. A zero horizon means
// no horizon.
func Expand(rule Rule, anchor, horizon time.Time) ([]time.Time, error) {
	return defaultEngine.Expand(rule, anchor, horizon)
}

// ExpandIntervals expands rule from the base interval [start, end) and keeps
// its duration for every occurrence. Results are in UTC.
func ExpandIntervals(rule Rule, start, end, horizon time.Time) ([]Occurrence, error) {
	return ExpandIntervalsFrom(rule, start, end, time.Time{}, horizon)
}

// ExpandIntervalsFrom is ExpandIntervals restricted to occurrences that end
// after from. Earlier occurrences still consume a Count end condition and keep
// their place in Index, but do not count against the occurrence cap. A zero
// from keeps every occurrence.
func ExpandIntervalsFrom(rule Rule, start, end, from, horizon time.Time) ([]Occurrence, error) {
	if !end.After(start) {
		return nil, ErrInvalidDuration
	}
	duration := end.Sub(start)
	var floor time.Time
	if !from.IsZero() {
		floor = from.Add(-duration)
	}
	starts, skipped, err := defaultEngine.expand(rule, start, floor, horizon)
	if err != nil {
		return nil, err
	}
	occurrences := make([]Occurrence, len(starts))
	for i, s := range starts {
		occurrences[i] = Occurrence{Index: skipped + i, Start: s.UTC(), End: s.Add(duration).UTC()}
	}
	return occurrences, nil
}

// Expand applies the engine to a single rule. See the package-level Expand.
func (e *Engine) Expand(rule Rule, anchor, horizon time.Time) ([]time.Time, error) {
	starts, _, err := e.expand(rule, anchor, time.Time{}, horizon)
	return starts, err
}

// expand emits the starts of rule after floor, up to horizon. Starts at or
// before floor are passed over and reported as skipped.
func (e *Engine) expand(rule Rule, anchor, floor, horizon time.Time) ([]time.Time, int, error) {
	if err := rule.Validate(); err != nil {
		return nil, 0, err
	}
	if anchor.IsZero() {
		return nil, 0, fmt.Errorf("%w: anchor is required", ErrInvalidRule)
	}

	var (
		count    int
		until    Date
		hasUntil bool
	)
	switch end := rule.EndCondition().(type) {
	case Never:
		if horizon.IsZero() {
			return nil, 0, ErrUnboundedRecurrence
		}
	case Count:
		count = end.N
	case Until:
		until = end.Date
		hasUntil = true
	}

	loc := e.locationFor(anchor)
	anchor = anchor.In(loc)
	limit := e.maxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	exceptions := rule.exceptionSet()
	periods := newPeriodIterator(rule, anchor)
	results := make([]time.Time, 0)
	skipped := 0
	idle := 0

	for {
		periodStart, candidates := periods.next()

		if !horizon.IsZero() && periodStart.After(horizon) {
			break
		}
		if hasUntil && DateOf(periodStart).After(until) {
			break
		}

		if len(candidates) == 0 {
			idle++
			if idle >= maxIdlePeriods {
				return nil, 0, fmt.Errorf("%w: rule never produces an occurrence", ErrInvalidRule)
			}
			continue
		}
		idle = 0

		done := false
		for _, candidate := range candidates {
			if candidate.Before(anchor) {
				continue
			}
			if !horizon.IsZero() && candidate.After(horizon) {
				done = true
				break
			}
			if hasUntil && DateOf(candidate).After(until) {
				done = true
				break
			}
			if _, skip := exceptions[DateOf(candidate)]; skip {
				continue
			}

			if !floor.IsZero() && !candidate.After(floor) {
				skipped++
			} else {
				results = append(results, candidate)
				if len(results) > limit {
					return nil, 0, fmt.Errorf("%w: more than %d occurrences", ErrTooManyOccurrences, limit)
				}
			}
			if count > 0 && skipped+len(results) >= count {
				done = true
				break
			}
		}
		if done {
			break
		}
	}

	slices.SortFunc(results, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(results, func(a, b time.Time) bool { return a.Equal(b) }), skipped, nil
}

// GenerateOccurrences expands rule from the base interval and filters the
// results to the optional range. RangeEnd acts as the expansion horizon and
// RangeStart drops occurrences that end at or before it without holding them
// against the occurrence cap.
func (e *Engine) GenerateOccurrences(rule Rule, baseStart, baseEnd time.Time, opts GenerateOptions) ([]Occurrence, error) {
	if !baseEnd.After(baseStart) {
		return nil, ErrInvalidDuration
	}
	duration := baseEnd.Sub(baseStart)

	var horizon, floor time.Time
	if opts.RangeEnd != nil {
		horizon = *opts.RangeEnd
	}
	if opts.RangeStart != nil {
		floor = opts.RangeStart.Add(-duration)
	}

	starts, skipped, err := e.expand(rule, baseStart, floor, horizon)
	if err != nil {
		return nil, err
	}

	occurrences := make([]Occurrence, 0, len(starts))
	for i, start := range starts {
		if opts.RangeEnd != nil && !start.Before(*opts.RangeEnd) {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			Index: skipped + i,
			Start: start.UTC(),
			End:   start.Add(duration).UTC(),
		})
	}
	return occurrences, nil
}

func (e *Engine) locationFor(anchor time.Time) *time.Location {
	if e != nil && e.location != nil {
		return e.location
	}
	return anchor.Location()
}

// periodIterator yields the candidates of successive periods in ascending order.
type periodIterator struct {
	rule     Rule
	anchor   time.Time
	weekdays []time.Weekday
	// firstWeek is 1 when the anchor falls after every selected weekday of its
	// own week, so the series starts from the following week.
	firstWeek int
	index     int
}

func newPeriodIterator(rule Rule, anchor time.Time) *periodIterator {
	it := &periodIterator{rule: rule, anchor: anchor}
	if rule.Frequency == FrequencyWeekly {
		it.weekdays = rule.weekdaySet(anchor.Weekday())
		if last := it.weekdays[len(it.weekdays)-1]; last < anchor.Weekday() {
			it.firstWeek = 1
		}
	}
	return it
}

func (it *periodIterator) next() (time.Time, []time.Time) {
	offset := it.index * it.rule.step()
	it.index++

	y, m, d := it.anchor.Date()
	switch it.rule.Frequency {
	case FrequencyDaily:
		day := it.at(y, m, d+offset)
		return midnight(day), []time.Time{day}
	case FrequencyWeekly:
		weekStart := d - int(it.anchor.Weekday()) + 7*(it.firstWeek+offset)
		candidates := make([]time.Time, 0, len(it.weekdays))
		for _, wd := range it.weekdays {
			candidates = append(candidates, it.at(y, m, weekStart+int(wd)))
		}
		return midnight(it.at(y, m, weekStart)), candidates
	case FrequencyMonthly:
		first := time.Date(y, m+time.Month(offset), 1, 0, 0, 0, 0, it.anchor.Location())
		return first, it.onMonthDay(first.Year(), first.Month())
	default:
		first := time.Date(y+offset, time.January, 1, 0, 0, 0, 0, it.anchor.Location())
		return first, it.onMonthDay(first.Year(), m)
	}
}

func (it *periodIterator) onMonthDay(year int, month time.Month) []time.Time {
	day := it.rule.MonthDay
	if day == 0 {
		day = it.anchor.Day()
	}
	if last := daysIn(year, month, it.anchor.Location()); day > last {
		if it.rule.MonthOverflow == MonthOverflowSkip {
			return nil
		}
		day = last
	}
	return []time.Time{it.at(year, month, day)}
}

func (it *periodIterator) at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, it.anchor.Hour(), it.anchor.Minute(), it.anchor.Second(), it.anchor.Nanosecond(), it.anchor.Location())
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
