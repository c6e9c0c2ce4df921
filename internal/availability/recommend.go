package availability

import (
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultQuorumRatio is the share of members a recommended window needs.
	DefaultQuorumRatio = 0.6
	// DefaultMaxResults caps the number of recommendations.
	DefaultMaxResults = 5
)

// RecommendOptions tunes Recommend. Zero values select the defaults.
type RecommendOptions struct {
	QuorumRatio float64
	MaxResults  int
}

// RecommendedSlot is a contiguous run of grid slots that meets the quorum.
type RecommendedSlot struct {
	Start        time.Time
	End          time.Time
	MinAvailable int
	TotalCount   int
	// AvailableMembers are free in every slot of the window.
	AvailableMembers []string
}

// Recommend slides a window of ceil(duration/granularity) slots across the
// grid and returns the windows whose minimum availability reaches
// ceil(quorum*total), best first. An empty roster yields no windows.
func Recommend(grid Grid, duration time.Duration, opts RecommendOptions) ([]RecommendedSlot, error) {
	if opts.QuorumRatio == 0 {
		opts.QuorumRatio = DefaultQuorumRatio
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = DefaultMaxResults
	}
	switch {
	case duration <= 0:
		return nil, fmt.Errorf("%w: meeting duration must be positive", ErrInvalidOptions)
	case grid.Granularity <= 0:
		return nil, fmt.Errorf("%w: grid has no granularity", ErrInvalidOptions)
	case !validRatio(opts.QuorumRatio):
		return nil, fmt.Errorf("%w: quorum ratio %v must be in (0, 1]", ErrInvalidOptions, opts.QuorumRatio)
	case opts.MaxResults < 0:
		return nil, fmt.Errorf("%w: max results must be positive", ErrInvalidOptions)
	}

	results := make([]RecommendedSlot, 0)
	if grid.TotalCount == 0 {
		return results, nil
	}

	width := int((duration + grid.Granularity - 1) / grid.Granularity)
	if width > len(grid.Slots) {
		return results, nil
	}
	need := quorum(opts.QuorumRatio, grid.TotalCount)

	for i := 0; i+width <= len(grid.Slots); i++ {
		window := grid.Slots[i : i+width]
		lowest := window[0].AvailableCount
		for _, slot := range window[1:] {
			lowest = min(lowest, slot.AvailableCount)
		}
		if lowest < need {
			continue
		}
		results = append(results, RecommendedSlot{
			Start:            window[0].Interval.Start,
			End:              window[width-1].Interval.End,
			MinAvailable:     lowest,
			TotalCount:       grid.TotalCount,
			AvailableMembers: freeThroughout(window),
		})
	}

	slices.SortStableFunc(results, func(a, b RecommendedSlot) int {
		if a.MinAvailable != b.MinAvailable {
			return b.MinAvailable - a.MinAvailable
		}
		return a.Start.Compare(b.Start)
	})
	if len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	return results, nil
}

func freeThroughout(window []Slot) []string {
	free := make([]string, 0, len(window[0].Members))
	for idx, status := range window[0].Members {
		available := status.Available
		for _, slot := range window[1:] {
			if !available {
				break
			}
			available = slot.Members[idx].Available
		}
		if available {
			free = append(free, status.MemberID)
		}
	}
	slices.Sort(free)
	return free
}
