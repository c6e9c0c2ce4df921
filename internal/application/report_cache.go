package application

import (
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/blake2b"

	"github.com/example/crm-scheduler/internal/scheduler"
)

const (
	defaultReportCacheSize = 256
	defaultReportCacheTTL  = 30 * time.Second
)

// ReportCache stores recently computed conflict reports and availability
// results so identical requests skip the detector while data is unchanged.
// Any write through a service purges it.
type ReportCache struct {
	entries *expirable.LRU[string, any]
}

// NewReportCache constructs a cache bounded by size entries, each living for ttl.
func NewReportCache(size int, ttl time.Duration) *ReportCache {
	if size <= 0 {
		size = defaultReportCacheSize
	}
	if ttl <= 0 {
		ttl = defaultReportCacheTTL
	}
	return &ReportCache{entries: expirable.NewLRU[string, any](size, nil, ttl)}
}

func (c *ReportCache) get(key string) (any, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *ReportCache) store(key string, value any) {
	if c == nil || key == "" {
		return
	}
	c.entries.Add(key, value)
}

// Invalidate drops every cached entry.
func (c *ReportCache) Invalidate() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len reports the number of live entries.
func (c *ReportCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// cacheKey fingerprints a request. An empty key disables caching for it.
func cacheKey(kind string, request any) string {
	payload, err := json.Marshal(request)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(append([]byte(kind+"|"), payload...))
	return hex.EncodeToString(sum[:])
}

// Cached values are copied on the way in and out so callers never share
// slices with a cache entry.

func cloneConflictReport(report scheduler.ConflictReport) scheduler.ConflictReport {
	out := scheduler.ConflictReport{HasConflicts: report.HasConflicts, Conflicts: slices.Clone(report.Conflicts)}
	for i := range out.Conflicts {
		out.Conflicts[i].SharedAttendees = slices.Clone(out.Conflicts[i].SharedAttendees)
		out.Conflicts[i].Booking.Attendees = slices.Clone(out.Conflicts[i].Booking.Attendees)
	}
	return out
}

func cloneFindTimeResult(result FindTimeResult) FindTimeResult {
	out := FindTimeResult{Grid: result.Grid, Recommendations: slices.Clone(result.Recommendations)}
	out.Grid.Slots = slices.Clone(result.Grid.Slots)
	for i := range out.Grid.Slots {
		out.Grid.Slots[i].Members = slices.Clone(out.Grid.Slots[i].Members)
	}
	for i := range out.Recommendations {
		out.Recommendations[i].AvailableMembers = slices.Clone(out.Recommendations[i].AvailableMembers)
	}
	return out
}
