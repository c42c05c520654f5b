package statustrack

import (
	"time"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
)

// Stats is the aggregate view of an instance's status history over a window.
// SecondsByStatus values always sum to TotalSeconds.
type Stats struct {
	WindowStart     time.Time        `json:"window_start"`
	WindowEnd       time.Time        `json:"window_end"`
	TotalSeconds    int64            `json:"total_seconds"`
	SecondsByStatus map[string]int64 `json:"seconds_by_status"`
	UptimeSeconds   int64            `json:"uptime_seconds"`
	UptimePercent   float64          `json:"uptime_percent"`
	Segments        []Period         `json:"segments,omitempty"`
}

// Aggregator computes read-only status statistics from the event ledger.
type Aggregator struct {
	repo     Repository
	billable BillableSet
}

// NewAggregator creates an aggregator over the given ledger repository.
func NewAggregator(repo Repository, billable BillableSet) *Aggregator {
	return &Aggregator{repo: repo, billable: billable}
}

// ComputeStats reconstructs the instance's status periods over the requested
// window and aggregates them. The window start is clipped to the instance's
// creation time; a window that ends before the instance existed yields
// all-zero stats rather than an error.
func (a *Aggregator) ComputeStats(inst *models.BotInstance, windowStart, windowEnd time.Time, includeSegments bool) (*Stats, error) {
	if inst == nil {
		return nil, apperr.New(apperr.KindNotFound, "instance is nil")
	}
	if windowEnd.Before(windowStart) {
		return nil, apperr.New(apperr.KindValidation, "window end precedes window start")
	}

	if windowStart.Before(inst.CreatedAt) {
		windowStart = inst.CreatedAt
	}
	if !windowStart.Before(windowEnd) {
		return &Stats{
			WindowStart:     windowStart,
			WindowEnd:       windowEnd,
			SecondsByStatus: map[string]int64{},
		}, nil
	}

	events, err := a.repo.EventsInWindow(inst.ID, windowStart, windowEnd)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "load status events", err)
	}
	startStatus, err := StartingStatus(a.repo, inst, windowStart)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "resolve starting status", err)
	}

	periods := BuildPeriods(events, windowStart, windowEnd, startStatus)

	stats := &Stats{
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		TotalSeconds:    int64(windowEnd.Sub(windowStart) / time.Second),
		SecondsByStatus: make(map[string]int64, len(periods)),
	}
	for _, p := range periods {
		secs := p.Seconds()
		stats.SecondsByStatus[string(p.Status)] += secs
		if a.billable.Contains(p.Status) {
			stats.UptimeSeconds += secs
		}
	}
	if stats.TotalSeconds > 0 {
		stats.UptimePercent = float64(stats.UptimeSeconds) / float64(stats.TotalSeconds) * 100.0
	}
	if includeSegments {
		stats.Segments = periods
	}
	return stats, nil
}
