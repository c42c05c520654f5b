package statustrack

import (
	"time"

	"github.com/bothive/bothive/app/models"
)

// Period is one contiguous slice of time during which an instance held a
// single status.
type Period struct {
	Start  time.Time             `json:"start"`
	End    time.Time             `json:"end"`
	Status models.InstanceStatus `json:"status"`
}

// Seconds returns the whole-second duration of the period.
func (p Period) Seconds() int64 {
	return int64(p.End.Sub(p.Start) / time.Second)
}

// BuildPeriods replays status events over [windowStart, windowEnd) and returns
// the resulting periods: pairwise disjoint, ascending, and covering the window
// exactly. Events must be ordered by (changed_at, id) ascending.
//
// startStatus is the status valid at windowStart; with zero events the whole
// window is a single period at that status.
func BuildPeriods(events []models.StatusEvent, windowStart, windowEnd time.Time, startStatus models.InstanceStatus) []Period {
	periods := make([]Period, 0, len(events)+1)
	cursor := windowStart
	status := startStatus

	for _, ev := range events {
		t := ev.ChangedAt
		if !t.Before(windowEnd) {
			break
		}
		if !t.After(cursor) {
			// No time elapsed since the cursor: adopt the status without
			// emitting an empty period. With equal timestamps the event with
			// the higher ledger sequence wins.
			status = models.ParseInstanceStatus(string(ev.ToStatus))
			continue
		}
		periods = append(periods, Period{Start: cursor, End: t, Status: status})
		status = models.ParseInstanceStatus(string(ev.ToStatus))
		cursor = t
	}

	if cursor.Before(windowEnd) {
		periods = append(periods, Period{Start: cursor, End: windowEnd, Status: status})
	}
	return periods
}

// BillableSet is the configured set of statuses whose elapsed time counts
// toward uptime and charging.
type BillableSet map[models.InstanceStatus]struct{}

// NewBillableSet builds a set from status values; with none given it defaults
// to active only.
func NewBillableSet(statuses ...models.InstanceStatus) BillableSet {
	if len(statuses) == 0 {
		statuses = []models.InstanceStatus{models.StatusActive}
	}
	set := make(BillableSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Contains reports whether the status is billable.
func (b BillableSet) Contains(s models.InstanceStatus) bool {
	_, ok := b[s]
	return ok
}

// BillableSeconds sums the duration of billable periods.
func BillableSeconds(periods []Period, billable BillableSet) int64 {
	var total int64
	for _, p := range periods {
		if billable.Contains(p.Status) {
			total += p.Seconds()
		}
	}
	return total
}
