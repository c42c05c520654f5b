package statustrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bothive/bothive/app/models"
)

var windowStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func event(id uint64, offset time.Duration, to models.InstanceStatus) models.StatusEvent {
	return models.StatusEvent{
		ID:         id,
		InstanceID: 1,
		ToStatus:   to,
		ChangedAt:  windowStart.Add(offset),
	}
}

// assertPartition checks the core reconstruction invariant: the periods cover
// [start, end) exactly, in order, with no gaps or overlaps.
func assertPartition(t *testing.T, periods []Period, start, end time.Time) {
	t.Helper()
	require.NotEmpty(t, periods)
	assert.Equal(t, start, periods[0].Start)
	assert.Equal(t, end, periods[len(periods)-1].End)
	for i := 1; i < len(periods); i++ {
		assert.Equal(t, periods[i-1].End, periods[i].Start, "gap or overlap at period %d", i)
	}
}

func TestBuildPeriodsNoEvents(t *testing.T) {
	end := windowStart.Add(24 * time.Hour)

	periods := BuildPeriods(nil, windowStart, end, models.StatusActive)

	require.Len(t, periods, 1)
	assert.Equal(t, Period{Start: windowStart, End: end, Status: models.StatusActive}, periods[0])
}

func TestBuildPeriodsSplitsAtEvents(t *testing.T) {
	end := windowStart.Add(24 * time.Hour)
	events := []models.StatusEvent{
		event(1, 6*time.Hour, models.StatusPaused),
		event(2, 18*time.Hour, models.StatusActive),
	}

	periods := BuildPeriods(events, windowStart, end, models.StatusActive)

	require.Len(t, periods, 3)
	assertPartition(t, periods, windowStart, end)
	assert.Equal(t, models.StatusActive, periods[0].Status)
	assert.Equal(t, models.StatusPaused, periods[1].Status)
	assert.Equal(t, models.StatusActive, periods[2].Status)
	assert.Equal(t, int64(6*3600), periods[0].Seconds())
	assert.Equal(t, int64(12*3600), periods[1].Seconds())
	assert.Equal(t, int64(6*3600), periods[2].Seconds())
}

func TestBuildPeriodsIgnoresEventsAtOrPastWindowEnd(t *testing.T) {
	end := windowStart.Add(24 * time.Hour)
	events := []models.StatusEvent{
		event(1, 12*time.Hour, models.StatusPaused),
		event(2, 24*time.Hour, models.StatusError),
		event(3, 30*time.Hour, models.StatusActive),
	}

	periods := BuildPeriods(events, windowStart, end, models.StatusActive)

	require.Len(t, periods, 2)
	assertPartition(t, periods, windowStart, end)
	assert.Equal(t, models.StatusPaused, periods[1].Status)
}

func TestBuildPeriodsEqualTimestampsLastEventWins(t *testing.T) {
	// Two transitions at the same instant: the higher ledger sequence is the
	// one that holds afterwards, and no empty period is emitted.
	end := windowStart.Add(2 * time.Hour)
	at := 1 * time.Hour
	events := []models.StatusEvent{
		event(1, at, models.StatusPaused),
		event(2, at, models.StatusError),
	}

	periods := BuildPeriods(events, windowStart, end, models.StatusActive)

	require.Len(t, periods, 2)
	assertPartition(t, periods, windowStart, end)
	assert.Equal(t, models.StatusActive, periods[0].Status)
	assert.Equal(t, models.StatusError, periods[1].Status)
}

func TestBuildPeriodsEventAtWindowStartAdoptsStatus(t *testing.T) {
	end := windowStart.Add(1 * time.Hour)
	events := []models.StatusEvent{
		event(1, 0, models.StatusPaused),
	}

	periods := BuildPeriods(events, windowStart, end, models.StatusActive)

	require.Len(t, periods, 1)
	assert.Equal(t, models.StatusPaused, periods[0].Status)
}

func TestBuildPeriodsUnknownStatusString(t *testing.T) {
	end := windowStart.Add(2 * time.Hour)
	events := []models.StatusEvent{
		event(1, time.Hour, models.InstanceStatus("hibernating")),
	}

	periods := BuildPeriods(events, windowStart, end, models.StatusActive)

	require.Len(t, periods, 2)
	assert.Equal(t, models.StatusUnknown, periods[1].Status)
}

func TestBillableSeconds(t *testing.T) {
	end := windowStart.Add(24 * time.Hour)
	events := []models.StatusEvent{
		event(1, 12*time.Hour, models.StatusPaused),
	}
	periods := BuildPeriods(events, windowStart, end, models.StatusActive)

	billable := NewBillableSet()
	assert.Equal(t, int64(43200), BillableSeconds(periods, billable))

	both := NewBillableSet(models.StatusActive, models.StatusPaused)
	assert.Equal(t, int64(86400), BillableSeconds(periods, both))
}

func TestNewBillableSetDefaultsToActive(t *testing.T) {
	set := NewBillableSet()
	assert.True(t, set.Contains(models.StatusActive))
	assert.False(t, set.Contains(models.StatusPaused))
}
