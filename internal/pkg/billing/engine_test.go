package billing

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/statustrack"
)

// fakeLedger is an in-memory statustrack.Repository for engine tests.
type fakeLedger struct {
	events []models.StatusEvent
}

func (f *fakeLedger) EventsInWindow(instanceID uint, start, end time.Time) ([]models.StatusEvent, error) {
	var out []models.StatusEvent
	for _, ev := range f.events {
		if ev.InstanceID == instanceID && !ev.ChangedAt.Before(start) && ev.ChangedAt.Before(end) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out, nil
}

func (f *fakeLedger) LatestEventAtOrBefore(instanceID uint, at time.Time) (*models.StatusEvent, error) {
	var best *models.StatusEvent
	for i := range f.events {
		ev := f.events[i]
		if ev.InstanceID != instanceID || ev.ChangedAt.After(at) {
			continue
		}
		if best == nil || ev.ChangedAt.After(best.ChangedAt) ||
			(ev.ChangedAt.Equal(best.ChangedAt) && ev.ID > best.ID) {
			best = &f.events[i]
		}
	}
	return best, nil
}

func testEngine() *Engine {
	return NewEngine(nil, Config{Billable: statustrack.NewBillableSet()})
}

func collectEvents(dst *[]*models.StatusEvent) func(*models.StatusEvent) error {
	return func(ev *models.StatusEvent) error {
		*dst = append(*dst, ev)
		return nil
	}
}

func TestCeilDiv(t *testing.T) {
	tests := []struct {
		n, d, want int64
	}{
		{n: 1, d: 2, want: 1},
		{n: 2, d: 2, want: 1},
		{n: 3, d: 2, want: 2},
		{n: 300 * 43200, d: MonthSeconds, want: 5},
		{n: 300 * 86400, d: MonthSeconds, want: 10},
		{n: 1, d: MonthSeconds, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ceilDiv(tt.n, tt.d))
	}
}

// Proration reference case: monthly rate 300, 12h billable out of a 30-day
// month of 2,592,000s yields ceil(300*43200/2592000) = 5.
func TestBillOneProratedPeriod(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := created.Add(48 * time.Hour)
	inst := &models.BotInstance{ID: 1, UserID: 1, Status: models.StatusActive, CreatedAt: created}
	next := periodEnd
	inst.NextChargeAt = &next
	user := &models.User{ID: 1, Balance: 100}
	bot := &models.Bot{ID: 1, Rate: 300}
	ledger := &fakeLedger{events: []models.StatusEvent{
		{ID: 1, InstanceID: 1, ToStatus: models.StatusPaused, ChangedAt: periodEnd.Add(-12 * time.Hour)},
	}}

	var appended []*models.StatusEvent
	result, err := testEngine().billUntilCaughtUp(ledger, inst, user, bot, periodEnd, collectEvents(&appended))

	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Charged)
	assert.Equal(t, 1, result.PeriodsBilled)
	assert.Equal(t, int64(95), user.Balance)
	assert.False(t, result.NeedsDeactivation)
	assert.Empty(t, appended)
	require.NotNil(t, inst.LastChargeAt)
	assert.Equal(t, periodEnd, *inst.LastChargeAt)
	assert.Equal(t, periodEnd.Add(24*time.Hour), *inst.NextChargeAt)
}

func TestBillZeroBillableSecondsStillAdvancesSchedule(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := created.Add(48 * time.Hour)
	inst := &models.BotInstance{ID: 1, UserID: 1, Status: models.StatusPaused, CreatedAt: created}
	next := periodEnd
	inst.NextChargeAt = &next
	user := &models.User{ID: 1, Balance: 100}
	bot := &models.Bot{ID: 1, Rate: 300}

	result, err := testEngine().billUntilCaughtUp(&fakeLedger{}, inst, user, bot, periodEnd, collectEvents(new([]*models.StatusEvent)))

	require.NoError(t, err)
	assert.Zero(t, result.Charged)
	assert.Zero(t, result.PeriodsBilled)
	assert.Equal(t, int64(100), user.Balance)
	assert.Equal(t, periodEnd, *inst.LastChargeAt)
	assert.Equal(t, periodEnd.Add(24*time.Hour), *inst.NextChargeAt)
}

func TestBillSweepIsIdempotentWithNoElapsedTime(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(72 * time.Hour)
	inst := &models.BotInstance{ID: 1, UserID: 1, Status: models.StatusActive, CreatedAt: created}
	user := &models.User{ID: 1, Balance: 1000}
	bot := &models.Bot{ID: 1, Rate: 300}
	engine := testEngine()

	first, err := engine.billUntilCaughtUp(&fakeLedger{}, inst, user, bot, now, collectEvents(new([]*models.StatusEvent)))
	require.NoError(t, err)
	require.Positive(t, first.PeriodsBilled)
	balanceAfter := user.Balance

	second, err := engine.billUntilCaughtUp(&fakeLedger{}, inst, user, bot, now, collectEvents(new([]*models.StatusEvent)))
	require.NoError(t, err)
	assert.Zero(t, second.PeriodsBilled)
	assert.Zero(t, second.Charged)
	assert.Equal(t, balanceAfter, user.Balance)
}

func TestBillCatchesUpMultiplePeriods(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(72 * time.Hour)
	inst := &models.BotInstance{ID: 1, UserID: 1, Status: models.StatusActive, CreatedAt: created}
	user := &models.User{ID: 1, Balance: 1000}
	bot := &models.Bot{ID: 1, Rate: 300}

	result, err := testEngine().billUntilCaughtUp(&fakeLedger{}, inst, user, bot, now, collectEvents(new([]*models.StatusEvent)))

	require.NoError(t, err)
	// Fully active: 10 per 24h period, three periods due.
	assert.Equal(t, 3, result.PeriodsBilled)
	assert.Equal(t, int64(30), result.Charged)
	assert.Equal(t, int64(970), user.Balance)
	assert.Equal(t, now.Add(24*time.Hour), *inst.NextChargeAt)
}

func TestBillInitializesScheduleFromCreation(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	inst := &models.BotInstance{ID: 1, UserID: 1, Status: models.StatusActive, CreatedAt: created}
	user := &models.User{ID: 1, Balance: 100}
	bot := &models.Bot{ID: 1, Rate: 300}

	// Half a period elapsed: schedule gets initialized, nothing is due yet.
	result, err := testEngine().billUntilCaughtUp(&fakeLedger{}, inst, user, bot, created.Add(12*time.Hour), collectEvents(new([]*models.StatusEvent)))

	require.NoError(t, err)
	assert.Zero(t, result.PeriodsBilled)
	require.NotNil(t, inst.NextChargeAt)
	assert.Equal(t, created.Add(24*time.Hour), *inst.NextChargeAt)
	assert.Nil(t, inst.LastChargeAt)
}

func TestBillPeriodBeforeCreationChargesNothing(t *testing.T) {
	created := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	inst := &models.BotInstance{ID: 1, UserID: 1, Status: models.StatusActive, CreatedAt: created}
	// Schedule pointing at a period that ended before the instance existed.
	stale := created.Add(-24 * time.Hour)
	inst.NextChargeAt = &stale
	user := &models.User{ID: 1, Balance: 100}
	bot := &models.Bot{ID: 1, Rate: 300}

	result, err := testEngine().billUntilCaughtUp(&fakeLedger{}, inst, user, bot, stale, collectEvents(new([]*models.StatusEvent)))

	require.NoError(t, err)
	assert.Zero(t, result.Charged)
	assert.Equal(t, stale.Add(24*time.Hour), *inst.NextChargeAt)
	assert.Equal(t, int64(100), user.Balance)
}

func TestBillInsufficientFundsStopsAndFlagsDeactivation(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Three periods overdue, but the balance covers none of them.
	now := created.Add(96 * time.Hour)
	next := created.Add(24 * time.Hour)
	inst := &models.BotInstance{
		ID: 1, UserID: 1, ExternalID: "ext-1",
		Status: models.StatusActive, CreatedAt: created, NextChargeAt: &next,
	}
	user := &models.User{ID: 1, Balance: 3}
	bot := &models.Bot{ID: 1, Rate: 300} // full period charge = 5 at 12h billable
	ledger := &fakeLedger{events: []models.StatusEvent{
		{ID: 1, InstanceID: 1, ToStatus: models.StatusActive, ChangedAt: created},
		{ID: 2, InstanceID: 1, ToStatus: models.StatusPaused, ChangedAt: created.Add(12 * time.Hour)},
		{ID: 3, InstanceID: 1, ToStatus: models.StatusActive, ChangedAt: next},
	}}

	var appended []*models.StatusEvent
	result, err := testEngine().billUntilCaughtUp(ledger, inst, user, bot, now, collectEvents(&appended))

	require.NoError(t, err)
	assert.True(t, result.NeedsDeactivation)
	assert.Equal(t, "ext-1", result.ExternalID)
	assert.Zero(t, result.PeriodsBilled)
	assert.Equal(t, int64(3), user.Balance)
	assert.Equal(t, models.StatusNotEnoughBalance, inst.Status)

	// Exactly one transition event, recording the prior status.
	require.Len(t, appended, 1)
	require.NotNil(t, appended[0].FromStatus)
	assert.Equal(t, string(models.StatusActive), *appended[0].FromStatus)
	assert.Equal(t, models.StatusNotEnoughBalance, appended[0].ToStatus)

	// Only the failed period advanced; the rest wait for the next sweep.
	assert.Equal(t, next.Add(24*time.Hour), *inst.NextChargeAt)
}

func TestBillAlreadyOutOfFundsAppendsNoSecondEvent(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next := created.Add(24 * time.Hour)
	inst := &models.BotInstance{
		ID: 1, UserID: 1, ExternalID: "ext-1",
		Status: models.StatusNotEnoughBalance, CreatedAt: created, NextChargeAt: &next,
	}
	user := &models.User{ID: 1, Balance: 0}
	bot := &models.Bot{ID: 1, Rate: 300}
	// The whole period was spent active before funds ran out.
	ledger := &fakeLedger{events: []models.StatusEvent{
		{ID: 1, InstanceID: 1, ToStatus: models.StatusActive, ChangedAt: created},
		{ID: 2, InstanceID: 1, ToStatus: models.StatusNotEnoughBalance, ChangedAt: next},
	}}

	var appended []*models.StatusEvent
	result, err := testEngine().billUntilCaughtUp(ledger, inst, user, bot, next, collectEvents(&appended))

	require.NoError(t, err)
	assert.True(t, result.NeedsDeactivation)
	assert.Empty(t, appended)
	assert.Equal(t, models.StatusNotEnoughBalance, inst.Status)
}
