package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
	"github.com/bothive/bothive/internal/pkg/statustrack"
)

// Engine brings one instance's billing schedule up to date with "now",
// charging every elapsed 24h period until caught up or the balance runs out.
type Engine struct {
	db  *gorm.DB
	cfg Config
}

// NewEngine creates a billing engine on the given DB handle.
func NewEngine(db *gorm.DB, cfg Config) *Engine {
	return &Engine{db: db, cfg: cfg}
}

// BillResult reports what a billing run did to one instance.
type BillResult struct {
	PeriodsBilled     int
	Charged           int64
	NeedsDeactivation bool
	ExternalID        string
}

// BillInstance processes all due periods for one instance inside a single
// transaction. The owning user's row is locked for the duration of the
// check-and-deduct, so two instances of the same user billed concurrently
// cannot race on the balance.
func (e *Engine) BillInstance(instanceID uint, now time.Time) (*BillResult, error) {
	result := &BillResult{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var inst models.BotInstance
		if err := tx.First(&inst, instanceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Wrap(apperr.KindNotFound, "instance", err)
			}
			return apperr.Wrap(apperr.KindPersistence, "load instance", err)
		}

		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, inst.UserID).Error; err != nil {
			return apperr.Wrap(apperr.KindPersistence, "lock user row", err)
		}
		var bot models.Bot
		if err := tx.First(&bot, inst.BotID).Error; err != nil {
			return apperr.Wrap(apperr.KindPersistence, "load bot", err)
		}

		ledger := statustrack.NewRepository(tx)
		appendEvent := func(ev *models.StatusEvent) error {
			return tx.Create(ev).Error
		}

		r, err := e.billUntilCaughtUp(ledger, &inst, &user, &bot, now, appendEvent)
		if err != nil {
			return err
		}
		*result = *r

		if err := tx.Save(&inst).Error; err != nil {
			return apperr.Wrap(apperr.KindPersistence, "save instance", err)
		}
		if err := tx.Save(&user).Error; err != nil {
			return apperr.Wrap(apperr.KindPersistence, "save user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// billUntilCaughtUp iterates over due 24h periods. The schedule always
// advances, charged or not; it stops early only on insufficient balance,
// deferring the remaining periods to the next sweep.
func (e *Engine) billUntilCaughtUp(
	ledger statustrack.Repository,
	inst *models.BotInstance,
	user *models.User,
	bot *models.Bot,
	now time.Time,
	appendEvent func(*models.StatusEvent) error,
) (*BillResult, error) {
	result := &BillResult{ExternalID: inst.ExternalID}

	if inst.NextChargeAt == nil {
		next := inst.CreatedAt.Add(ChargePeriod)
		inst.NextChargeAt = &next
	}

	for !inst.NextChargeAt.After(now) {
		periodEnd := *inst.NextChargeAt

		charge, err := e.chargeForPeriod(ledger, inst, bot.Rate, periodEnd)
		if err != nil {
			return nil, err
		}

		// The schedule moves forward regardless of the charge outcome.
		last := periodEnd
		next := periodEnd.Add(ChargePeriod)
		inst.LastChargeAt = &last
		inst.NextChargeAt = &next

		if charge == 0 {
			continue
		}

		if user.Balance >= charge {
			user.Balance -= charge
			result.Charged += charge
			result.PeriodsBilled++
			continue
		}

		if inst.Status != models.StatusNotEnoughBalance {
			prev := inst.Status
			inst.Status = models.StatusNotEnoughBalance
			ev := models.NewStatusEvent(inst.ID, &prev, models.StatusNotEnoughBalance, now)
			if err := appendEvent(ev); err != nil {
				return nil, apperr.Wrap(apperr.KindPersistence, "append status event", err)
			}
		}
		result.NeedsDeactivation = true
		break
	}

	return result, nil
}

// chargeForPeriod computes the prorated charge for [periodEnd-24h, periodEnd),
// clipped at its start to the instance's creation time. All arithmetic is
// integer; division rounds up.
func (e *Engine) chargeForPeriod(
	ledger statustrack.Repository,
	inst *models.BotInstance,
	rate int64,
	periodEnd time.Time,
) (int64, error) {
	if !periodEnd.After(inst.CreatedAt) {
		// Period entirely before the instance existed.
		return 0, nil
	}

	windowStart := periodEnd.Add(-ChargePeriod)
	if windowStart.Before(inst.CreatedAt) {
		windowStart = inst.CreatedAt
	}

	events, err := ledger.EventsInWindow(inst.ID, windowStart, periodEnd)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, "load status events", err)
	}
	startStatus, err := statustrack.StartingStatus(ledger, inst, windowStart)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, "resolve starting status", err)
	}

	periods := statustrack.BuildPeriods(events, windowStart, periodEnd, startStatus)
	billableSeconds := statustrack.BillableSeconds(periods, e.cfg.Billable)

	numerator := rate * billableSeconds
	if numerator <= 0 {
		return 0, nil
	}
	return ceilDiv(numerator, MonthSeconds), nil
}
