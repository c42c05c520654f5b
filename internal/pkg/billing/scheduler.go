package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
	"github.com/bothive/bothive/internal/pkg/external"
	"github.com/bothive/bothive/internal/pkg/lock"
)

const deactivateTimeout = 10 * time.Second

// Scheduler drives periodic billing sweeps. A Redis lock guarantees that at
// most one worker across the fleet bills at a time; losing the lock race is a
// normal tick outcome, not an error.
type Scheduler struct {
	db     *gorm.DB
	engine *Engine
	ext    external.API
	redis  *redis.Client
	cfg    Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler wires a scheduler from its process-wide handles.
func NewScheduler(db *gorm.DB, redisClient *redis.Client, ext external.API, cfg Config) *Scheduler {
	return &Scheduler{
		db:     db,
		engine: NewEngine(db, cfg),
		ext:    ext,
		redis:  redisClient,
		cfg:    cfg,
	}
}

// Start launches the sweep loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Infof("[Billing] Sweep loop started (interval: %s, lock TTL: %s)", s.cfg.SweepInterval, s.cfg.LockTTL)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		// run once immediately
		s.sweep()

		for {
			select {
			case <-s.stopCh:
				log.Info("[Billing] Sweep loop stopped")
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop drains the loop: an in-flight sweep finishes, no new sweep starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) sweep() {
	if err := s.SweepOnce(context.Background(), time.Now().UTC()); err != nil {
		log.Errorf("[Billing] Sweep failed: %v", err)
	}
}

// SweepOnce bills every instance due at "now" under the fleet-wide lock.
// One instance's failure never aborts processing of the others; external
// deactivation of out-of-funds instances happens after the lock is released.
func (s *Scheduler) SweepOnce(ctx context.Context, now time.Time) error {
	mutex := lock.NewMutex(s.redis, SweepLockKey, s.cfg.LockTTL)
	if err := mutex.Acquire(ctx); err != nil {
		if errors.Is(err, apperr.ErrLockNotAcquired) {
			log.Debug("[Billing] Another worker holds the sweep lock, skipping tick")
			return nil
		}
		return err
	}

	var toDeactivate []string
	func() {
		defer func() {
			if err := mutex.Release(ctx); err != nil {
				log.Warnf("[Billing] Lock release failed: %v", err)
			}
		}()

		var due []models.BotInstance
		err := s.db.
			Select("id", "external_id").
			Where("next_charge_at IS NOT NULL AND next_charge_at <= ?", now).
			Order("id ASC").
			Find(&due).Error
		if err != nil {
			log.Errorf("[Billing] Due-instance query failed: %v", err)
			return
		}
		if len(due) == 0 {
			return
		}
		log.Infof("[Billing] Sweeping %d due instance(s)", len(due))

		for _, inst := range due {
			result, err := s.engine.BillInstance(inst.ID, now)
			if err != nil {
				// Rolled back; the instance is retried on the next sweep.
				log.Errorf("[Billing] Instance %d failed, skipping: %v", inst.ID, err)
				continue
			}
			if result.PeriodsBilled > 0 {
				log.Infof("[Billing] Instance %d: charged %d over %d period(s)", inst.ID, result.Charged, result.PeriodsBilled)
			}
			if result.NeedsDeactivation {
				toDeactivate = append(toDeactivate, result.ExternalID)
			}
		}
	}()

	// Best-effort remote deactivation, outside lock and transactions.
	// Failures are left to the health poller to reconcile.
	for _, externalID := range toDeactivate {
		callCtx, cancel := context.WithTimeout(ctx, deactivateTimeout)
		if err := s.ext.DeactivateInstance(callCtx, externalID); err != nil {
			log.Warnf("[Billing] Best-effort deactivation of %s failed: %v", externalID, err)
		}
		cancel()
	}
	return nil
}
