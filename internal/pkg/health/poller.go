package health

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/env"
	"github.com/bothive/bothive/internal/pkg/external"
)

// Poller periodically asks the external API for every instance's health and
// records real transitions in the status ledger. It is the out-of-band
// reconciler for inconsistencies the saga layer could not compensate.
type Poller struct {
	db          *gorm.DB
	ext         external.API
	interval    time.Duration
	concurrency int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPollerFromEnv wires a poller with HEALTH_POLL_SECONDS and
// HEALTH_CONCURRENCY settings.
func NewPollerFromEnv(db *gorm.DB, ext external.API) *Poller {
	return &Poller{
		db:          db,
		ext:         ext,
		interval:    time.Duration(env.GetEnvInt("HEALTH_POLL_SECONDS", 3600)) * time.Second,
		concurrency: env.GetEnvInt("HEALTH_CONCURRENCY", 10),
	}
}

// Start launches the poll loop.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Infof("[Health] Poller started (interval: %s, concurrency: %d)", p.interval, p.concurrency)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				log.Info("[Health] Poller stopped")
				return
			case <-ticker.C:
				p.PollOnce(context.Background())
			}
		}
	}()
}

// Stop drains the loop, letting an in-flight poll round finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// PollOnce checks every instance with bounded concurrency. A failed health
// call marks the instance unknown; only real status changes append ledger
// events.
func (p *Poller) PollOnce(ctx context.Context) {
	var instances []models.BotInstance
	if err := p.db.Find(&instances).Error; err != nil {
		log.Errorf("[Health] Instance scan failed: %v", err)
		return
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for i := range instances {
		inst := instances[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.checkInstance(ctx, inst)
		}()
	}
	wg.Wait()
}

func (p *Poller) checkInstance(ctx context.Context, inst models.BotInstance) {
	newStatus := models.StatusUnknown
	raw, err := p.ext.Health(ctx, inst.ExternalID)
	if err != nil {
		log.Warnf("[Health] Check failed for instance %d (%s): %v", inst.ID, inst.ExternalID, err)
	} else {
		newStatus = models.ParseInstanceStatus(raw)
	}

	if inst.Status == newStatus {
		return
	}

	prev := inst.Status
	now := time.Now().UTC()
	err = p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BotInstance{}).Where("id = ?", inst.ID).Update("status", newStatus).Error; err != nil {
			return err
		}
		return tx.Create(models.NewStatusEvent(inst.ID, &prev, newStatus, now)).Error
	})
	if err != nil {
		log.Errorf("[Health] Recording transition for instance %d failed: %v", inst.ID, err)
		return
	}
	log.Infof("[Health] Instance %d: %s -> %s", inst.ID, prev, newStatus)
}
