package knowledge

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

// Watcher resolves in-progress knowledge entries by polling the external
// ingestion status. The work items are the entry rows themselves: status,
// execution id and poll deadline are persisted, so entries still in_progress
// when the process starts are simply picked up by the next scan instead of
// being lost with an in-memory task list.
type Watcher struct {
	db       *gorm.DB
	ext      external.API
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcherFromEnv wires a watcher with the KB_POLL_INTERVAL_SECONDS setting.
func NewWatcherFromEnv(db *gorm.DB, ext external.API) *Watcher {
	return &Watcher{
		db:       db,
		ext:      ext,
		interval: time.Duration(env.GetEnvInt("KB_POLL_INTERVAL_SECONDS", 30)) * time.Second,
	}
}

// Start launches the scan loop. The first scan runs immediately, which is
// what rehydrates watches left in_progress by a previous process.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		log.Infof("[Knowledge] Watcher started (interval: %s)", w.interval)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.ScanOnce(context.Background())

		for {
			select {
			case <-w.stopCh:
				log.Info("[Knowledge] Watcher stopped")
				return
			case <-ticker.C:
				w.ScanOnce(context.Background())
			}
		}
	}()
}

// Stop drains the loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()
	w.wg.Wait()
}

// ScanOnce polls every in-progress entry once. Entries past their persisted
// deadline are dropped; done entries get their external id; failed or unknown
// executions are removed.
func (w *Watcher) ScanOnce(ctx context.Context) {
	var entries []models.KnowledgeEntry
	err := w.db.Preload("KB.Instance").
		Where("status = ?", models.KBEntryInProgress).
		Find(&entries).Error
	if err != nil {
		log.Errorf("[Knowledge] Entry scan failed: %v", err)
		return
	}

	now := time.Now().UTC()
	for i := range entries {
		w.pollEntry(ctx, &entries[i], now)
	}
}

func (w *Watcher) pollEntry(ctx context.Context, entry *models.KnowledgeEntry, now time.Time) {
	if entry.ExecutionID == nil || entry.KB == nil || entry.KB.Instance == nil {
		// Unresolvable work item; remove it rather than poll forever.
		w.deleteEntry(entry)
		return
	}
	if entry.PollDeadline != nil && now.After(*entry.PollDeadline) {
		log.Warnf("[Knowledge] Entry %d timed out waiting for ingestion, dropping", entry.ID)
		w.deleteEntry(entry)
		return
	}

	status, entityIDs, err := w.ext.KnowledgeEntryStatus(ctx, entry.KB.Instance.ExternalID, *entry.ExecutionID)
	if err != nil {
		// Transient upstream failure: leave the row for the next scan.
		log.Warnf("[Knowledge] Status poll for entry %d failed: %v", entry.ID, err)
		return
	}

	switch {
	case status == models.KBEntryDone && len(entityIDs) > 0:
		updates := map[string]interface{}{
			"status":            models.KBEntryDone,
			"external_entry_id": entityIDs[0],
			"execution_id":      nil,
			"poll_deadline":     nil,
		}
		if err := w.db.Model(entry).Updates(updates).Error; err != nil {
			log.Errorf("[Knowledge] Marking entry %d done failed: %v", entry.ID, err)
		}
	case status == "failed" || status == "unknown":
		log.Warnf("[Knowledge] Ingestion of entry %d ended as %s, dropping", entry.ID, status)
		w.deleteEntry(entry)
	default:
		// Still in progress; next scan re-polls.
	}
}

func (w *Watcher) deleteEntry(entry *models.KnowledgeEntry) {
	if err := w.db.Delete(entry).Error; err != nil {
		log.Errorf("[Knowledge] Deleting entry %d failed: %v", entry.ID, err)
	}
}
