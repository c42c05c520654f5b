package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
	"github.com/bothive/bothive/internal/pkg/env"
	"github.com/bothive/bothive/internal/pkg/external"
)

// Service manages knowledge entries with the same consistency shape as the
// instance lifecycle: external call first, local persistence after
// confirmation, compensating delete when the local side fails.
type Service struct {
	db  *gorm.DB
	ext external.API
}

// NewService creates the knowledge entry service.
func NewService(db *gorm.DB, ext external.API) *Service {
	return &Service{db: db, ext: ext}
}

// CreateEntry submits content for remote ingestion and persists the entry as
// in_progress with the poll deadline stored on the row, so a process restart
// can pick the watch back up.
func (s *Service) CreateEntry(ctx context.Context, instanceID uint, content string) (*models.KnowledgeEntry, error) {
	if content == "" {
		return nil, apperr.New(apperr.KindValidation, "content is required")
	}

	var inst models.BotInstance
	if err := s.db.First(&inst, instanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "instance", err)
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "load instance", err)
	}

	executionID, err := s.ext.CreateKnowledgeEntry(ctx, inst.ExternalID, content)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(env.GetEnvInt("KB_POLL_TIMEOUT_SECONDS", 1800)) * time.Second
	deadline := time.Now().UTC().Add(timeout)

	entry := &models.KnowledgeEntry{
		Content:      content,
		Status:       models.KBEntryInProgress,
		ExecutionID:  &executionID,
		PollDeadline: &deadline,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		kb, err := getOrCreateKB(tx, inst.ID)
		if err != nil {
			return err
		}
		entry.KBID = kb.ID
		return tx.Create(entry).Error
	})
	if err != nil {
		// The remote execution cannot be cancelled; it will finish and its
		// result will be unreferenced. Log the divergence and move on.
		log.Errorf("[Knowledge] Persisting entry for instance %d failed after remote submit %s: %v", inst.ID, executionID, err)
		return nil, apperr.Wrap(apperr.KindPersistence, "persist entry", err)
	}
	return entry, nil
}

// DeleteEntry removes an ingested entry remotely first, then locally.
func (s *Service) DeleteEntry(ctx context.Context, entryID uint) error {
	var entry models.KnowledgeEntry
	if err := s.db.Preload("KB.Instance").First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Wrap(apperr.KindNotFound, "knowledge entry", err)
		}
		return apperr.Wrap(apperr.KindPersistence, "load entry", err)
	}

	if entry.ExternalEntryID != nil && entry.KB != nil && entry.KB.Instance != nil {
		if err := s.ext.DeleteKnowledgeEntry(ctx, entry.KB.Instance.ExternalID, *entry.ExternalEntryID); err != nil {
			return err
		}
	}

	if err := s.db.Delete(&entry).Error; err != nil {
		log.Errorf("[Knowledge] Local delete of entry %d failed after remote delete: %v", entry.ID, err)
		return apperr.Wrap(apperr.KindPersistence, "delete entry", err)
	}
	return nil
}

func getOrCreateKB(tx *gorm.DB, instanceID uint) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := tx.Where("instance_id = ?", instanceID).First(&kb).Error
	if err == nil {
		return &kb, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	kb = models.KnowledgeBase{InstanceID: instanceID}
	if err := tx.Create(&kb).Error; err != nil {
		return nil, err
	}
	return &kb, nil
}
