package instance

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
)

// Repository provides the local-storage half of lifecycle operations. Every
// status-affecting write appends its StatusEvent in the same transaction.
type Repository interface {
	GetBot(id uint) (*models.Bot, error)
	GetInstance(id uint) (*models.BotInstance, error)
	// CreateWithEvent persists a new instance together with its first ledger
	// event (from_status null).
	CreateWithEvent(inst *models.BotInstance, at time.Time) error
	UpdateConfig(instanceID uint, config string) error
	// ApplyTransition updates the status field and appends the transition
	// event atomically.
	ApplyTransition(inst *models.BotInstance, to models.InstanceStatus, at time.Time) error
	// DeleteWithEvents removes the instance and its ledger together.
	DeleteWithEvents(inst *models.BotInstance) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a lifecycle repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetBot(id uint) (*models.Bot, error) {
	var bot models.Bot
	if err := r.db.First(&bot, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "bot", err)
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "load bot", err)
	}
	return &bot, nil
}

func (r *gormRepository) GetInstance(id uint) (*models.BotInstance, error) {
	var inst models.BotInstance
	if err := r.db.First(&inst, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "instance", err)
		}
		return nil, apperr.Wrap(apperr.KindPersistence, "load instance", err)
	}
	return &inst, nil
}

func (r *gormRepository) CreateWithEvent(inst *models.BotInstance, at time.Time) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inst).Error; err != nil {
			return err
		}
		ev := models.NewStatusEvent(inst.ID, nil, inst.Status, at)
		return tx.Create(ev).Error
	})
	return apperr.Wrap(apperr.KindPersistence, "persist instance", err)
}

func (r *gormRepository) UpdateConfig(instanceID uint, config string) error {
	err := r.db.Model(&models.BotInstance{}).Where("id = ?", instanceID).Update("config", config).Error
	return apperr.Wrap(apperr.KindPersistence, "persist config", err)
}

func (r *gormRepository) ApplyTransition(inst *models.BotInstance, to models.InstanceStatus, at time.Time) error {
	prev := inst.Status
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BotInstance{}).Where("id = ?", inst.ID).Update("status", to).Error; err != nil {
			return err
		}
		ev := models.NewStatusEvent(inst.ID, &prev, to, at)
		return tx.Create(ev).Error
	})
	return apperr.Wrap(apperr.KindPersistence, "persist status transition", err)
}

func (r *gormRepository) DeleteWithEvents(inst *models.BotInstance) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("instance_id = ?", inst.ID).Delete(&models.StatusEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(inst).Error
	})
	return apperr.Wrap(apperr.KindPersistence, "delete instance", err)
}
