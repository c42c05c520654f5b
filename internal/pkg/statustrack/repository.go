package statustrack

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bothive/bothive/app/models"
)

// Repository provides ledger reads used by period reconstruction.
type Repository interface {
	// EventsInWindow returns events with changed_at in [start, end), ordered
	// by (changed_at, id) ascending.
	EventsInWindow(instanceID uint, start, end time.Time) ([]models.StatusEvent, error)
	// LatestEventAtOrBefore returns the newest event with changed_at <= at,
	// or nil when the instance has none.
	LatestEventAtOrBefore(instanceID uint, at time.Time) (*models.StatusEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) EventsInWindow(instanceID uint, start, end time.Time) ([]models.StatusEvent, error) {
	var events []models.StatusEvent
	err := r.db.
		Where("instance_id = ? AND changed_at >= ? AND changed_at < ?", instanceID, start, end).
		Order("changed_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (r *gormRepository) LatestEventAtOrBefore(instanceID uint, at time.Time) (*models.StatusEvent, error) {
	var ev models.StatusEvent
	err := r.db.
		Where("instance_id = ? AND changed_at <= ?", instanceID, at).
		Order("changed_at DESC, id DESC").
		First(&ev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// StartingStatus resolves the status valid at the given instant: the latest
// ledger event at or before it, else the instance's stored status (covers
// instances whose history predates retention or was never recorded).
func StartingStatus(repo Repository, inst *models.BotInstance, at time.Time) (models.InstanceStatus, error) {
	ev, err := repo.LatestEventAtOrBefore(inst.ID, at)
	if err != nil {
		return models.StatusUnknown, err
	}
	if ev != nil {
		return models.ParseInstanceStatus(string(ev.ToStatus)), nil
	}
	return models.ParseInstanceStatus(string(inst.Status)), nil
}
