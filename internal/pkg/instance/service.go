package instance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/bothive/bothive/app/models"
	"github.com/bothive/bothive/internal/pkg/apperr"
	"github.com/bothive/bothive/internal/pkg/billing"
	"github.com/bothive/bothive/internal/pkg/external"
)

// Service owns every lifecycle mutation that touches both the external
// instance-management API and local storage. Each operation either leaves the
// two sides consistent or issues a compensating external action; a failed
// compensation is logged and left to the health poller to reconcile.
type Service struct {
	repo Repository
	ext  external.API
}

// NewService creates the lifecycle coordinator from an injected repository.
func NewService(repo Repository, ext external.API) *Service {
	return &Service{repo: repo, ext: ext}
}

// NewServiceFromDB creates the coordinator from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, ext external.API) *Service {
	return NewService(NewRepository(db), ext)
}

// Create provisions the remote instance first and persists locally only after
// the external call is confirmed. A failed local commit triggers a
// compensating remote delete.
func (s *Service) Create(ctx context.Context, userID uint, botID uint, title string, vars map[string]string) (*models.BotInstance, error) {
	bot, err := s.repo.GetBot(botID)
	if err != nil {
		return nil, err
	}
	config, err := marshalVars(vars)
	if err != nil {
		return nil, err
	}

	externalID, err := s.ext.CreateInstance(ctx, bot.ActivationCode, vars)
	if err != nil {
		// Nothing was persisted, nothing to compensate.
		return nil, err
	}

	now := time.Now().UTC()
	next := now.Add(billing.ChargePeriod)
	inst := &models.BotInstance{
		UserID:       userID,
		BotID:        bot.ID,
		ExternalID:   externalID,
		Title:        title,
		Config:       config,
		Status:       models.StatusActive,
		NextChargeAt: &next,
	}
	if err := s.repo.CreateWithEvent(inst, now); err != nil {
		s.compensateDelete(ctx, externalID)
		return nil, err
	}
	return inst, nil
}

// UpdateConfig patches the remote configuration first; if the local commit
// then fails, the remote side is patched back to the pre-change snapshot.
func (s *Service) UpdateConfig(ctx context.Context, instanceID uint, vars map[string]string) (*models.BotInstance, error) {
	inst, err := s.repo.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	snapshot, err := unmarshalVars(inst.Config)
	if err != nil {
		return nil, err
	}
	config, err := marshalVars(vars)
	if err != nil {
		return nil, err
	}

	if err := s.ext.PatchInstance(ctx, inst.ExternalID, vars); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateConfig(inst.ID, config); err != nil {
		if cerr := s.ext.PatchInstance(ctx, inst.ExternalID, snapshot); cerr != nil {
			log.Errorf("[Instance] Compensating patch for %s failed, state diverged: %v", inst.ExternalID, cerr)
		}
		return nil, err
	}
	inst.Config = config
	return inst, nil
}

// Delete removes the remote resource first: a remote deletion cannot be
// undone, so deleting locally first could commit away the only record of a
// still-live remote resource. The accepted residual risk runs the other way:
// when the local commit fails after the confirmed remote delete, the local
// row outlives its remote resource. It is not re-created remotely (that would
// mint a different external identity); the health poller surfaces it as
// unknown instead.
func (s *Service) Delete(ctx context.Context, instanceID uint) error {
	inst, err := s.repo.GetInstance(instanceID)
	if err != nil {
		return err
	}

	if err := s.ext.DeleteInstance(ctx, inst.ExternalID); err != nil {
		return err
	}

	if err := s.repo.DeleteWithEvents(inst); err != nil {
		log.Errorf("[Instance] Local delete of %d failed after remote delete of %s: %v", inst.ID, inst.ExternalID, err)
		return err
	}
	return nil
}

// Activate starts the remote instance, then records the transition locally.
// A failed local commit is compensated by deactivating the remote side again.
func (s *Service) Activate(ctx context.Context, instanceID uint) (*models.BotInstance, error) {
	return s.transition(ctx, instanceID, models.StatusActive,
		s.ext.ActivateInstance, s.ext.DeactivateInstance)
}

// Deactivate stops the remote instance, then records the transition locally.
// A failed local commit is compensated by reactivating the remote side.
func (s *Service) Deactivate(ctx context.Context, instanceID uint) (*models.BotInstance, error) {
	return s.transition(ctx, instanceID, models.StatusPaused,
		s.ext.DeactivateInstance, s.ext.ActivateInstance)
}

func (s *Service) transition(
	ctx context.Context,
	instanceID uint,
	to models.InstanceStatus,
	apply func(context.Context, string) error,
	compensate func(context.Context, string) error,
) (*models.BotInstance, error) {
	inst, err := s.repo.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status == to {
		return inst, nil
	}

	if err := apply(ctx, inst.ExternalID); err != nil {
		return nil, err
	}

	if err := s.repo.ApplyTransition(inst, to, time.Now().UTC()); err != nil {
		if cerr := compensate(ctx, inst.ExternalID); cerr != nil {
			log.Errorf("[Instance] Compensation for %s failed, state diverged: %v", inst.ExternalID, cerr)
		}
		return nil, err
	}
	inst.Status = to
	return inst, nil
}

func (s *Service) compensateDelete(ctx context.Context, externalID string) {
	if err := s.ext.DeleteInstance(ctx, externalID); err != nil {
		log.Errorf("[Instance] Compensating delete of %s failed, remote resource orphaned: %v", externalID, err)
	}
}

func marshalVars(vars map[string]string) (string, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	raw, err := json.Marshal(vars)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "encode config", err)
	}
	return string(raw), nil
}

func unmarshalVars(config string) (map[string]string, error) {
	vars := map[string]string{}
	if config == "" {
		return vars, nil
	}
	if err := json.Unmarshal([]byte(config), &vars); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "decode config", err)
	}
	return vars, nil
}
