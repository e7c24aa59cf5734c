package commandq

import (
	"time"

	"sprout/internal/models"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Create persists a new pending command plus its audit row atomically: the
// command is either fully enqueued or not created at all.
func (r *Repo) Create(cmd *models.Command) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cmd).Error; err != nil {
			return err
		}
		return tx.Create(&models.CommandAudit{
			CommandUUID: cmd.UUID,
			FromStatus:  "",
			ToStatus:    models.StatusPending,
			Actor:       cmd.AccountID,
			Note:        "enqueued",
		}).Error
	})
}

func (r *Repo) FindByUUID(id string) (*models.Command, error) {
	var c models.Command
	if err := r.db.Where("uuid = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) CountPending(deviceID string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Command{}).
		Where("device_id = ? AND status = ?", deviceID, models.StatusPending).
		Count(&n).Error
	return n, err
}

// ClaimPending hands out up to limit pending commands for a device, priority
// DESC then creation ASC, skipping commands scheduled for the future. Each
// claim is a conditional update on status; a row lost to a concurrent
// retriever is simply skipped, so no command is ever returned twice.
func (r *Repo) ClaimPending(deviceID string, limit int, priority string, now time.Time) ([]models.Command, error) {
	q := r.db.Where("device_id = ? AND status = ?", deviceID, models.StatusPending).
		Where("scheduled_for IS NULL OR scheduled_for <= ?", now)
	if priority != "" {
		q = q.Where("priority = ?", priority)
	}

	var candidates []models.Command
	if err := q.Order("priority_rank DESC, created_at ASC, id ASC").
		Limit(limit).Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]models.Command, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		res := r.db.Model(&models.Command{}).
			Where("uuid = ? AND status = ?", c.UUID, models.StatusPending).
			Updates(map[string]any{
				"status":       models.StatusInProgress,
				"retrieved_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue // lost the race to another retriever
		}
		c.Status = models.StatusInProgress
		t := now
		c.RetrievedAt = &t
		_ = r.db.Create(&models.CommandAudit{
			CommandUUID: c.UUID,
			FromStatus:  models.StatusPending,
			ToStatus:    models.StatusInProgress,
			Actor:       deviceID,
			Note:        "retrieved",
		}).Error
		claimed = append(claimed, *c)
	}
	return claimed, nil
}

// Transition finalizes a command with the same compare-and-swap discipline:
// the update only applies while the stored status still equals fromStatus.
// Returns false when the row was concurrently moved.
func (r *Repo) Transition(id, fromStatus, toStatus, actor, note string, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = toStatus

	swapped := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Command{}).
			Where("uuid = ? AND status = ?", id, fromStatus).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		swapped = true
		return tx.Create(&models.CommandAudit{
			CommandUUID: id,
			FromStatus:  fromStatus,
			ToStatus:    toStatus,
			Actor:       actor,
			Note:        note,
		}).Error
	})
	return swapped, err
}

// StaleInProgress returns sweep candidates: in_progress commands whose
// retrieved_at is older than estimate*factor. The caller re-checks with a CAS
// transition, so a stale read here is harmless.
func (r *Repo) StaleInProgress(factor float64, now time.Time) ([]models.Command, error) {
	var out []models.Command
	err := r.db.Where("status = ? AND retrieved_at IS NOT NULL", models.StatusInProgress).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	stale := out[:0]
	for _, c := range out {
		deadline := c.RetrievedAt.Add(time.Duration(float64(c.EstimatedMS)*factor) * time.Millisecond)
		if now.After(deadline) {
			stale = append(stale, c)
		}
	}
	return stale, nil
}
