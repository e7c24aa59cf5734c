package alerts

import (
	"errors"
	"time"

	"sprout/internal/events"
	"sprout/internal/models"

	"gorm.io/gorm"
)

type Store struct {
	db  *gorm.DB
	bus events.Publisher
}

func NewStore(db *gorm.DB, bus events.Publisher) *Store {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Store{db: db, bus: bus}
}

// Create appends the alert inside the caller's transaction (ingest is
// all-or-nothing; the alert row commits with the reading).
func (s *Store) Create(tx *gorm.DB, a *models.Alert) error {
	if tx == nil {
		tx = s.db
	}
	return tx.Create(a).Error
}

// Announce publishes "alert created" after the surrounding transaction
// committed. Best-effort.
func (s *Store) Announce(a *models.Alert) {
	s.bus.Publish(events.TopicAlertCreated, a)
}

type ListFilter struct {
	AccountID  string
	DeviceUUID string
	UnreadOnly bool
	Limit      int
}

// List returns alerts for devices owned by the account, newest first.
func (s *Store) List(f ListFilter) ([]models.Alert, error) {
	q := s.db.Model(&models.Alert{}).
		Where("device_id IN (?)",
			s.db.Model(&models.Device{}).Select("uuid").Where("account_id = ?", f.AccountID)).
		Order("created_at DESC, id DESC")
	if f.DeviceUUID != "" {
		q = q.Where("device_id = ?", f.DeviceUUID)
	}
	if f.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var out []models.Alert
	err := q.Limit(limit).Find(&out).Error
	return out, err
}

var ErrNotOwned = errors.New("alert not found for account")

// MarkRead acknowledges one alert, scoped to the owning account.
func (s *Store) MarkRead(alertUUID, accountID string) (*models.Alert, error) {
	var a models.Alert
	err := s.db.Where("uuid = ?", alertUUID).
		Where("device_id IN (?)",
			s.db.Model(&models.Device{}).Select("uuid").Where("account_id = ?", accountID)).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotOwned
		}
		return nil, err
	}
	if !a.IsRead {
		now := time.Now().UTC()
		if err := s.db.Model(&a).Updates(map[string]any{"is_read": true, "resolved_at": now}).Error; err != nil {
			return nil, err
		}
		a.IsRead = true
		a.ResolvedAt = &now
	}
	return &a, nil
}
