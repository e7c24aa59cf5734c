package repo

import (
	"time"

	"sprout/internal/models"

	"gorm.io/gorm"
)

type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) FindByUUID(id string) (*models.Device, error) {
	var m models.Device
	if err := s.db.Where("uuid = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Touch marks the device alive after an accepted ingest call.
func (s *DeviceStore) Touch(tx *gorm.DB, id string, now time.Time) error {
	if tx == nil {
		tx = s.db
	}
	return tx.Model(&models.Device{}).
		Where("uuid = ?", id).
		Updates(map[string]any{
			"last_seen":         now,
			"is_online":         true,
			"connection_status": models.ConnConnected,
		}).Error
}

// TouchHeartbeat — same as Touch plus last_heartbeat and (optionally) the
// reported firmware version. Heartbeats carry no telemetry.
func (s *DeviceStore) TouchHeartbeat(id string, now time.Time, firmware string) error {
	updates := map[string]any{
		"last_seen":         now,
		"last_heartbeat":    now,
		"is_online":         true,
		"connection_status": models.ConnConnected,
	}
	if firmware != "" {
		updates["firmware_version"] = firmware
	}
	return s.db.Model(&models.Device{}).Where("uuid = ?", id).Updates(updates).Error
}

type ZoneStore struct {
	db *gorm.DB
}

func NewZoneStore(db *gorm.DB) *ZoneStore {
	return &ZoneStore{db: db}
}

func (s *ZoneStore) FindByUUID(id string) (*models.Zone, error) {
	var z models.Zone
	if err := s.db.Where("uuid = ?", id).First(&z).Error; err != nil {
		return nil, err
	}
	return &z, nil
}
