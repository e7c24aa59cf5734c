package telemetry

import (
	"errors"
	"fmt"
	"time"

	"sprout/internal/models"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AppendReading inserts an immutable telemetry row.
func (s *Store) AppendReading(tx *gorm.DB, r *models.SensorReading) error {
	if tx == nil {
		tx = s.db
	}
	return tx.Create(r).Error
}

func freshnessColumn(sensorType string) (string, bool) {
	switch sensorType {
	case models.SensorMoisture:
		return "moisture", true
	case models.SensorTemperature:
		return "temperature", true
	case models.SensorHumidity:
		return "humidity", true
	case models.SensorLight:
		return "light", true
	}
	return "", false
}

// UpsertFreshness sets only the column matching sensorType and bumps
// last_updated, leaving the other sensor fields untouched (non-destructive
// partial upsert). Two racing ingests may both write; last-write-wins is fine
// because each call also appended its own reading row.
func (s *Store) UpsertFreshness(tx *gorm.DB, zoneID, deviceID, sensorType string, value float64, now time.Time) error {
	if tx == nil {
		tx = s.db
	}
	col, ok := freshnessColumn(sensorType)
	if !ok {
		return fmt.Errorf("no freshness column for sensor type %s", sensorType)
	}

	var row models.FreshnessCache
	err := tx.Where("zone_id = ? AND device_id = ?", zoneID, deviceID).First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		row = models.FreshnessCache{ZoneUUID: zoneID, DeviceUUID: deviceID, LastUpdated: now}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return tx.Model(&models.FreshnessCache{}).
		Where("zone_id = ? AND device_id = ?", zoneID, deviceID).
		Updates(map[string]any{col: value, "last_updated": now}).Error
}

// GetFreshness loads one cache row with data_freshness recomputed against now.
func (s *Store) GetFreshness(zoneID, deviceID string, now time.Time) (*models.FreshnessCache, error) {
	var row models.FreshnessCache
	if err := s.db.Where("zone_id = ? AND device_id = ?", zoneID, deviceID).First(&row).Error; err != nil {
		return nil, err
	}
	row.RecomputeFreshness(now)
	return &row, nil
}

// ListFreshness returns all cache rows for a zone, freshness recomputed.
func (s *Store) ListFreshness(zoneID string, now time.Time) ([]models.FreshnessCache, error) {
	var rows []models.FreshnessCache
	if err := s.db.Where("zone_id = ?", zoneID).Order("device_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].RecomputeFreshness(now)
	}
	return rows, nil
}
