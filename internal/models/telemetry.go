package models

import (
	"time"

	"gorm.io/gorm"
)

// Sensor types accepted on ingest.
const (
	SensorMoisture    = "moisture"
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"
	SensorLight       = "light"
)

// KnownSensorType reports whether t is one of the built-in sensor types.
func KnownSensorType(t string) bool {
	switch t {
	case SensorMoisture, SensorTemperature, SensorHumidity, SensorLight:
		return true
	}
	return false
}

// SensorReading — append-only telemetry row; never updated after insert.
type SensorReading struct {
	gorm.Model
	UUID           string    `gorm:"column:uuid;uniqueIndex;size:36" json:"id"`
	DeviceUUID     string    `gorm:"column:device_id;index;size:36" json:"device_id"`
	ZoneUUID       string    `gorm:"column:zone_id;index;size:36" json:"zone_id"`
	SensorType     string    `gorm:"column:sensor_type;size:16;index" json:"sensor_type"`
	Value          float64   `gorm:"column:value" json:"value"`
	Unit           string    `gorm:"column:unit;size:16" json:"unit"`
	BatteryLevel   *float64  `gorm:"column:battery_level" json:"battery_level,omitempty"`
	SignalStrength *float64  `gorm:"column:signal_strength" json:"signal_strength,omitempty"`
	ReadingAt      time.Time `gorm:"column:reading_at;index" json:"reading_timestamp"`
}

// FreshnessCache — materialized latest-value view per zone/device pair.
// Always derivable by replaying the latest reading per sensor type; the
// readings table stays the source of truth.
type FreshnessCache struct {
	gorm.Model
	ZoneUUID    string    `gorm:"column:zone_id;size:36;uniqueIndex:ux_freshness_zone_device,priority:1" json:"zone_id"`
	DeviceUUID  string    `gorm:"column:device_id;size:36;uniqueIndex:ux_freshness_zone_device,priority:2" json:"device_id"`
	Moisture    *float64  `gorm:"column:moisture" json:"moisture,omitempty"`
	Temperature *float64  `gorm:"column:temperature" json:"temperature,omitempty"`
	Humidity    *float64  `gorm:"column:humidity" json:"humidity,omitempty"`
	Light       *float64  `gorm:"column:light" json:"light,omitempty"`
	LastUpdated time.Time `gorm:"column:last_updated" json:"last_updated"`

	// seconds since LastUpdated, recomputed on read, never stored
	DataFreshness float64 `gorm:"-" json:"data_freshness"`
}

// RecomputeFreshness fills DataFreshness relative to now.
func (f *FreshnessCache) RecomputeFreshness(now time.Time) {
	f.DataFreshness = now.Sub(f.LastUpdated).Seconds()
	if f.DataFreshness < 0 {
		f.DataFreshness = 0
	}
}
