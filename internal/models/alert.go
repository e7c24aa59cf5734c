package models

import (
	"time"

	"gorm.io/gorm"
)

// Alert severities, ordinal.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert types produced by the built-in threshold rules.
const (
	AlertLowMoisture     = "low_moisture"
	AlertHighTemperature = "high_temperature"
	AlertLowHumidity     = "low_humidity"
)

// Alert — threshold violation emitted from a fresh reading. Devices never
// mutate alerts; callers acknowledge them.
type Alert struct {
	gorm.Model
	UUID       string     `gorm:"column:uuid;uniqueIndex;size:36" json:"id"`
	DeviceUUID string     `gorm:"column:device_id;index;size:36" json:"device_id"`
	ZoneUUID   string     `gorm:"column:zone_id;index;size:36" json:"zone_id"`
	AlertType  string     `gorm:"column:alert_type;size:32" json:"alert_type"`
	Severity   string     `gorm:"column:severity;size:8" json:"severity"`
	Message    string     `gorm:"column:message" json:"message"`
	IsRead     bool       `gorm:"column:is_read;index" json:"is_read"`
	ResolvedAt *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}
