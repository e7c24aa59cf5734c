package models

import (
	"time"

	"gorm.io/gorm"
)

// ApiCredential — the per-device secret used by firmware for ingest and
// command retrieval. Invariant: the credential's device belongs to the same
// account as the credential itself.
type ApiCredential struct {
	gorm.Model
	Secret     string     `gorm:"column:secret;uniqueIndex;size:64"`
	DeviceUUID string     `gorm:"column:device_id;index;size:36"`
	AccountID  string     `gorm:"column:account_id;index;size:36"`
	Active     bool       `gorm:"column:active;default:true"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
}
