package models

import (
	"time"

	"gorm.io/gorm"
)

// Connection statuses reported on devices.
const (
	ConnConnected    = "connected"
	ConnDisconnected = "disconnected"
	ConnError        = "error"
)

// Device — a sensor+actuator unit owned by exactly one account.
type Device struct {
	gorm.Model
	UUID             string `gorm:"column:uuid;uniqueIndex;size:36"`
	AccountID        string `gorm:"column:account_id;index;size:36"`
	Name             string
	IsOnline         bool       `gorm:"column:is_online"`
	ConnectionStatus string     `gorm:"column:connection_status;size:16"`
	LastSeen         *time.Time `gorm:"column:last_seen"`
	LastHeartbeat    *time.Time `gorm:"column:last_heartbeat"`
	FirmwareVersion  string     `gorm:"column:firmware_version;size:32"`
}

// Zone — logical grouping devices report telemetry into; carries the
// auto-watering threshold used for the irrigation hint.
type Zone struct {
	gorm.Model
	UUID              string `gorm:"column:uuid;uniqueIndex;size:36"`
	AccountID         string `gorm:"column:account_id;index;size:36"`
	Name              string
	MoistureThreshold *float64 `gorm:"column:moisture_threshold"`
}
