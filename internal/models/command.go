package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Command statuses. pending -> in_progress -> {executed|failed|cancelled|timeout};
// pending may also go straight to cancelled. Terminal states never regress.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusExecuted   = "executed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusTimeout    = "timeout"
)

// IsTerminalStatus reports whether no further transition is allowed.
func IsTerminalStatus(s string) bool {
	switch s {
	case StatusExecuted, StatusFailed, StatusCancelled, StatusTimeout:
		return true
	}
	return false
}

// Priorities, ordinal. Rank is persisted so the claim query can ORDER BY it.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var priorityRanks = map[string]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// PriorityRank maps a priority name to its ordinal; unknown -> -1.
func PriorityRank(p string) int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return -1
}

// JSONMap — json-encoded map column (command parameters, execution details).
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("jsonmap: unsupported scan type %T", src)
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// Command — an instruction queued for one device.
type Command struct {
	gorm.Model       `json:"-"`
	UUID             string     `gorm:"column:uuid;uniqueIndex;size:36" json:"id"`
	CreatedAtUTC     time.Time  `gorm:"-" json:"created_at"`
	DeviceUUID       string     `gorm:"column:device_id;index;size:36" json:"device_id"`
	AccountID        string     `gorm:"column:account_id;index;size:36" json:"-"`
	CommandType      string     `gorm:"column:command_type;size:32" json:"command_type"`
	Parameters       JSONMap    `gorm:"column:parameters;type:text" json:"parameters"`
	Priority         string     `gorm:"column:priority;size:8" json:"priority"`
	PriorityRank     int        `gorm:"column:priority_rank" json:"-"`
	Status           string     `gorm:"column:status;size:16;index" json:"status"`
	ScheduledFor     *time.Time `gorm:"column:scheduled_for" json:"scheduled_for,omitempty"`
	RetrievedAt      *time.Time `gorm:"column:retrieved_at" json:"retrieved_at,omitempty"`
	ExecutedAt       *time.Time `gorm:"column:executed_at" json:"executed_at,omitempty"`
	CompletedAt      *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy      string     `gorm:"column:cancelled_by;size:36" json:"cancelled_by,omitempty"`
	ExecutionDetails JSONMap    `gorm:"column:execution_details;type:text" json:"execution_details,omitempty"`
	ErrorMessage     string     `gorm:"column:error_message" json:"error_message,omitempty"`
	EstimatedMS      int64      `gorm:"column:estimated_ms" json:"estimated_execution_ms"`
	DeviceOnline     bool       `gorm:"column:device_online" json:"device_online"`
}

// Hooks keep the exported created_at in sync with the gorm timestamp.

func (c *Command) AfterFind(*gorm.DB) error {
	c.CreatedAtUTC = c.CreatedAt.UTC()
	return nil
}

func (c *Command) AfterCreate(*gorm.DB) error {
	c.CreatedAtUTC = c.CreatedAt.UTC()
	return nil
}

// CommandAudit — append-only transition log.
type CommandAudit struct {
	gorm.Model
	CommandUUID string `gorm:"column:command_id;index;size:36"`
	FromStatus  string `gorm:"column:from_status;size:16"`
	ToStatus    string `gorm:"column:to_status;size:16"`
	Actor       string `gorm:"column:actor;size:64"` // account id, device id or "sweeper"
	Note        string `gorm:"column:note"`
}
