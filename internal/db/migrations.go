package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateCommandClaimIndex creates the composite index backing the retrieve
// claim query (pending commands per device, priority DESC, created ASC).
func MigrateCommandClaimIndex(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "mysql":
		if db.Migrator().HasIndex("commands", "idx_commands_claim") {
			return nil
		}
		return db.Exec("CREATE INDEX `idx_commands_claim` ON `commands` (`device_id`, `status`, `priority_rank`, `created_at`)").Error

	case "postgres":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_commands_claim ON "commands" ("device_id", "status", "priority_rank", "created_at")`).Error

	case "sqlite":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_commands_claim ON commands (device_id, status, priority_rank, created_at)`).Error

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// MigrateFreshnessUniqueIndex enforces one cache row per zone/device pair.
func MigrateFreshnessUniqueIndex(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "mysql":
		if db.Migrator().HasIndex("freshness_caches", "ux_freshness_zone_device") {
			return nil
		}
		return db.Exec("CREATE UNIQUE INDEX `ux_freshness_zone_device` ON `freshness_caches` (`zone_id`, `device_id`)").Error

	case "postgres":
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_freshness_zone_device ON "freshness_caches" ("zone_id", "device_id")`).Error

	case "sqlite":
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_freshness_zone_device ON freshness_caches (zone_id, device_id)`).Error

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
