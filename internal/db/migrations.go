package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// inspection_reports is append-only: records are created on session
	// finalize and never updated or deleted by the service.
	`CREATE TABLE IF NOT EXISTS inspection_reports (
		id            UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		building      TEXT NOT NULL,
		room          TEXT NOT NULL,
		findings      JSONB NOT NULL DEFAULT '{}'::jsonb,
		score         INT NOT NULL,
		deduction     INT NOT NULL,
		status        TEXT NOT NULL,
		description   TEXT,
		source        TEXT,
		snapshot_url  TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_inspection_reports_created_at ON inspection_reports(created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_inspection_reports_status ON inspection_reports(status);`,
	`CREATE INDEX IF NOT EXISTS idx_inspection_reports_building ON inspection_reports(building);`,
	`ALTER TABLE inspection_reports ADD COLUMN IF NOT EXISTS snapshot_url TEXT;`,
	`ALTER TABLE inspection_reports ADD COLUMN IF NOT EXISTS source TEXT;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
