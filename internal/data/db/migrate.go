package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/veralex/clausebridge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Uploads (produced by the upload path, consumed here)
		&types.StagingUpload{},

		// Segmentation core
		&types.SegmentationRun{},
		&types.Clause{},
		&types.SegmentationEvent{},
	)
}

// EnsureSegmentationIndexes creates the constraints AutoMigrate cannot
// express: the filtered uniqueness invariants and the review-queue indexes.
func EnsureSegmentationIndexes(db *gorm.DB) error {
	// One run per (upload, algorithm version) among non-deleted rows. Two
	// workers racing to start the same run: the loser gets a unique
	// violation, surfaced as a duplicate-run error at the repo boundary.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_segmentation_run_identity
		ON segmentation_run (staging_upload_id, algo_major, algo_minor, algo_patch)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_segmentation_run_identity: %w", err)
	}

	// Ordinals stay unique among active clauses per upload. Soft-deleting a
	// clause frees its ordinal without renumbering siblings.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_clause_upload_ordinal_active
		ON clause (staging_upload_id, ordinal)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_clause_upload_ordinal_active: %w", err)
	}

	// Review-queue lookups.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_clause_review_queue
		ON clause (staging_upload_id, needs_review, human_verified)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_clause_review_queue: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_clause_confidence_boundary
		ON clause (confidence_boundary)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_clause_confidence_boundary: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_segmentation_run_status_created
		ON segmentation_run (status, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_segmentation_run_status_created: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_segmentation_event_run_created
		ON segmentation_event (segmentation_run_id, created_at ASC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_segmentation_event_run_created: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureSegmentationIndexes(s.db); err != nil {
		s.log.Error("Segmentation index migration failed", "error", err)
		return err
	}
	return nil
}
