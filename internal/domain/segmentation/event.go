package segmentation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

const (
	EventRunCreated        = "run_created"
	EventRunStarted        = "run_started"
	EventArtifactWritten   = "artifact_written"
	EventClausesInserted   = "clauses_inserted"
	EventClausesSuperseded = "clauses_superseded"
	EventRunCompleted      = "run_completed"
	EventRunFailed         = "run_failed"
	EventReviewFlagged     = "review_flagged"
	EventClauseAnomaly     = "clause_anomaly"
	EventClauseSuppressed  = "clause_suppressed"
	EventClauseVerified    = "clause_verified"
	EventClauseRemoved     = "clause_removed"
	EventOrphanArtifact    = "orphan_artifact"
)

// SegmentationEvent is the append-only audit ledger for a run. Rows are never
// updated or deleted; the event repo exposes no mutation beyond Append.
type SegmentationEvent struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SegmentationRunID uuid.UUID      `gorm:"type:uuid;not null;index" json:"segmentation_run_id"`
	EventType         string         `gorm:"column:event_type;not null;index" json:"event_type"`
	EventLevel        string         `gorm:"column:event_level;not null;default:'info';index" json:"event_level"`
	Detail            datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (SegmentationEvent) TableName() string { return "segmentation_event" }
