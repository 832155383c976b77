package segmentation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusStarted     = "started"
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
	RunStatusNeedsReview = "needs_review"
)

// SegmentationRun is one attempt to segment one staging upload under one
// semantic version of the segmentation algorithm. At most one non-deleted run
// exists per (staging_upload_id, algo major.minor.patch); the composite
// unique index lives in EnsureSegmentationIndexes.
type SegmentationRun struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StagingUploadID uuid.UUID `gorm:"type:uuid;not null;index" json:"staging_upload_id"`

	AlgoMajor int `gorm:"column:algo_major;not null" json:"algo_major"`
	AlgoMinor int `gorm:"column:algo_minor;not null" json:"algo_minor"`
	AlgoPatch int `gorm:"column:algo_patch;not null" json:"algo_patch"`

	Status string `gorm:"column:status;not null;default:'started';index" json:"status"`

	// Derived-artifact keys into the blob store; the run never holds bytes.
	TextConcatKey       string `gorm:"column:text_concat_key" json:"text_concat_key"`
	PagesJSONLKey       string `gorm:"column:pages_jsonl_key" json:"pages_jsonl_key"`
	SegmentsArtifactKey string `gorm:"column:segments_artifact_key" json:"segments_artifact_key,omitempty"`
	PreviewKey          string `gorm:"column:preview_key" json:"preview_key,omitempty"`

	Metrics datatypes.JSON `gorm:"column:metrics;type:jsonb" json:"metrics"`

	AcceptedCount    int     `gorm:"column:accepted_count;not null;default:0" json:"accepted_count"`
	SuppressedCount  int     `gorm:"column:suppressed_count;not null;default:0" json:"suppressed_count"`
	MeanConfBoundary float64 `gorm:"column:mean_conf_boundary;not null;default:0" json:"mean_conf_boundary"`

	NeedsReviewReason string `gorm:"column:needs_review_reason;type:text" json:"needs_review_reason,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SegmentationRun) TableName() string { return "segmentation_run" }

// HasProducedOutput reports whether the required derived artifacts have been
// written; a run cannot complete without them.
func (r *SegmentationRun) HasProducedOutput() bool {
	return r.TextConcatKey != "" && r.PagesJSONLKey != ""
}

// Terminal reports whether the run is in a final state.
func (r *SegmentationRun) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusNeedsReview:
		return true
	}
	return false
}
