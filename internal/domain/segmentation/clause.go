package segmentation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
)

const (
	StyleNumbered = "numbered"
	StyleHeading  = "heading"
	StyleFreeform = "freeform"
)

// Clause is one extracted span of a run's concatenated text. Rows are never
// physically removed; review history survives through the soft-delete marker.
// Ordinal is unique among non-deleted clauses of the same staging upload
// (partial index in EnsureSegmentationIndexes).
type Clause struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SegmentationRunID uuid.UUID  `gorm:"type:uuid;not null;index" json:"segmentation_run_id"`
	StagingUploadID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"staging_upload_id"`
	AgreementID       *uuid.UUID `gorm:"type:uuid;column:agreement_id;index" json:"agreement_id,omitempty"`

	Ordinal         int    `gorm:"column:ordinal;not null" json:"ordinal"`
	NumberLabel     string `gorm:"column:number_label" json:"number_label,omitempty"`
	NumberLabelNorm string `gorm:"column:number_label_norm;index" json:"number_label_norm,omitempty"`
	HeadingText     string `gorm:"column:heading_text" json:"heading_text,omitempty"`

	StartChar int `gorm:"column:start_char;not null" json:"start_char"`
	EndChar   int `gorm:"column:end_char;not null" json:"end_char"`
	StartPage int `gorm:"column:start_page;not null" json:"start_page"`
	EndPage   int `gorm:"column:end_page;not null" json:"end_page"`

	TextSnippet   string `gorm:"column:text_snippet;type:text;not null" json:"text_snippet"`
	DetectedStyle string `gorm:"column:detected_style;not null" json:"detected_style"`

	ConfidenceBoundary float64 `gorm:"column:confidence_boundary;not null;default:0;index" json:"confidence_boundary"`
	ConfidenceHeading  float64 `gorm:"column:confidence_heading;not null;default:0" json:"confidence_heading"`

	AnomalyFlags datatypes.JSON `gorm:"column:anomaly_flags;type:jsonb" json:"anomaly_flags"`

	NeedsReview   bool `gorm:"column:needs_review;not null;default:false;index" json:"needs_review"`
	HumanVerified bool `gorm:"column:human_verified;not null;default:false;index" json:"human_verified"`
	Suppressed    bool `gorm:"column:suppressed;not null;default:false" json:"suppressed"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Clause) TableName() string { return "clause" }

// Accepted reports whether the clause counts toward run aggregates.
func (c *Clause) Accepted() bool {
	return !c.Suppressed && !c.DeletedAt.Valid
}

// Validate enforces span and attribute invariants before persistence.
func (c *Clause) Validate() error {
	if c.SegmentationRunID == uuid.Nil {
		return errs.Validation("segmentation_run_id", "is required")
	}
	if c.StagingUploadID == uuid.Nil {
		return errs.Validation("staging_upload_id", "is required")
	}
	if c.Ordinal < 0 {
		return errs.Validation("ordinal", "must be non-negative")
	}
	if c.StartChar < 0 {
		return errs.Validation("start_char", "must be non-negative")
	}
	if c.EndChar <= c.StartChar {
		return errs.Validation("end_char", "must be greater than start_char")
	}
	if c.StartPage < 0 {
		return errs.Validation("start_page", "must be non-negative")
	}
	if c.EndPage < c.StartPage {
		return errs.Validation("end_page", "must not precede start_page")
	}
	if c.TextSnippet == "" {
		return errs.Validation("text_snippet", "is required")
	}
	if c.DetectedStyle == "" {
		return errs.Validation("detected_style", "is required")
	}
	if c.ConfidenceBoundary < 0 || c.ConfidenceBoundary > 1 {
		return errs.Validation("confidence_boundary", "must be within [0,1]")
	}
	if c.ConfidenceHeading < 0 || c.ConfidenceHeading > 1 {
		return errs.Validation("confidence_heading", "must be within [0,1]")
	}
	return nil
}
