package staging

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	UploadStatusPending   = "pending"
	UploadStatusStaged    = "staged"
	UploadStatusSegmented = "segmented"

	ScanStatusPending = "pending"
	ScanStatusClean   = "clean"
	ScanStatusFlagged = "flagged"
)

// StagingUpload is one uploaded file, already hashed and stored by the upload
// path. Segmentation treats it as an immutable input.
type StagingUpload struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StorageKey          string         `gorm:"column:storage_key;not null" json:"storage_key"`
	SourceHash          string         `gorm:"column:source_hash;not null;index" json:"source_hash"`
	ContentTypeDetected string         `gorm:"column:content_type_detected" json:"content_type_detected"`
	OriginalFilename    string         `gorm:"column:original_filename" json:"original_filename"`
	ByteSize            int64          `gorm:"column:byte_size" json:"byte_size"`
	Status              string         `gorm:"column:status;not null;default:'pending';index" json:"status"`
	ScanStatus          string         `gorm:"column:scan_status;not null;default:'pending';index" json:"scan_status"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StagingUpload) TableName() string { return "staging_upload" }
