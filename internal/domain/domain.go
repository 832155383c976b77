package domain

import (
	"github.com/veralex/clausebridge-backend/internal/domain/segmentation"
	"github.com/veralex/clausebridge-backend/internal/domain/staging"
)

type (
	StagingUpload = staging.StagingUpload

	SegmentationRun   = segmentation.SegmentationRun
	Clause            = segmentation.Clause
	SegmentationEvent = segmentation.SegmentationEvent
	KV                = segmentation.KV
)

const (
	RunStatusStarted     = segmentation.RunStatusStarted
	RunStatusRunning     = segmentation.RunStatusRunning
	RunStatusCompleted   = segmentation.RunStatusCompleted
	RunStatusFailed      = segmentation.RunStatusFailed
	RunStatusNeedsReview = segmentation.RunStatusNeedsReview

	EventLevelInfo    = segmentation.EventLevelInfo
	EventLevelWarning = segmentation.EventLevelWarning
	EventLevelError   = segmentation.EventLevelError
)

var (
	MarshalKV = segmentation.MarshalKV
	MustKV    = segmentation.MustKV
)
