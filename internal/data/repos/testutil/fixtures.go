package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veralex/clausebridge-backend/internal/domain"
)

func SeedStagingUpload(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.StagingUpload {
	tb.Helper()
	id := uuid.New()
	up := &types.StagingUpload{
		ID:                  id,
		StorageKey:          fmt.Sprintf("2024/06/15/%s.pdf", id),
		SourceHash:          fmt.Sprintf("hash-%s", id),
		ContentTypeDetected: "application/pdf",
		OriginalFilename:    "mutual_nda.pdf",
		ByteSize:            1 << 20,
		Status:              "staged",
		ScanStatus:          "clean",
	}
	if err := tx.WithContext(ctx).Create(up).Error; err != nil {
		tb.Fatalf("seed staging upload: %v", err)
	}
	return up
}

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) *types.SegmentationRun {
	tb.Helper()
	run := &types.SegmentationRun{
		ID:              uuid.New(),
		StagingUploadID: uploadID,
		AlgoMajor:       1,
		AlgoMinor:       0,
		AlgoPatch:       0,
		Status:          types.RunStatusStarted,
		Metrics:         types.MustKV(nil),
	}
	if err := tx.WithContext(ctx).Create(run).Error; err != nil {
		tb.Fatalf("seed segmentation run: %v", err)
	}
	return run
}

func SeedClause(tb testing.TB, ctx context.Context, tx *gorm.DB, runID, uploadID uuid.UUID, ordinal int) *types.Clause {
	tb.Helper()
	c := &types.Clause{
		ID:                 uuid.New(),
		SegmentationRunID:  runID,
		StagingUploadID:    uploadID,
		Ordinal:            ordinal,
		StartChar:          ordinal * 100,
		EndChar:            ordinal*100 + 80,
		StartPage:          1,
		EndPage:            1,
		TextSnippet:        fmt.Sprintf("clause %d body", ordinal),
		DetectedStyle:      "numbered",
		ConfidenceBoundary: 0.9,
		ConfidenceHeading:  0.8,
		AnomalyFlags:       types.MustKV(nil),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed clause: %v", err)
	}
	return c
}
