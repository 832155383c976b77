package segmentation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veralex/clausebridge-backend/internal/domain"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
)

// EventRepo is append-only on purpose: events are the durable audit trail,
// so the interface exposes no update or delete.
type EventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, ev *types.SegmentationEvent) (*types.SegmentationEvent, error)
	AppendBatch(ctx context.Context, tx *gorm.DB, evs []*types.SegmentationEvent) ([]*types.SegmentationEvent, error)
	ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.SegmentationEvent, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	repoLog := baseLog.With("repo", "SegmentationEventRepo")
	return &eventRepo{db: db, log: repoLog}
}

func (r *eventRepo) Append(ctx context.Context, tx *gorm.DB, ev *types.SegmentationEvent) (*types.SegmentationEvent, error) {
	evs, err := r.AppendBatch(ctx, tx, []*types.SegmentationEvent{ev})
	if err != nil {
		return nil, err
	}
	return evs[0], nil
}

func (r *eventRepo) AppendBatch(ctx context.Context, tx *gorm.DB, evs []*types.SegmentationEvent) ([]*types.SegmentationEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(evs) == 0 {
		return []*types.SegmentationEvent{}, nil
	}
	for i, ev := range evs {
		if ev == nil {
			return nil, fmt.Errorf("%w: event at index %d is nil", errs.ErrInvalidArgument, i)
		}
		if ev.SegmentationRunID == uuid.Nil {
			return nil, errs.Validation("segmentation_run_id", "is required")
		}
		if ev.EventType == "" {
			return nil, errs.Validation("event_type", "is required")
		}
		if ev.EventLevel == "" {
			ev.EventLevel = types.EventLevelInfo
		}
	}
	if err := transaction.WithContext(ctx).Create(&evs).Error; err != nil {
		return nil, err
	}
	return evs, nil
}

func (r *eventRepo) ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.SegmentationEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SegmentationEvent
	if runID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("segmentation_run_id = ?", runID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
