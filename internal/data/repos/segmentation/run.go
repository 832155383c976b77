package segmentation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/veralex/clausebridge-backend/internal/domain"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
)

const runIdentityIndex = "idx_segmentation_run_identity"

// ClauseAggregates is the completion-time rollup over a run's active clauses.
type ClauseAggregates struct {
	AcceptedCount    int
	SuppressedCount  int
	MeanConfBoundary float64
	LowConfAccepted  int
}

type RunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *types.SegmentationRun) (*types.SegmentationRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SegmentationRun, error)
	GetByUploadAndVersion(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID, major, minor, patch int) (*types.SegmentationRun, error)
	GetLatestByUploadID(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) (*types.SegmentationRun, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.SegmentationRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	// AggregateClauses rolls up the run's non-deleted clauses: accepted =
	// not suppressed, mean over accepted confidence_boundary (0.0 when
	// none), plus the count of accepted clauses below lowConfThreshold.
	AggregateClauses(ctx context.Context, tx *gorm.DB, runID uuid.UUID, lowConfThreshold float64) (ClauseAggregates, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	repoLog := baseLog.With("repo", "SegmentationRunRepo")
	return &runRepo{db: db, log: repoLog}
}

func (r *runRepo) Create(ctx context.Context, tx *gorm.DB, run *types.SegmentationRun) (*types.SegmentationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, fmt.Errorf("%w: nil run", errs.ErrInvalidArgument)
	}
	if run.StagingUploadID == uuid.Nil {
		return nil, errs.Validation("staging_upload_id", "is required")
	}
	if run.AlgoMajor < 0 || run.AlgoMinor < 0 || run.AlgoPatch < 0 {
		return nil, errs.Validation("algo_version", "components must be non-negative")
	}
	if run.Status == "" {
		run.Status = types.RunStatusStarted
	}
	if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
		if uniqueViolation(err, runIdentityIndex) {
			return nil, fmt.Errorf("run for upload %s at v%d.%d.%d: %w",
				run.StagingUploadID, run.AlgoMajor, run.AlgoMinor, run.AlgoPatch, errs.ErrDuplicateRun)
		}
		return nil, err
	}
	return run, nil
}

func (r *runRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.SegmentationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.SegmentationRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) GetByUploadAndVersion(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID, major, minor, patch int) (*types.SegmentationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.SegmentationRun
	err := transaction.WithContext(ctx).
		Where("staging_upload_id = ? AND algo_major = ? AND algo_minor = ? AND algo_patch = ?",
			uploadID, major, minor, patch).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run for upload %s at v%d.%d.%d: %w", uploadID, major, minor, patch, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) GetLatestByUploadID(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) (*types.SegmentationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if uploadID == uuid.Nil {
		return nil, nil
	}
	var run types.SegmentationRun
	err := transaction.WithContext(ctx).
		Where("staging_upload_id = ?", uploadID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *runRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status string, limit int) ([]*types.SegmentationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.SegmentationRun
	q := transaction.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *runRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&types.SegmentationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *runRepo) AggregateClauses(ctx context.Context, tx *gorm.DB, runID uuid.UUID, lowConfThreshold float64) (ClauseAggregates, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var agg ClauseAggregates
	row := struct {
		Accepted   int
		Suppressed int
		MeanConf   float64
		LowConf    int
	}{}
	err := transaction.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) FILTER (WHERE NOT suppressed)                                          AS accepted,
			COUNT(*) FILTER (WHERE suppressed)                                              AS suppressed,
			COALESCE(AVG(confidence_boundary) FILTER (WHERE NOT suppressed), 0)             AS mean_conf,
			COUNT(*) FILTER (WHERE NOT suppressed AND confidence_boundary < ?)              AS low_conf
		FROM clause
		WHERE segmentation_run_id = ? AND deleted_at IS NULL
	`, lowConfThreshold, runID).Scan(&row).Error
	if err != nil {
		return agg, err
	}
	agg.AcceptedCount = row.Accepted
	agg.SuppressedCount = row.Suppressed
	agg.MeanConfBoundary = row.MeanConf
	agg.LowConfAccepted = row.LowConf
	return agg, nil
}
