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

const clauseOrdinalIndex = "idx_clause_upload_ordinal_active"

type ClauseRepo interface {
	// Create validates spans before touching the database and surfaces an
	// active-ordinal collision as ErrOrdinalConflict, never renumbering.
	Create(ctx context.Context, tx *gorm.DB, clauses []*types.Clause) ([]*types.Clause, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Clause, error)
	GetByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.Clause, error)
	GetByUploadID(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) ([]*types.Clause, error)
	ListNeedsReview(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID, limit int) ([]*types.Clause, error)

	SetSuppressed(ctx context.Context, tx *gorm.DB, id uuid.UUID, suppressed bool) error
	MarkHumanVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetNeedsReview(ctx context.Context, tx *gorm.DB, id uuid.UUID, needsReview bool) error
	AttachAgreement(ctx context.Context, tx *gorm.DB, id, agreementID uuid.UUID) error
	SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	// SoftDeleteByUploadID retires every active clause for the upload,
	// freeing their ordinals for the next run's insert. Returns the number
	// of rows retired.
	SoftDeleteByUploadID(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type clauseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClauseRepo(db *gorm.DB, baseLog *logger.Logger) ClauseRepo {
	repoLog := baseLog.With("repo", "ClauseRepo")
	return &clauseRepo{db: db, log: repoLog}
}

func (r *clauseRepo) Create(ctx context.Context, tx *gorm.DB, clauses []*types.Clause) ([]*types.Clause, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(clauses) == 0 {
		return []*types.Clause{}, nil
	}
	for i, c := range clauses {
		if c == nil {
			return nil, fmt.Errorf("%w: clause at index %d is nil", errs.ErrInvalidArgument, i)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	// Snippets can be sizeable; keep batches moderate.
	const batchSize = 200

	if err := transaction.WithContext(ctx).CreateInBatches(clauses, batchSize).Error; err != nil {
		if uniqueViolation(err, clauseOrdinalIndex) {
			return nil, fmt.Errorf("insert clauses for upload %s: %w", clauses[0].StagingUploadID, errs.ErrOrdinalConflict)
		}
		return nil, err
	}
	return clauses, nil
}

func (r *clauseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Clause, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var c types.Clause
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("clause %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clauseRepo) GetByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.Clause, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Clause
	if runID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("segmentation_run_id = ?", runID).
		Order("ordinal ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *clauseRepo) GetByUploadID(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) ([]*types.Clause, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Clause
	if uploadID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("staging_upload_id = ?", uploadID).
		Order("ordinal ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *clauseRepo) ListNeedsReview(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID, limit int) ([]*types.Clause, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Clause
	q := transaction.WithContext(ctx).
		Where("needs_review = TRUE AND human_verified = FALSE")
	if uploadID != uuid.Nil {
		q = q.Where("staging_upload_id = ?", uploadID)
	}
	q = q.Order("confidence_boundary ASC, ordinal ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *clauseRepo) SetSuppressed(ctx context.Context, tx *gorm.DB, id uuid.UUID, suppressed bool) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"suppressed": suppressed})
}

func (r *clauseRepo) MarkHumanVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	// Verification is one-way: an explicit reviewer action set it, nothing
	// automated clears it.
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		"human_verified": true,
		"needs_review":   false,
	})
}

func (r *clauseRepo) SetNeedsReview(ctx context.Context, tx *gorm.DB, id uuid.UUID, needsReview bool) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"needs_review": needsReview})
}

func (r *clauseRepo) AttachAgreement(ctx context.Context, tx *gorm.DB, id, agreementID uuid.UUID) error {
	if agreementID == uuid.Nil {
		return errs.Validation("agreement_id", "is required")
	}
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"agreement_id": agreementID})
}

func (r *clauseRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	// gorm.DeletedAt makes this a soft delete; the row stays queryable via
	// Unscoped for audit.
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Clause{}).Error
}

func (r *clauseRepo) SoftDeleteByUploadID(ctx context.Context, tx *gorm.DB, uploadID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if uploadID == uuid.Nil {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Where("staging_upload_id = ?", uploadID).
		Delete(&types.Clause{})
	if res.Error != nil {
		return 0, fmt.Errorf("retire clauses for upload %s: %w", uploadID, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *clauseRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Clause{}).
		Where("id = ?", id).
		Updates(updates).Error
}
