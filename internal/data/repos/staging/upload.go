package staging

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

type UploadRepo interface {
	Create(ctx context.Context, tx *gorm.DB, up *types.StagingUpload) (*types.StagingUpload, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StagingUpload, error)
	GetByHash(ctx context.Context, tx *gorm.DB, sourceHash string) ([]*types.StagingUpload, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type uploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadRepo(db *gorm.DB, baseLog *logger.Logger) UploadRepo {
	repoLog := baseLog.With("repo", "StagingUploadRepo")
	return &uploadRepo{db: db, log: repoLog}
}

func (r *uploadRepo) Create(ctx context.Context, tx *gorm.DB, up *types.StagingUpload) (*types.StagingUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if up == nil {
		return nil, fmt.Errorf("%w: nil upload", errs.ErrInvalidArgument)
	}
	if up.StorageKey == "" {
		return nil, errs.Validation("storage_key", "is required")
	}
	if up.SourceHash == "" {
		return nil, errs.Validation("source_hash", "is required")
	}
	if err := transaction.WithContext(ctx).Create(up).Error; err != nil {
		return nil, err
	}
	return up, nil
}

func (r *uploadRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.StagingUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var up types.StagingUpload
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&up).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("staging upload %s: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &up, nil
}

func (r *uploadRepo) GetByHash(ctx context.Context, tx *gorm.DB, sourceHash string) ([]*types.StagingUpload, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.StagingUpload
	if sourceHash == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("source_hash = ?", sourceHash).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *uploadRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.StagingUpload{}).
		Where("id = ?", id).
		Updates(updates).Error
}
