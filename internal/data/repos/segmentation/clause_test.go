package segmentation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/veralex/clausebridge-backend/internal/data/repos/testutil"
	types "github.com/veralex/clausebridge-backend/internal/domain"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
)

func newClause(runID, uploadID uuid.UUID, ordinal int) *types.Clause {
	return &types.Clause{
		SegmentationRunID:  runID,
		StagingUploadID:    uploadID,
		Ordinal:            ordinal,
		StartChar:          ordinal * 100,
		EndChar:            ordinal*100 + 50,
		StartPage:          1,
		EndPage:            1,
		TextSnippet:        "Confidential Information means...",
		DetectedStyle:      "numbered",
		ConfidenceBoundary: 0.8,
		ConfidenceHeading:  0.7,
		AnomalyFlags:       types.MustKV(nil),
	}
}

func TestClauseRepoCreateAndQuery(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewClauseRepo(db, testutil.Logger(t))

	up := testutil.SeedStagingUpload(t, ctx, tx)
	run := testutil.SeedRun(t, ctx, tx, up.ID)

	batch := []*types.Clause{
		newClause(run.ID, up.ID, 1),
		newClause(run.ID, up.ID, 0),
		newClause(run.ID, up.ID, 2),
	}
	if _, err := repo.Create(ctx, tx, batch); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows, err := repo.GetByRunID(ctx, tx, run.ID)
	if err != nil {
		t.Fatalf("GetByRunID: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}
	for i, c := range rows {
		if c.Ordinal != i {
			t.Fatalf("rows not ordered by ordinal: got %d at %d", c.Ordinal, i)
		}
	}
}

func TestClauseRepoSpanValidation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewClauseRepo(db, testutil.Logger(t))

	up := testutil.SeedStagingUpload(t, ctx, tx)
	run := testutil.SeedRun(t, ctx, tx, up.ID)

	backwards := newClause(run.ID, up.ID, 0)
	backwards.StartChar = 100
	backwards.EndChar = 50
	if _, err := repo.Create(ctx, tx, []*types.Clause{backwards}); !errs.IsValidation(err) {
		t.Fatalf("end_char < start_char: err=%v, want ValidationError", err)
	}

	pages := newClause(run.ID, up.ID, 0)
	pages.StartPage = 4
	pages.EndPage = 2
	if _, err := repo.Create(ctx, tx, []*types.Clause{pages}); !errs.IsValidation(err) {
		t.Fatalf("end_page < start_page: err=%v, want ValidationError", err)
	}

	conf := newClause(run.ID, up.ID, 0)
	conf.ConfidenceBoundary = 1.5
	if _, err := repo.Create(ctx, tx, []*types.Clause{conf}); !errs.IsValidation(err) {
		t.Fatalf("confidence out of range: err=%v, want ValidationError", err)
	}
}

func TestClauseRepoOrdinalConflict(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewClauseRepo(db, testutil.Logger(t))

	up := testutil.SeedStagingUpload(t, ctx, tx)
	run := testutil.SeedRun(t, ctx, tx, up.ID)

	if _, err := repo.Create(ctx, tx, []*types.Clause{newClause(run.ID, up.ID, 0)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(ctx, tx, []*types.Clause{newClause(run.ID, up.ID, 0)}); !errors.Is(err, errs.ErrOrdinalConflict) {
		t.Fatalf("duplicate ordinal: err=%v, want ErrOrdinalConflict", err)
	}
}

func TestClauseRepoSoftDeleteFreesOrdinal(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewClauseRepo(db, testutil.Logger(t))

	up := testutil.SeedStagingUpload(t, ctx, tx)
	run := testutil.SeedRun(t, ctx, tx, up.ID)

	first, err := repo.Create(ctx, tx, []*types.Clause{newClause(run.ID, up.ID, 0)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.SoftDelete(ctx, tx, first[0].ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	// The ordinal is free again among active rows.
	if _, err := repo.Create(ctx, tx, []*types.Clause{newClause(run.ID, up.ID, 0)}); err != nil {
		t.Fatalf("reusing soft-deleted ordinal should succeed: %v", err)
	}

	// Default queries exclude the soft-deleted row; audit history survives.
	rows, err := repo.GetByUploadID(ctx, tx, up.ID)
	if err != nil {
		t.Fatalf("GetByUploadID: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("active rows = %d, want 1", len(rows))
	}
	var total int64
	if err := tx.WithContext(ctx).Unscoped().Model(&types.Clause{}).
		Where("staging_upload_id = ?", up.ID).Count(&total).Error; err != nil {
		t.Fatalf("unscoped count: %v", err)
	}
	if total != 2 {
		t.Fatalf("physical rows = %d, want 2 (soft delete preserved)", total)
	}
}

func TestClauseRepoReviewTransitions(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewClauseRepo(db, testutil.Logger(t))

	up := testutil.SeedStagingUpload(t, ctx, tx)
	run := testutil.SeedRun(t, ctx, tx, up.ID)
	created, err := repo.Create(ctx, tx, []*types.Clause{newClause(run.ID, up.ID, 0)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created[0].ID

	if err := repo.SetNeedsReview(ctx, tx, id, true); err != nil {
		t.Fatalf("SetNeedsReview: %v", err)
	}
	queue, err := repo.ListNeedsReview(ctx, tx, up.ID, 10)
	if err != nil {
		t.Fatalf("ListNeedsReview: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != id {
		t.Fatalf("review queue = %v, want [%s]", queue, id)
	}

	if err := repo.MarkHumanVerified(ctx, tx, id); err != nil {
		t.Fatalf("MarkHumanVerified: %v", err)
	}
	queue, err = repo.ListNeedsReview(ctx, tx, up.ID, 10)
	if err != nil {
		t.Fatalf("ListNeedsReview: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("verified clause still in review queue")
	}

	got, err := repo.GetByID(ctx, tx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.HumanVerified {
		t.Fatal("human_verified not set")
	}

	if err := repo.SetSuppressed(ctx, tx, id, true); err != nil {
		t.Fatalf("SetSuppressed: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.Suppressed {
		t.Fatal("suppressed not set")
	}
	if !got.HumanVerified {
		t.Fatal("human_verified must never auto-clear")
	}
}
