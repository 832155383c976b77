package staging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/veralex/clausebridge-backend/internal/data/repos/testutil"
	types "github.com/veralex/clausebridge-backend/internal/domain"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
)

func TestUploadRepoCreateAndGet(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewUploadRepo(db, testutil.Logger(t))

	up := &types.StagingUpload{
		StorageKey:          "2024/06/15/abc123.pdf",
		SourceHash:          "deadbeef",
		ContentTypeDetected: "application/pdf",
		OriginalFilename:    "nda.pdf",
		ByteSize:            2048,
		Status:              "staged",
		ScanStatus:          "clean",
	}
	created, err := repo.Create(ctx, tx, up)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StorageKey != up.StorageKey {
		t.Fatalf("storage_key = %q, want %q", got.StorageKey, up.StorageKey)
	}

	byHash, err := repo.GetByHash(ctx, tx, "deadbeef")
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if len(byHash) != 1 || byHash[0].ID != created.ID {
		t.Fatalf("GetByHash returned %d rows", len(byHash))
	}

	if _, err := repo.GetByID(ctx, tx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing upload: err=%v, want ErrNotFound", err)
	}
}

func TestUploadRepoRejectsIncomplete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewUploadRepo(db, testutil.Logger(t))

	if _, err := repo.Create(ctx, tx, &types.StagingUpload{SourceHash: "x"}); !errs.IsValidation(err) {
		t.Fatalf("missing storage_key: err=%v, want ValidationError", err)
	}
	if _, err := repo.Create(ctx, tx, &types.StagingUpload{StorageKey: "k"}); !errs.IsValidation(err) {
		t.Fatalf("missing source_hash: err=%v, want ValidationError", err)
	}
}
