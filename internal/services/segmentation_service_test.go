package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"gorm.io/gorm"

	segrepos "github.com/veralex/clausebridge-backend/internal/data/repos/segmentation"
	stagingrepos "github.com/veralex/clausebridge-backend/internal/data/repos/staging"
	"github.com/veralex/clausebridge-backend/internal/data/repos/testutil"
	types "github.com/veralex/clausebridge-backend/internal/domain"
	seg "github.com/veralex/clausebridge-backend/internal/domain/segmentation"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/platform/blobstore"
	"github.com/veralex/clausebridge-backend/internal/segmentation/engine"
)

type stubEngine struct {
	version engine.Version
	result  *engine.Result
	err     error
}

func (e *stubEngine) Version() engine.Version { return e.version }

func (e *stubEngine) Segment(ctx context.Context, doc engine.SourceDocument) (*engine.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	if _, err := io.ReadAll(doc.Content); err != nil {
		return nil, err
	}
	return e.result, nil
}

func candidateResult(confidences ...float64) *engine.Result {
	pages := []engine.Page{
		{Number: 1, Text: "CONFIDENTIALITY AGREEMENT\n"},
		{Number: 2, Text: "1. Definitions. Confidential Information means...\n"},
	}
	clauses := make([]engine.CandidateClause, 0, len(confidences))
	for i, conf := range confidences {
		clauses = append(clauses, engine.CandidateClause{
			Ordinal:            i,
			NumberLabel:        fmt.Sprintf("%d.", i+1),
			NumberLabelNorm:    fmt.Sprintf("%d", i+1),
			HeadingText:        fmt.Sprintf("Clause %d", i+1),
			StartChar:          i * 50,
			EndChar:            i*50 + 40,
			StartPage:          1,
			EndPage:            2,
			TextSnippet:        fmt.Sprintf("clause %d body text", i+1),
			DetectedStyle:      seg.StyleNumbered,
			ConfidenceBoundary: conf,
			ConfidenceHeading:  0.9,
		})
	}
	return &engine.Result{
		Pages:   pages,
		Clauses: clauses,
		Metrics: map[string]any{"pages": len(pages), "candidates": len(clauses)},
	}
}

type serviceHarness struct {
	svc        SegmentationService
	store      blobstore.Store
	runRepo    segrepos.RunRepo
	clauseRepo segrepos.ClauseRepo
	eventRepo  segrepos.EventRepo
	uploadRepo stagingrepos.UploadRepo
	tx         *gorm.DB
}

func newHarness(t *testing.T, eng engine.Engine) *serviceHarness {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	store, err := blobstore.NewLocal(blobstore.Config{Root: t.TempDir()}, log)
	if err != nil {
		t.Fatalf("init blobstore: %v", err)
	}

	h := &serviceHarness{
		store:      store,
		runRepo:    segrepos.NewRunRepo(tx, log),
		clauseRepo: segrepos.NewClauseRepo(tx, log),
		eventRepo:  segrepos.NewEventRepo(tx, log),
		uploadRepo: stagingrepos.NewUploadRepo(tx, log),
		tx:         tx,
	}
	h.svc = NewSegmentationService(
		tx, log,
		ReviewConfig{BoundaryThreshold: 0.5, HeadingThreshold: 0.4, MaxLowConfidenceShare: 0.34},
		h.runRepo, h.clauseRepo, h.eventRepo, h.uploadRepo,
		store, eng, nil, nil,
	)
	return h
}

func (h *serviceHarness) seedUploadWithBlob(t *testing.T, ctx context.Context) *types.StagingUpload {
	t.Helper()
	up := testutil.SeedStagingUpload(t, ctx, h.tx)
	src := strings.NewReader("%PDF-1.7 fake source bytes")
	if err := h.store.Put(ctx, up.StorageKey, src); err != nil {
		t.Fatalf("stage source blob: %v", err)
	}
	return up
}

func eventTypes(evs []*types.SegmentationEvent) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.EventType)
	}
	return out
}

func countEvents(evs []*types.SegmentationEvent, eventType string) int {
	n := 0
	for _, e := range evs {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func TestProcessCompletesRun(t *testing.T) {
	ctx := context.Background()
	eng := &stubEngine{
		version: engine.Version{Major: 2, Minor: 1, Patch: 0},
		result:  candidateResult(0.95, 0.9, 0.85),
	}
	h := newHarness(t, eng)
	up := h.seedUploadWithBlob(t, ctx)

	run, err := h.svc.Process(ctx, up.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if run.Status != types.RunStatusCompleted {
		t.Fatalf("run status = %s, want completed", run.Status)
	}
	if run.AcceptedCount != 3 || run.SuppressedCount != 0 {
		t.Fatalf("counts = %d accepted / %d suppressed", run.AcceptedCount, run.SuppressedCount)
	}
	if !run.HasProducedOutput() {
		t.Fatal("completed run has no artifact keys")
	}

	stored, err := h.runRepo.GetByID(ctx, nil, run.ID)
	if err != nil {
		t.Fatalf("reload run: %v", err)
	}
	for name, key := range map[string]string{
		"text_concat_key":       stored.TextConcatKey,
		"pages_jsonl_key":       stored.PagesJSONLKey,
		"segments_artifact_key": stored.SegmentsArtifactKey,
		"preview_key":           stored.PreviewKey,
	} {
		if key == "" {
			t.Fatalf("%s not recorded", name)
		}
		if _, err := h.store.Head(ctx, key); err != nil {
			t.Fatalf("%s %s not readable: %v", name, key, err)
		}
	}

	clauses, err := h.clauseRepo.GetByRunID(ctx, nil, run.ID)
	if err != nil {
		t.Fatalf("list clauses: %v", err)
	}
	if len(clauses) != 3 {
		t.Fatalf("clause count = %d, want 3", len(clauses))
	}
	for i, c := range clauses {
		if c.Ordinal != i {
			t.Fatalf("clause %d has ordinal %d", i, c.Ordinal)
		}
		if c.NeedsReview {
			t.Fatalf("confident clause %d flagged for review", i)
		}
	}

	evs, err := h.svc.RunEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for _, want := range []string{
		seg.EventRunCreated, seg.EventRunStarted, seg.EventClausesInserted, seg.EventRunCompleted,
	} {
		if countEvents(evs, want) != 1 {
			t.Fatalf("event %s count = %d in %v", want, countEvents(evs, want), eventTypes(evs))
		}
	}
	if got := countEvents(evs, seg.EventArtifactWritten); got != 4 {
		t.Fatalf("artifact_written count = %d, want 4", got)
	}
}

func TestProcessDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	eng := &stubEngine{
		version: engine.Version{Major: 1, Minor: 0, Patch: 0},
		result:  candidateResult(0.9),
	}
	h := newHarness(t, eng)
	up := h.seedUploadWithBlob(t, ctx)

	if _, err := h.svc.Process(ctx, up.ID); err != nil {
		t.Fatalf("first Process: %v", err)
	}

	if err := h.tx.SavePoint("dup").Error; err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	_, err := h.svc.Process(ctx, up.ID)
	if !errors.Is(err, errs.ErrDuplicateRun) {
		t.Fatalf("second Process err = %v, want ErrDuplicateRun", err)
	}
	if err := h.tx.RollbackTo("dup").Error; err != nil {
		t.Fatalf("rollback to savepoint: %v", err)
	}

	eng.version = engine.Version{Major: 1, Minor: 1, Patch: 0}
	if _, err := h.svc.Process(ctx, up.ID); err != nil {
		t.Fatalf("Process at bumped version: %v", err)
	}
}

func TestProcessSupersedesPriorClauses(t *testing.T) {
	ctx := context.Background()
	eng := &stubEngine{
		version: engine.Version{Major: 1, Minor: 0, Patch: 0},
		result:  candidateResult(0.9, 0.9),
	}
	h := newHarness(t, eng)
	up := h.seedUploadWithBlob(t, ctx)

	first, err := h.svc.Process(ctx, up.ID)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}

	eng.version = engine.Version{Major: 2, Minor: 0, Patch: 0}
	eng.result = candidateResult(0.9, 0.9, 0.9)
	second, err := h.svc.Process(ctx, up.ID)
	if err != nil {
		t.Fatalf("re-segmenting at new version: %v", err)
	}
	if second.Status != types.RunStatusCompleted {
		t.Fatalf("second run status = %s, want completed", second.Status)
	}
	if second.AcceptedCount != 3 {
		t.Fatalf("second run accepted_count = %d, want 3", second.AcceptedCount)
	}

	// The upload's active clauses now all belong to the second run.
	active, err := h.clauseRepo.GetByUploadID(ctx, nil, up.ID)
	if err != nil {
		t.Fatalf("list active clauses: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("active clause count = %d, want 3", len(active))
	}
	for _, c := range active {
		if c.SegmentationRunID != second.ID {
			t.Fatalf("active clause %s belongs to run %s, want %s", c.ID, c.SegmentationRunID, second.ID)
		}
	}

	// The first run's clauses are retired, not erased.
	stale, err := h.clauseRepo.GetByRunID(ctx, nil, first.ID)
	if err != nil {
		t.Fatalf("list first run clauses: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("first run still has %d active clauses", len(stale))
	}
	var total int64
	if err := h.tx.Unscoped().Model(&types.Clause{}).
		Where("staging_upload_id = ?", up.ID).
		Count(&total).Error; err != nil {
		t.Fatalf("count all clauses: %v", err)
	}
	if total != 5 {
		t.Fatalf("total clause rows = %d, want 5", total)
	}

	evs, err := h.svc.RunEvents(ctx, second.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if countEvents(evs, seg.EventClausesSuperseded) != 1 {
		t.Fatalf("clauses_superseded missing from %v", eventTypes(evs))
	}
	firstEvs, err := h.svc.RunEvents(ctx, first.ID)
	if err != nil {
		t.Fatalf("list first run events: %v", err)
	}
	if countEvents(firstEvs, seg.EventClausesSuperseded) != 0 {
		t.Fatal("supersede recorded on the superseded run instead of the new one")
	}
}

func TestProcessFlagsLowConfidenceRun(t *testing.T) {
	ctx := context.Background()
	eng := &stubEngine{
		version: engine.Version{Major: 1, Minor: 0, Patch: 0},
		result:  candidateResult(0.2, 0.3, 0.9),
	}
	h := newHarness(t, eng)
	up := h.seedUploadWithBlob(t, ctx)

	run, err := h.svc.Process(ctx, up.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if run.Status != types.RunStatusNeedsReview {
		t.Fatalf("run status = %s, want needs_review", run.Status)
	}
	if run.NeedsReviewReason == "" {
		t.Fatal("needs_review run has no reason")
	}

	queue, err := h.svc.ReviewQueue(ctx, up.ID, 10)
	if err != nil {
		t.Fatalf("ReviewQueue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("review queue size = %d, want 2", len(queue))
	}
	// Least confident first.
	if queue[0].ConfidenceBoundary > queue[1].ConfidenceBoundary {
		t.Fatalf("queue not ordered by confidence: %v then %v",
			queue[0].ConfidenceBoundary, queue[1].ConfidenceBoundary)
	}

	evs, err := h.svc.RunEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if countEvents(evs, seg.EventReviewFlagged) != 1 {
		t.Fatalf("review_flagged missing from %v", eventTypes(evs))
	}
	if countEvents(evs, seg.EventClauseAnomaly) != 2 {
		t.Fatalf("clause_anomaly count = %d, want 2", countEvents(evs, seg.EventClauseAnomaly))
	}
	if countEvents(evs, seg.EventRunCompleted) != 0 {
		t.Fatal("needs_review run emitted run_completed")
	}
}

func TestProcessEngineFailure(t *testing.T) {
	ctx := context.Background()
	eng := &stubEngine{
		version: engine.Version{Major: 1, Minor: 0, Patch: 0},
		err:     errors.New("ocr backend unavailable"),
	}
	h := newHarness(t, eng)
	up := h.seedUploadWithBlob(t, ctx)

	if _, err := h.svc.Process(ctx, up.ID); err == nil {
		t.Fatal("Process succeeded with failing engine")
	}

	run, err := h.runRepo.GetLatestByUploadID(ctx, nil, up.ID)
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != types.RunStatusFailed {
		t.Fatalf("run status = %s, want failed", run.Status)
	}

	evs, err := h.svc.RunEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if countEvents(evs, seg.EventRunFailed) != 1 {
		t.Fatalf("run_failed missing from %v", eventTypes(evs))
	}
	var failed *types.SegmentationEvent
	for _, e := range evs {
		if e.EventType == seg.EventRunFailed {
			failed = e
		}
	}
	if failed.EventLevel != types.EventLevelError {
		t.Fatalf("run_failed level = %s, want error", failed.EventLevel)
	}
	if !strings.Contains(string(failed.Detail), "ocr backend unavailable") {
		t.Fatalf("run_failed detail missing cause: %s", failed.Detail)
	}
}

func TestFailRecordsOrphanArtifacts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubEngine{version: engine.Version{Major: 1}})
	up := testutil.SeedStagingUpload(t, ctx, h.tx)
	run := testutil.SeedRun(t, ctx, h.tx, up.ID)

	orphans := []string{"2026/03/09/aaa.txt", "2026/03/09/bbb.jsonl"}
	if err := h.svc.Fail(ctx, run.ID, errors.New("boom"), orphans); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	evs, err := h.svc.RunEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if countEvents(evs, seg.EventOrphanArtifact) != 2 {
		t.Fatalf("orphan_artifact count = %d, want 2", countEvents(evs, seg.EventOrphanArtifact))
	}

	// Failing an already failed run is a no-op, not an error.
	if err := h.svc.Fail(ctx, run.ID, errors.New("again"), nil); err != nil {
		t.Fatalf("second Fail: %v", err)
	}
	evs, _ = h.svc.RunEvents(ctx, run.ID)
	if countEvents(evs, seg.EventRunFailed) != 1 {
		t.Fatalf("run_failed count = %d after repeat Fail", countEvents(evs, seg.EventRunFailed))
	}
}

func TestClauseReviewOperations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubEngine{version: engine.Version{Major: 1}})
	up := testutil.SeedStagingUpload(t, ctx, h.tx)
	run := testutil.SeedRun(t, ctx, h.tx, up.ID)
	c := testutil.SeedClause(t, ctx, h.tx, run.ID, up.ID, 0)

	if err := h.svc.FlagClauseForReview(ctx, c.ID, "heading looks merged"); err != nil {
		t.Fatalf("FlagClauseForReview: %v", err)
	}
	if err := h.svc.SuppressClause(ctx, c.ID, true); err != nil {
		t.Fatalf("SuppressClause: %v", err)
	}
	if err := h.svc.VerifyClause(ctx, c.ID); err != nil {
		t.Fatalf("VerifyClause: %v", err)
	}
	if err := h.svc.RemoveClause(ctx, c.ID); err != nil {
		t.Fatalf("RemoveClause: %v", err)
	}

	evs, err := h.svc.RunEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for _, want := range []string{
		seg.EventReviewFlagged, seg.EventClauseSuppressed,
		seg.EventClauseVerified, seg.EventClauseRemoved,
	} {
		if countEvents(evs, want) != 1 {
			t.Fatalf("event %s count = %d in %v", want, countEvents(evs, want), eventTypes(evs))
		}
	}

	if _, err := h.clauseRepo.GetByID(ctx, nil, c.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("removed clause lookup err = %v, want ErrNotFound", err)
	}
}
