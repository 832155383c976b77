package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	segrepos "github.com/veralex/clausebridge-backend/internal/data/repos/segmentation"
	stagingrepos "github.com/veralex/clausebridge-backend/internal/data/repos/staging"
	types "github.com/veralex/clausebridge-backend/internal/domain"
	seg "github.com/veralex/clausebridge-backend/internal/domain/segmentation"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
	"github.com/veralex/clausebridge-backend/internal/platform/blobstore"
	"github.com/veralex/clausebridge-backend/internal/realtime/bus"
	"github.com/veralex/clausebridge-backend/internal/segmentation/engine"
)

// snippetMax bounds the stored clause preview.
const snippetMax = 280

// previewMax bounds the optional preview artifact.
const previewMax = 2048

// ReviewConfig holds the caller-supplied review thresholds. Nothing here is
// hard-coded into the policy: a clause needs review when either confidence
// falls below its threshold or any anomaly flag is present, and a finished
// run lands in needs_review when too many accepted clauses are
// low-confidence.
type ReviewConfig struct {
	BoundaryThreshold     float64
	HeadingThreshold      float64
	MaxLowConfidenceShare float64
}

// ArtifactKeys are the derived-artifact locations a run holds in the store.
type ArtifactKeys struct {
	TextConcat       string
	PagesJSONL       string
	SegmentsArtifact string
	Preview          string
}

func (k ArtifactKeys) written() []string {
	var out []string
	for _, key := range []string{k.TextConcat, k.PagesJSONL, k.SegmentsArtifact, k.Preview} {
		if key != "" {
			out = append(out, key)
		}
	}
	return out
}

type SegmentationService interface {
	// StartRun creates a run in the started state. A second run for the
	// same (upload, version) identity fails with errs.ErrDuplicateRun.
	StartRun(ctx context.Context, uploadID uuid.UUID, v engine.Version) (*types.SegmentationRun, error)

	// Process runs the full lifecycle for one upload: start, segment,
	// write derived artifacts, admit clauses, complete (or flag for
	// review). Failures transition the run to failed with events recorded
	// rather than crashing the caller's process.
	Process(ctx context.Context, uploadID uuid.UUID) (*types.SegmentationRun, error)

	Complete(ctx context.Context, runID uuid.UUID) (*types.SegmentationRun, error)
	Fail(ctx context.Context, runID uuid.UUID, cause error, orphanKeys []string) error

	SuppressClause(ctx context.Context, clauseID uuid.UUID, suppressed bool) error
	VerifyClause(ctx context.Context, clauseID uuid.UUID) error
	FlagClauseForReview(ctx context.Context, clauseID uuid.UUID, reason string) error
	RemoveClause(ctx context.Context, clauseID uuid.UUID) error
	AttachClauseToAgreement(ctx context.Context, clauseID, agreementID uuid.UUID) error

	ReviewQueue(ctx context.Context, uploadID uuid.UUID, limit int) ([]*types.Clause, error)
	RunEvents(ctx context.Context, runID uuid.UUID) ([]*types.SegmentationEvent, error)
}

type segmentationService struct {
	db     *gorm.DB
	log    *logger.Logger
	review ReviewConfig

	runRepo    segrepos.RunRepo
	clauseRepo segrepos.ClauseRepo
	eventRepo  segrepos.EventRepo
	uploadRepo stagingrepos.UploadRepo

	store  blobstore.Store
	engine engine.Engine

	runBus     bus.Bus    // optional
	factMapper FactMapper // optional
}

func NewSegmentationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	review ReviewConfig,
	runRepo segrepos.RunRepo,
	clauseRepo segrepos.ClauseRepo,
	eventRepo segrepos.EventRepo,
	uploadRepo stagingrepos.UploadRepo,
	store blobstore.Store,
	eng engine.Engine,
	runBus bus.Bus,
	factMapper FactMapper,
) SegmentationService {
	serviceLog := baseLog.With("service", "SegmentationService")
	return &segmentationService{
		db:         db,
		log:        serviceLog,
		review:     review,
		runRepo:    runRepo,
		clauseRepo: clauseRepo,
		eventRepo:  eventRepo,
		uploadRepo: uploadRepo,
		store:      store,
		engine:     eng,
		runBus:     runBus,
		factMapper: factMapper,
	}
}

func (s *segmentationService) StartRun(ctx context.Context, uploadID uuid.UUID, v engine.Version) (*types.SegmentationRun, error) {
	up, err := s.uploadRepo.GetByID(ctx, nil, uploadID)
	if err != nil {
		return nil, err
	}

	run := &types.SegmentationRun{
		StagingUploadID: up.ID,
		AlgoMajor:       v.Major,
		AlgoMinor:       v.Minor,
		AlgoPatch:       v.Patch,
		Status:          types.RunStatusStarted,
		Metrics:         types.MustKV(nil),
	}
	// Run row and its run_created ledger entry commit together: a run the
	// audit trail never heard of must not exist.
	var created *types.SegmentationRun
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.runRepo.Create(ctx, tx, run)
		if err != nil {
			// ErrDuplicateRun passes through untouched: "already
			// segmented at this version" is an expected outcome for the
			// caller.
			return err
		}
		if _, err := s.eventRepo.Append(ctx, tx, &types.SegmentationEvent{
			SegmentationRunID: c.ID,
			EventType:         seg.EventRunCreated,
			EventLevel:        types.EventLevelInfo,
			Detail: types.MustKV(types.KV{
				"staging_upload_id": up.ID.String(),
				"algo_version":      v.String(),
			}),
		}); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, created, seg.EventRunCreated)
	return created, nil
}

func (s *segmentationService) Process(ctx context.Context, uploadID uuid.UUID) (*types.SegmentationRun, error) {
	up, err := s.uploadRepo.GetByID(ctx, nil, uploadID)
	if err != nil {
		return nil, err
	}

	run, err := s.StartRun(ctx, up.ID, s.engine.Version())
	if err != nil {
		return nil, err
	}

	if err := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"status": types.RunStatusRunning,
	}); err != nil {
		return nil, err
	}
	run.Status = types.RunStatusRunning
	s.appendEvent(ctx, run.ID, seg.EventRunStarted, types.EventLevelInfo, nil)
	s.publish(ctx, run, seg.EventRunStarted)

	res, err := s.segment(ctx, up)
	if err != nil {
		if fErr := s.Fail(ctx, run.ID, err, nil); fErr != nil {
			s.log.Error("failed to mark run failed", "run_id", run.ID, "error", fErr)
		}
		return nil, fmt.Errorf("segment upload %s: %w", up.ID, err)
	}

	keys, err := s.writeArtifacts(ctx, run.ID, res)
	if err != nil {
		if fErr := s.Fail(ctx, run.ID, err, keys.written()); fErr != nil {
			s.log.Error("failed to mark run failed", "run_id", run.ID, "error", fErr)
		}
		return nil, fmt.Errorf("write artifacts for run %s: %w", run.ID, err)
	}

	clauses, err := s.admitCandidates(run.ID, up.ID, res.Clauses)
	if err == nil {
		// A prior run's clauses hold the upload's active ordinals. Retire
		// them and insert the new set in one transaction so the upload is
		// never left without an active segmentation.
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			superseded, err := s.clauseRepo.SoftDeleteByUploadID(ctx, tx, up.ID)
			if err != nil {
				return err
			}
			if _, err := s.clauseRepo.Create(ctx, tx, clauses); err != nil {
				return err
			}
			if superseded > 0 {
				if _, err := s.eventRepo.Append(ctx, tx, &types.SegmentationEvent{
					SegmentationRunID: run.ID,
					EventType:         seg.EventClausesSuperseded,
					EventLevel:        types.EventLevelInfo,
					Detail:            types.MustKV(types.KV{"count": superseded}),
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err != nil {
		if fErr := s.Fail(ctx, run.ID, err, keys.written()); fErr != nil {
			s.log.Error("failed to mark run failed", "run_id", run.ID, "error", fErr)
		}
		return nil, fmt.Errorf("admit clauses for run %s: %w", run.ID, err)
	}
	s.appendEvent(ctx, run.ID, seg.EventClausesInserted, types.EventLevelInfo, types.KV{
		"count": len(clauses),
	})
	s.recordAnomalies(ctx, run.ID, clauses)

	metrics, err := types.MarshalKV(types.KV(res.Metrics))
	if err != nil {
		metrics = types.MustKV(nil)
		s.log.Warn("dropping malformed engine metrics", "run_id", run.ID, "error", err)
	}
	if err := s.runRepo.UpdateFields(ctx, nil, run.ID, map[string]interface{}{
		"text_concat_key":       keys.TextConcat,
		"pages_jsonl_key":       keys.PagesJSONL,
		"segments_artifact_key": keys.SegmentsArtifact,
		"preview_key":           keys.Preview,
		"metrics":               metrics,
	}); err != nil {
		if fErr := s.Fail(ctx, run.ID, err, keys.written()); fErr != nil {
			s.log.Error("failed to mark run failed", "run_id", run.ID, "error", fErr)
		}
		return nil, fmt.Errorf("record artifacts for run %s: %w", run.ID, err)
	}

	return s.Complete(ctx, run.ID)
}

func (s *segmentationService) Complete(ctx context.Context, runID uuid.UUID) (*types.SegmentationRun, error) {
	var result *types.SegmentationRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.runRepo.GetByID(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Terminal() {
			return fmt.Errorf("%w: run %s already %s", errs.ErrInvalidArgument, run.ID, run.Status)
		}
		if !run.HasProducedOutput() {
			return errs.Validation("text_concat_key", "required before completion")
		}

		agg, err := s.runRepo.AggregateClauses(ctx, tx, run.ID, s.review.BoundaryThreshold)
		if err != nil {
			return err
		}

		status := types.RunStatusCompleted
		reason := ""
		if agg.AcceptedCount > 0 {
			lowShare := float64(agg.LowConfAccepted) / float64(agg.AcceptedCount)
			if lowShare > s.review.MaxLowConfidenceShare {
				status = types.RunStatusNeedsReview
				reason = fmt.Sprintf(
					"%d of %d accepted clauses below boundary confidence %.2f",
					agg.LowConfAccepted, agg.AcceptedCount, s.review.BoundaryThreshold,
				)
			}
		}

		updates := map[string]interface{}{
			"status":             status,
			"accepted_count":     agg.AcceptedCount,
			"suppressed_count":   agg.SuppressedCount,
			"mean_conf_boundary": agg.MeanConfBoundary,
		}
		if reason != "" {
			updates["needs_review_reason"] = reason
		}
		if err := s.runRepo.UpdateFields(ctx, tx, run.ID, updates); err != nil {
			return err
		}

		if status == types.RunStatusNeedsReview {
			if _, err := s.eventRepo.Append(ctx, tx, &types.SegmentationEvent{
				SegmentationRunID: run.ID,
				EventType:         seg.EventReviewFlagged,
				EventLevel:        types.EventLevelWarning,
				Detail:            types.MustKV(types.KV{"reason": reason}),
			}); err != nil {
				return err
			}
		} else {
			if _, err := s.eventRepo.Append(ctx, tx, &types.SegmentationEvent{
				SegmentationRunID: run.ID,
				EventType:         seg.EventRunCompleted,
				EventLevel:        types.EventLevelInfo,
				Detail: types.MustKV(types.KV{
					"accepted_count":     agg.AcceptedCount,
					"suppressed_count":   agg.SuppressedCount,
					"mean_conf_boundary": agg.MeanConfBoundary,
				}),
			}); err != nil {
				return err
			}
		}

		run.Status = status
		run.NeedsReviewReason = reason
		run.AcceptedCount = agg.AcceptedCount
		run.SuppressedCount = agg.SuppressedCount
		run.MeanConfBoundary = agg.MeanConfBoundary
		result = run
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := seg.EventRunCompleted
	if result.Status == types.RunStatusNeedsReview {
		eventType = seg.EventReviewFlagged
	}
	s.publish(ctx, result, eventType)
	return result, nil
}

func (s *segmentationService) Fail(ctx context.Context, runID uuid.UUID, cause error, orphanKeys []string) error {
	var failed *types.SegmentationRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.runRepo.GetByID(ctx, tx, runID)
		if err != nil {
			return err
		}
		if run.Status == types.RunStatusFailed {
			return nil
		}
		if run.Terminal() {
			return fmt.Errorf("%w: run %s already %s", errs.ErrInvalidArgument, run.ID, run.Status)
		}

		if err := s.runRepo.UpdateFields(ctx, tx, run.ID, map[string]interface{}{
			"status": types.RunStatusFailed,
		}); err != nil {
			return err
		}

		// The failure and its orphan keys commit with the status flip: a
		// failed run without a run_failed ledger entry must not exist.
		detail := types.KV{}
		if cause != nil {
			detail["cause"] = cause.Error()
		}
		evs := []*types.SegmentationEvent{{
			SegmentationRunID: run.ID,
			EventType:         seg.EventRunFailed,
			EventLevel:        types.EventLevelError,
			Detail:            types.MustKV(detail),
		}}
		// Orphaned artifacts are acceptable (no automatic GC) but must be
		// traceable from the audit trail.
		for _, key := range orphanKeys {
			evs = append(evs, &types.SegmentationEvent{
				SegmentationRunID: run.ID,
				EventType:         seg.EventOrphanArtifact,
				EventLevel:        types.EventLevelWarning,
				Detail:            types.MustKV(types.KV{"storage_key": key}),
			})
		}
		if _, err := s.eventRepo.AppendBatch(ctx, tx, evs); err != nil {
			return err
		}

		run.Status = types.RunStatusFailed
		failed = run
		return nil
	})
	if err != nil {
		return err
	}

	if failed != nil {
		s.publish(ctx, failed, seg.EventRunFailed)
	}
	return nil
}

func (s *segmentationService) SuppressClause(ctx context.Context, clauseID uuid.UUID, suppressed bool) error {
	c, err := s.clauseRepo.GetByID(ctx, nil, clauseID)
	if err != nil {
		return err
	}
	if err := s.clauseRepo.SetSuppressed(ctx, nil, clauseID, suppressed); err != nil {
		return err
	}
	s.appendEvent(ctx, c.SegmentationRunID, seg.EventClauseSuppressed, types.EventLevelInfo, types.KV{
		"clause_id":  clauseID.String(),
		"suppressed": suppressed,
	})
	return nil
}

func (s *segmentationService) VerifyClause(ctx context.Context, clauseID uuid.UUID) error {
	c, err := s.clauseRepo.GetByID(ctx, nil, clauseID)
	if err != nil {
		return err
	}
	if err := s.clauseRepo.MarkHumanVerified(ctx, nil, clauseID); err != nil {
		return err
	}
	s.appendEvent(ctx, c.SegmentationRunID, seg.EventClauseVerified, types.EventLevelInfo, types.KV{
		"clause_id": clauseID.String(),
	})
	return nil
}

func (s *segmentationService) FlagClauseForReview(ctx context.Context, clauseID uuid.UUID, reason string) error {
	c, err := s.clauseRepo.GetByID(ctx, nil, clauseID)
	if err != nil {
		return err
	}
	if err := s.clauseRepo.SetNeedsReview(ctx, nil, clauseID, true); err != nil {
		return err
	}
	s.appendEvent(ctx, c.SegmentationRunID, seg.EventReviewFlagged, types.EventLevelWarning, types.KV{
		"clause_id": clauseID.String(),
		"reason":    reason,
	})
	return nil
}

func (s *segmentationService) RemoveClause(ctx context.Context, clauseID uuid.UUID) error {
	c, err := s.clauseRepo.GetByID(ctx, nil, clauseID)
	if err != nil {
		return err
	}
	if err := s.clauseRepo.SoftDelete(ctx, nil, clauseID); err != nil {
		return err
	}
	s.appendEvent(ctx, c.SegmentationRunID, seg.EventClauseRemoved, types.EventLevelWarning, types.KV{
		"clause_id": clauseID.String(),
		"ordinal":   c.Ordinal,
	})
	return nil
}

func (s *segmentationService) AttachClauseToAgreement(ctx context.Context, clauseID, agreementID uuid.UUID) error {
	c, err := s.clauseRepo.GetByID(ctx, nil, clauseID)
	if err != nil {
		return err
	}
	if err := s.clauseRepo.AttachAgreement(ctx, nil, clauseID, agreementID); err != nil {
		return err
	}
	if s.factMapper == nil {
		return nil
	}
	if _, err := s.factMapper.CaptureFact(ctx, types.KV{
		"agreement_id": agreementID.String(),
		"clause_id":    clauseID.String(),
		"ordinal":      c.Ordinal,
		"heading_text": c.HeadingText,
	}); err != nil {
		return fmt.Errorf("capture fact for clause %s: %w", clauseID, err)
	}
	if _, err := s.factMapper.EnqueueMappingWorker(ctx, agreementID); err != nil {
		return fmt.Errorf("enqueue mapping worker for agreement %s: %w", agreementID, err)
	}
	return nil
}

func (s *segmentationService) ReviewQueue(ctx context.Context, uploadID uuid.UUID, limit int) ([]*types.Clause, error) {
	return s.clauseRepo.ListNeedsReview(ctx, nil, uploadID, limit)
}

func (s *segmentationService) RunEvents(ctx context.Context, runID uuid.UUID) ([]*types.SegmentationEvent, error) {
	return s.eventRepo.ListByRunID(ctx, nil, runID)
}

func (s *segmentationService) segment(ctx context.Context, up *types.StagingUpload) (*engine.Result, error) {
	rc, err := s.store.Open(ctx, up.StorageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	res, err := s.engine.Segment(ctx, engine.SourceDocument{
		UploadID:    up.ID,
		Filename:    up.OriginalFilename,
		ContentType: up.ContentTypeDetected,
		Content:     rc,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Pages) == 0 {
		return nil, fmt.Errorf("engine %s produced no pages", s.engine.Version())
	}
	return res, nil
}

// writeArtifacts stores the run's derived artifacts concurrently. Each blob
// key is derived from the artifact's own content hash, so retries after a
// partial failure are naturally deduplicated.
func (s *segmentationService) writeArtifacts(ctx context.Context, runID uuid.UUID, res *engine.Result) (ArtifactKeys, error) {
	var concat strings.Builder
	for _, p := range res.Pages {
		concat.WriteString(p.Text)
	}
	textBytes := []byte(concat.String())

	var pagesBuf bytes.Buffer
	enc := json.NewEncoder(&pagesBuf)
	for _, p := range res.Pages {
		if err := enc.Encode(p); err != nil {
			return ArtifactKeys{}, fmt.Errorf("encode page %d: %w", p.Number, err)
		}
	}

	segmentsBytes, err := json.Marshal(res.Clauses)
	if err != nil {
		return ArtifactKeys{}, fmt.Errorf("encode segments artifact: %w", err)
	}

	preview := snippetOf(concat.String(), previewMax)

	now := time.Now().UTC()
	keys := ArtifactKeys{
		TextConcat:       artifactKey(textBytes, "txt", now),
		PagesJSONL:       artifactKey(pagesBuf.Bytes(), "jsonl", now),
		SegmentsArtifact: artifactKey(segmentsBytes, "json", now),
		Preview:          artifactKey([]byte(preview), "txt", now),
	}

	writes := []struct {
		key  string
		data []byte
	}{
		{keys.TextConcat, textBytes},
		{keys.PagesJSONL, pagesBuf.Bytes()},
		{keys.SegmentsArtifact, segmentsBytes},
		{keys.Preview, []byte(preview)},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range writes {
		w := w
		g.Go(func() error {
			if err := s.store.Put(gctx, w.key, bytes.NewReader(w.data)); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return keys, err
	}

	for _, w := range writes {
		s.appendEvent(ctx, runID, seg.EventArtifactWritten, types.EventLevelInfo, types.KV{
			"storage_key": w.key,
			"byte_size":   len(w.data),
		})
	}
	return keys, nil
}

func (s *segmentationService) admitCandidates(runID, uploadID uuid.UUID, candidates []engine.CandidateClause) ([]*types.Clause, error) {
	clauses := make([]*types.Clause, 0, len(candidates))
	for _, cand := range candidates {
		flags, err := types.MarshalKV(types.KV(cand.AnomalyFlags))
		if err != nil {
			return nil, errs.Validation("anomaly_flags", err.Error())
		}
		c := &types.Clause{
			SegmentationRunID:  runID,
			StagingUploadID:    uploadID,
			Ordinal:            cand.Ordinal,
			NumberLabel:        cand.NumberLabel,
			NumberLabelNorm:    cand.NumberLabelNorm,
			HeadingText:        cand.HeadingText,
			StartChar:          cand.StartChar,
			EndChar:            cand.EndChar,
			StartPage:          cand.StartPage,
			EndPage:            cand.EndPage,
			TextSnippet:        snippetOf(cand.TextSnippet, snippetMax),
			DetectedStyle:      cand.DetectedStyle,
			ConfidenceBoundary: cand.ConfidenceBoundary,
			ConfidenceHeading:  cand.ConfidenceHeading,
			AnomalyFlags:       flags,
			NeedsReview:        clauseNeedsReview(cand.ConfidenceBoundary, cand.ConfidenceHeading, cand.AnomalyFlags, s.review),
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func (s *segmentationService) recordAnomalies(ctx context.Context, runID uuid.UUID, clauses []*types.Clause) {
	var evs []*types.SegmentationEvent
	for _, c := range clauses {
		if !c.NeedsReview {
			continue
		}
		evs = append(evs, &types.SegmentationEvent{
			SegmentationRunID: runID,
			EventType:         seg.EventClauseAnomaly,
			EventLevel:        types.EventLevelWarning,
			Detail: types.MustKV(types.KV{
				"ordinal":             c.Ordinal,
				"confidence_boundary": c.ConfidenceBoundary,
				"confidence_heading":  c.ConfidenceHeading,
			}),
		})
	}
	if len(evs) == 0 {
		return
	}
	if _, err := s.eventRepo.AppendBatch(ctx, nil, evs); err != nil {
		s.log.Warn("failed to append anomaly events", "run_id", runID, "error", err)
	}
}

func (s *segmentationService) appendEvent(ctx context.Context, runID uuid.UUID, eventType, level string, detail types.KV) {
	raw, err := types.MarshalKV(detail)
	if err != nil {
		s.log.Warn("dropping malformed event detail", "run_id", runID, "event_type", eventType, "error", err)
		raw = types.MustKV(nil)
	}
	if _, err := s.eventRepo.Append(ctx, nil, &types.SegmentationEvent{
		SegmentationRunID: runID,
		EventType:         eventType,
		EventLevel:        level,
		Detail:            raw,
	}); err != nil {
		s.log.Warn("failed to append event", "run_id", runID, "event_type", eventType, "error", err)
	}
}

func (s *segmentationService) publish(ctx context.Context, run *types.SegmentationRun, eventType string) {
	if s.runBus == nil {
		return
	}
	if err := s.runBus.Publish(ctx, bus.RunMessage{
		RunID:           run.ID,
		StagingUploadID: run.StagingUploadID,
		Status:          run.Status,
		EventType:       eventType,
	}); err != nil {
		s.log.Warn("failed to publish run message", "run_id", run.ID, "error", err)
	}
}

// clauseNeedsReview applies the configured thresholds: below-threshold
// confidence on either axis or any anomaly flag routes the clause to the
// review queue.
func clauseNeedsReview(confBoundary, confHeading float64, flags map[string]any, cfg ReviewConfig) bool {
	if confBoundary < cfg.BoundaryThreshold {
		return true
	}
	if confHeading < cfg.HeadingThreshold {
		return true
	}
	return len(flags) > 0
}

func snippetOf(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	// Avoid splitting a multi-byte rune at the boundary.
	for len(cut) > 0 && cut[len(cut)-1]>>6 == 0b10 {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func artifactKey(data []byte, ext string, t time.Time) string {
	sum := sha256.Sum256(data)
	return blobstore.StorageKey(sum[:], ext, t)
}
