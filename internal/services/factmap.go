package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/veralex/clausebridge-backend/internal/domain"
	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
)

// Fact is the downstream record produced when a clause is attached to an
// agreement. The mapping system owns its lifecycle; this side only hands it
// off.
type Fact struct {
	ID          uuid.UUID `json:"id"`
	AgreementID uuid.UUID `json:"agreement_id"`
	Attributes  types.KV  `json:"attributes"`
	CapturedAt  time.Time `json:"captured_at"`
}

// JobHandle identifies an enqueued mapping job.
type JobHandle struct {
	ID          uuid.UUID `json:"id"`
	AgreementID uuid.UUID `json:"agreement_id"`
	Queue       string    `json:"queue"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// FactMapper is the outbound boundary to the fact-mapping system. Attributes
// must carry an agreement_id; everything else is pass-through.
type FactMapper interface {
	CaptureFact(ctx context.Context, attrs types.KV) (*Fact, error)
	EnqueueMappingWorker(ctx context.Context, agreementID uuid.UUID) (*JobHandle, error)
}

type redisFactMapper struct {
	log      *logger.Logger
	rdb      *goredis.Client
	factList string
	jobQueue string
}

// NewRedisFactMapper hands facts and mapping jobs to the downstream workers
// over redis lists. Requires REDIS_ADDR; list names default to
// "agreement_facts" and "agreement_mapping_jobs".
func NewRedisFactMapper(log *logger.Logger) (FactMapper, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	factList := strings.TrimSpace(os.Getenv("REDIS_FACT_LIST"))
	if factList == "" {
		factList = "agreement_facts"
	}
	jobQueue := strings.TrimSpace(os.Getenv("REDIS_MAPPING_QUEUE"))
	if jobQueue == "" {
		jobQueue = "agreement_mapping_jobs"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisFactMapper{
		log:      log.With("service", "RedisFactMapper"),
		rdb:      rdb,
		factList: factList,
		jobQueue: jobQueue,
	}, nil
}

func (m *redisFactMapper) CaptureFact(ctx context.Context, attrs types.KV) (*Fact, error) {
	agreementID, err := agreementIDFrom(attrs)
	if err != nil {
		return nil, err
	}

	fact := &Fact{
		ID:          uuid.New(),
		AgreementID: agreementID,
		Attributes:  attrs,
		CapturedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(fact)
	if err != nil {
		return nil, fmt.Errorf("encode fact: %w", err)
	}
	if err := m.rdb.RPush(ctx, m.factList, raw).Err(); err != nil {
		return nil, fmt.Errorf("push fact: %w", err)
	}
	m.log.Debug("fact captured", "fact_id", fact.ID, "agreement_id", agreementID)
	return fact, nil
}

func (m *redisFactMapper) EnqueueMappingWorker(ctx context.Context, agreementID uuid.UUID) (*JobHandle, error) {
	if agreementID == uuid.Nil {
		return nil, errs.Validation("agreement_id", "must not be empty")
	}

	job := &JobHandle{
		ID:          uuid.New(),
		AgreementID: agreementID,
		Queue:       m.jobQueue,
		EnqueuedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode mapping job: %w", err)
	}
	if err := m.rdb.RPush(ctx, m.jobQueue, raw).Err(); err != nil {
		return nil, fmt.Errorf("enqueue mapping job: %w", err)
	}
	m.log.Debug("mapping job enqueued", "job_id", job.ID, "agreement_id", agreementID)
	return job, nil
}

func agreementIDFrom(attrs types.KV) (uuid.UUID, error) {
	raw, ok := attrs["agreement_id"]
	if !ok {
		return uuid.Nil, errs.Validation("agreement_id", "required")
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, errs.Validation("agreement_id", "must be a uuid string")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errs.Validation("agreement_id", "must be a uuid string")
	}
	return id, nil
}
