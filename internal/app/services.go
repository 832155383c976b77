package app

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
	"github.com/veralex/clausebridge-backend/internal/platform/blobstore"
	"github.com/veralex/clausebridge-backend/internal/realtime/bus"
	"github.com/veralex/clausebridge-backend/internal/segmentation/engine"
	"github.com/veralex/clausebridge-backend/internal/services"
)

type Services struct {
	Segmentation services.SegmentationService
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	reposet Repos,
	store blobstore.Store,
	eng engine.Engine,
	runBus bus.Bus,
	factMapper services.FactMapper,
) (Services, error) {
	log.Info("Wiring services...")
	if eng == nil {
		return Services{}, fmt.Errorf("segmentation engine required")
	}

	segmentation := services.NewSegmentationService(
		db, log, cfg.Review,
		reposet.Run, reposet.Clause, reposet.Event, reposet.StagingUpload,
		store, eng, runBus, factMapper,
	)
	return Services{Segmentation: segmentation}, nil
}

// wireRedis builds the optional redis-backed collaborators. Both are skipped
// with an info log when REDIS_ADDR is unset.
func wireRedis(log *logger.Logger) (bus.Bus, services.FactMapper, error) {
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) == "" {
		log.Info("REDIS_ADDR not set, run bus and fact mapper disabled")
		return nil, nil, nil
	}

	runBus, err := bus.NewRedisBus(log)
	if err != nil {
		return nil, nil, fmt.Errorf("init run bus: %w", err)
	}
	factMapper, err := services.NewRedisFactMapper(log)
	if err != nil {
		_ = runBus.Close()
		return nil, nil, fmt.Errorf("init fact mapper: %w", err)
	}
	return runBus, factMapper, nil
}
