package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/veralex/clausebridge-backend/internal/data/db"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
	"github.com/veralex/clausebridge-backend/internal/platform/blobstore"
	"github.com/veralex/clausebridge-backend/internal/realtime/bus"
	"github.com/veralex/clausebridge-backend/internal/segmentation/engine"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Store    blobstore.Store
	Bus      bus.Bus
	cancel   context.CancelFunc
}

// New assembles the full pipeline. The segmentation engine is injected so
// deployments can swap the baseline heuristic for an external classifier.
func New(eng engine.Engine) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	store, err := blobstore.NewLocal(blobstore.Config{Root: cfg.StorageRoot}, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init blobstore: %w", err)
	}

	runBus, factMapper, err := wireRedis(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, store, eng, runBus, factMapper)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Store:    store,
		Bus:      runBus,
	}, nil
}

// Start launches the bus forwarder so run transitions published by other
// workers land in this process's log. No-op without redis.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Bus == nil {
		return nil
	}
	return a.Bus.StartForwarder(ctx, func(m bus.RunMessage) {
		a.Log.Info("run transition",
			"run_id", m.RunID,
			"staging_upload_id", m.StagingUploadID,
			"status", m.Status,
			"event_type", m.EventType,
		)
	})
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
