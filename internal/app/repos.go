package app

import (
	"gorm.io/gorm"

	segrepos "github.com/veralex/clausebridge-backend/internal/data/repos/segmentation"
	stagingrepos "github.com/veralex/clausebridge-backend/internal/data/repos/staging"
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
)

type Repos struct {
	StagingUpload stagingrepos.UploadRepo
	Run           segrepos.RunRepo
	Clause        segrepos.ClauseRepo
	Event         segrepos.EventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		StagingUpload: stagingrepos.NewUploadRepo(db, log),
		Run:           segrepos.NewRunRepo(db, log),
		Clause:        segrepos.NewClauseRepo(db, log),
		Event:         segrepos.NewEventRepo(db, log),
	}
}
