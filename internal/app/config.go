package app

import (
	"github.com/veralex/clausebridge-backend/internal/pkg/logger"
	"github.com/veralex/clausebridge-backend/internal/services"
	"github.com/veralex/clausebridge-backend/internal/utils"
)

type Config struct {
	StorageRoot string
	Review      services.ReviewConfig
}

func LoadConfig(log *logger.Logger) Config {
	storageRoot := utils.GetEnv("STORAGE_ROOT", "./data/blobs", log)
	boundaryThreshold := utils.GetEnvAsFloat("REVIEW_BOUNDARY_THRESHOLD", 0.5, log)
	headingThreshold := utils.GetEnvAsFloat("REVIEW_HEADING_THRESHOLD", 0.4, log)
	maxLowConfShare := utils.GetEnvAsFloat("REVIEW_MAX_LOW_CONF_SHARE", 0.34, log)
	return Config{
		StorageRoot: storageRoot,
		Review: services.ReviewConfig{
			BoundaryThreshold:     boundaryThreshold,
			HeadingThreshold:      headingThreshold,
			MaxLowConfidenceShare: maxLowConfShare,
		},
	}
}
