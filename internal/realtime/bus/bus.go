package bus

import (
	"context"

	"github.com/google/uuid"
)

// RunMessage is the lifecycle notification published when a segmentation run
// changes state. Consumers (status pages, review tooling) subscribe through
// the forwarder.
type RunMessage struct {
	RunID           uuid.UUID `json:"run_id"`
	StagingUploadID uuid.UUID `json:"staging_upload_id"`
	Status          string    `json:"status"`
	EventType       string    `json:"event_type,omitempty"`
}

type Bus interface {
	Publish(ctx context.Context, msg RunMessage) error
	StartForwarder(ctx context.Context, onMsg func(m RunMessage)) error
	Close() error
}
