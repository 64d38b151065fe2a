package store

import (
	"context"
	"time"

	"github.com/sightline/sightline-cli/internal/model"
)

// Store persists batch run history.
type Store interface {
	Migrate(ctx context.Context) error
	SaveBatch(ctx context.Context, mode string, result model.BatchResult) (*model.BatchRun, error)
	GetRun(ctx context.Context, id string) (*model.BatchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error)
	Close() error
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	ObjectName   string
	CreatedAfter time.Time
	Limit        int
}
