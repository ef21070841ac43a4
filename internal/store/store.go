package store

import (
	"context"

	"github.com/me/arc/pkg/model"
)

// Store is the run journal: one row per scheduler run and one row per
// status record the supervisor consumed.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, run *model.Run) error

	// Status records
	RecordResult(ctx context.Context, runID string, rec model.StatusRecord) error
	ListResults(ctx context.Context, runID string) ([]*model.ResultEntry, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
