package archive

import (
	"context"
	"errors"
	"strings"

	"github.com/roby2358/oblique/internal/task"
)

var ErrNotFound = errors.New("job not found in archive")

// Store keeps the terminal snapshot of finished job chains after the engine
// prunes them from memory. It is a record, not a recovery mechanism: nothing
// is ever read back into the live engine.
type Store interface {
	SaveSnapshot(ctx context.Context, snap task.Snapshot) error
	Get(ctx context.Context, taskID string) (task.Snapshot, error)
	Recent(ctx context.Context, limit int) ([]task.Snapshot, error)
	Close() error
}

// NewStore creates a postgres-backed archive when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(0), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
