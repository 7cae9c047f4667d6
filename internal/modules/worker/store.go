// README: Worker store contract; backed by Postgres or memory.
package worker

import (
	"context"
	"errors"

	"caredispatch/internal/types"
)

var (
	ErrNotFound   = errors.New("worker not found")
	ErrBadRequest = errors.New("bad request")
)

type Store interface {
	Put(ctx context.Context, w *Worker) error
	Get(ctx context.Context, id types.ID) (*Worker, error)
	// GetMany returns the workers that exist among ids; unknown ids are skipped.
	GetMany(ctx context.Context, ids []types.ID) ([]*Worker, error)
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, address string) error
	UpdateAvailability(ctx context.Context, id types.ID, a Availability) error
	// IncrementCompleted bumps both the total and completed order counters.
	IncrementCompleted(ctx context.Context, id types.ID) error
}
