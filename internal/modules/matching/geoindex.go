// README: Spatial index contract over live worker locations.
package matching

import (
	"context"

	"caredispatch/internal/types"
)

// GeoIndex is a coarse spatial filter. Distances it implies are
// approximate; callers always recompute exact distances afterwards.
type GeoIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	// Nearby returns up to limit worker ids within radiusKm of p, nearest
	// first. limit <= 0 means no cap.
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error)
}
