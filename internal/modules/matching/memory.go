// README: In-memory spatial index for tests and single-node dev runs.
package matching

import (
	"context"
	"sync"

	"caredispatch/internal/geo"
	"caredispatch/internal/types"
)

type MemoryGeoIndex struct {
	mu        sync.RWMutex
	positions map[types.ID]types.Point
}

func NewMemoryGeoIndex() *MemoryGeoIndex {
	return &MemoryGeoIndex{positions: make(map[types.ID]types.Point)}
}

func (s *MemoryGeoIndex) Add(ctx context.Context, id types.ID, p types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[id] = p
	return nil
}

func (s *MemoryGeoIndex) Remove(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
	return nil
}

func (s *MemoryGeoIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		id   types.ID
		dist float64
	}
	hits := make([]hit, 0, len(s.positions))
	for id, pos := range s.positions {
		d := geo.DistanceKm(p, pos)
		if d <= radiusKm {
			hits = append(hits, hit{id: id, dist: d})
		}
	}
	geo.SortByDistance(hits, func(h hit) float64 { return h.dist })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}
