// README: Candidate search: coarse geo query, exact filtering, ranking, ETA.
package matching

import (
	"context"
	"math"
	"sort"

	"caredispatch/internal/config"
	"caredispatch/internal/geo"
	"caredispatch/internal/modules/worker"
	"caredispatch/internal/types"
)

type Service struct {
	geo     GeoIndex
	workers worker.Store
	cfg     config.MatchingConfig
}

func NewService(index GeoIndex, workers worker.Store, cfg config.MatchingConfig) *Service {
	return &Service{geo: index, workers: workers, cfg: cfg}
}

// FindCandidates returns the eligible workers for an order at p, nearest
// first. The geo index is only a coarse filter: exact distances are
// recomputed here, and each worker's own service radius is applied on top
// of the search radius. The result is a snapshot; workers may change state
// between scan and offer.
func (s *Service) FindCandidates(ctx context.Context, p types.Point) ([]Candidate, error) {
	ids, err := s.geo.Nearby(ctx, p, s.cfg.SearchRadiusKm, s.cfg.MaxIndexHits)
	if err != nil {
		return nil, err
	}
	workers, err := s.workers.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(workers))
	for _, w := range workers {
		if !w.Eligible() {
			continue
		}
		d := geo.DistanceKm(p, w.Location)
		if d > w.ServiceRadiusKm {
			continue
		}
		candidates = append(candidates, Candidate{
			Worker:     *w,
			DistanceKm: d,
			ETAMinutes: s.ETAMinutes(d),
		})
	}

	// Nearest first; ties broken by higher rating, then id for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Worker.Rating != b.Worker.Rating {
			return a.Worker.Rating > b.Worker.Rating
		}
		return a.Worker.ID < b.Worker.ID
	})
	return candidates, nil
}

// ETAMinutes estimates arrival time as a fixed base plus capped travel time.
func (s *Service) ETAMinutes(distanceKm float64) int {
	travel := math.Min(distanceKm*s.cfg.ETAMinsPerKm, s.cfg.ETAMaxTravelMins)
	return int(math.Round(s.cfg.ETABaseMins + travel))
}
