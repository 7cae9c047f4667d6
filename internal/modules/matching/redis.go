// README: Spatial index backed by Redis GEO.
package matching

import (
	"context"

	"github.com/redis/go-redis/v9"

	"caredispatch/internal/types"
)

const workerGeoKey = "dispatch:workers"

type RedisGeoIndex struct {
	redis *redis.Client
}

func NewRedisGeoIndex(client *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{redis: client}
}

func (s *RedisGeoIndex) Add(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, workerGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *RedisGeoIndex) Remove(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, workerGeoKey, string(id)).Err()
}

func (s *RedisGeoIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	q := &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}
	if limit > 0 {
		q.Count = limit
	}
	results, err := s.redis.GeoSearch(ctx, workerGeoKey, q).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
