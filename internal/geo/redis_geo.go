package geo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool-matching/internal/models"
)

// RedisIndex implements TripIndex using Redis GEO commands.
type RedisIndex struct {
	client redis.UniversalClient
	key    string
}

func NewRedisIndex(client redis.UniversalClient, key string) *RedisIndex {
	return &RedisIndex{client: client, key: key}
}

func (r *RedisIndex) Upsert(ctx context.Context, tripID string, p models.GeoPoint) error {
	loc := &redis.GeoLocation{Name: tripID, Longitude: p.Longitude, Latitude: p.Latitude}
	if err := r.client.GeoAdd(ctx, r.key, loc).Err(); err != nil {
		return fmt.Errorf("geoadd %s: %w", tripID, err)
	}
	return nil
}

func (r *RedisIndex) Remove(ctx context.Context, tripID string) error {
	// GEO sets are sorted sets underneath
	if err := r.client.ZRem(ctx, r.key, tripID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", tripID, err)
	}
	return nil
}

func (r *RedisIndex) Nearby(ctx context.Context, p models.GeoPoint, radiusKm float64, limit int) ([]string, error) {
	q := &redis.GeoSearchQuery{
		Longitude:  p.Longitude,
		Latitude:   p.Latitude,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}
	if limit > 0 {
		q.Count = limit
	}
	ids, err := r.client.GeoSearch(ctx, r.key, q).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}
	return ids, nil
}
