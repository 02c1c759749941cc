// README: Partner position index; Redis GEO in production, haversine scan in memory.
package dispatch

import (
	"context"
	"math"
	"sync"

	"github.com/redis/go-redis/v9"

	"streeteats/internal/types"
)

const partnerGeoKey = "dispatch:partners"

type Locator interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	// Near returns partner IDs within radiusKm of p, closest first.
	Near(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error)
}

type GeoIndex struct {
	redis *redis.Client
	key   string
}

func NewGeoIndex(client *redis.Client) *GeoIndex {
	return &GeoIndex{redis: client, key: partnerGeoKey}
}

func (g *GeoIndex) Add(ctx context.Context, id types.ID, p types.Point) error {
	return g.redis.GeoAdd(ctx, g.key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (g *GeoIndex) Remove(ctx context.Context, id types.ID) error {
	return g.redis.ZRem(ctx, g.key, string(id)).Err()
}

func (g *GeoIndex) Near(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	results, err := g.redis.GeoSearch(ctx, g.key, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

type MemoryLocator struct {
	mu        sync.RWMutex
	positions map[types.ID]types.Point
}

func NewMemoryLocator() *MemoryLocator {
	return &MemoryLocator{positions: make(map[types.ID]types.Point)}
}

func (m *MemoryLocator) Add(_ context.Context, id types.ID, p types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[id] = p
	return nil
}

func (m *MemoryLocator) Remove(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, id)
	return nil
}

func (m *MemoryLocator) Near(_ context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	type hit struct {
		id   types.ID
		dist float64
	}
	m.mu.RLock()
	var hits []hit
	for id, pos := range m.positions {
		if d := DistanceKm(p, pos); d <= radiusKm {
			hits = append(hits, hit{id: id, dist: d})
		}
	}
	m.mu.RUnlock()

	sortByDistance(hits, func(h hit) float64 { return h.dist })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

const earthRadiusKm = 6371.0

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)
	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// sortByDistance is an insertion sort; candidate lists are small.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
