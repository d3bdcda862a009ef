package geo

import (
	"context"
	"math"
	"sync"

	"github.com/example/carpool-matching/internal/models"
)

const earthRadiusKm = 6371.0

// TripIndex is the coarse geographic pre-filter used before scoring.
type TripIndex interface {
	Upsert(ctx context.Context, tripID string, p models.GeoPoint) error
	Remove(ctx context.Context, tripID string) error
	Nearby(ctx context.Context, p models.GeoPoint, radiusKm float64, limit int) ([]string, error)
}

// DistanceKm is the haversine great-circle distance between a and b.
// Coordinates are not range checked.
func DistanceKm(a, b models.GeoPoint) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Index keeps trip origins in memory.
type Index struct {
	mu    sync.RWMutex
	trips map[string]models.GeoPoint
}

func NewIndex() *Index {
	return &Index{trips: make(map[string]models.GeoPoint)}
}

func (g *Index) Upsert(_ context.Context, tripID string, p models.GeoPoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trips[tripID] = p
	return nil
}

func (g *Index) Remove(_ context.Context, tripID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.trips, tripID)
	return nil
}

// naive scan; fine for the working sets a single node holds
func (g *Index) Nearby(_ context.Context, p models.GeoPoint, radiusKm float64, limit int) ([]string, error) {
	g.mu.RLock()
	type pair struct {
		id   string
		dist float64
	}
	arr := make([]pair, 0, len(g.trips))
	for id, origin := range g.trips {
		d := DistanceKm(p, origin)
		if d > radiusKm {
			continue
		}
		arr = append(arr, pair{id, d})
	}
	g.mu.RUnlock()

	// partial selection sort for top-N, ids break distance ties
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist || (arr[j].dist == arr[minIdx].dist && arr[j].id < arr[minIdx].id) {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].id)
	}
	return out, nil
}
