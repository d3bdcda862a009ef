package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/example/carpool-matching/internal/models"
)

// HistoryStore keeps the trips each user has taken.
type HistoryStore interface {
	AppendHistory(ctx context.Context, rec models.TripHistoryRecord) error
	// History returns a user's records, most recent departure first.
	History(ctx context.Context, userID string, limit int) ([]models.TripHistoryRecord, error)
}

type MemoryHistoryStore struct {
	mu      sync.RWMutex
	records map[string][]models.TripHistoryRecord
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{records: make(map[string][]models.TripHistoryRecord)}
}

func (m *MemoryHistoryStore) AppendHistory(_ context.Context, rec models.TripHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = append(m.records[rec.UserID], rec)
	return nil
}

func (m *MemoryHistoryStore) History(_ context.Context, userID string, limit int) ([]models.TripHistoryRecord, error) {
	m.mu.RLock()
	out := append([]models.TripHistoryRecord{}, m.records[userID]...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DepartureTime.After(out[j].DepartureTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
