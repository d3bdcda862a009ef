package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/carpool-matching/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientSeats = errors.New("insufficient seats")
	ErrTripExists        = errors.New("trip already exists")
	// ErrStatusConflict means the booking was no longer in the expected state.
	ErrStatusConflict = errors.New("booking status changed concurrently")
)

// TripStore defines persistence operations for trips and bookings.
type TripStore interface {
	// CreateTrip inserts a new trip; an existing id yields ErrTripExists so
	// reserved seats are never overwritten.
	CreateTrip(ctx context.Context, t *models.CandidateTrip) error
	GetTrip(ctx context.Context, id string) (models.CandidateTrip, error)
	// SearchTrips returns trips passing f. When f.IDs is non-nil the result
	// follows the order of f.IDs; otherwise trips are ordered by departure.
	SearchTrips(ctx context.Context, f models.TripFilter) ([]models.CandidateTrip, error)
	ReserveSeats(ctx context.Context, tripID string, seats int) error
	ReleaseSeats(ctx context.Context, tripID string, seats int) error

	SaveBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	// TransitionBooking moves a booking from one status to another only if it
	// is still in from, returning ErrStatusConflict otherwise.
	TransitionBooking(ctx context.Context, id string, from, to models.BookingStatus, at time.Time) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	trips    map[string]models.CandidateTrip
	bookings map[string]models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:    make(map[string]models.CandidateTrip),
		bookings: make(map[string]models.Booking),
	}
}

func (m *MemoryStore) CreateTrip(_ context.Context, t *models.CandidateTrip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trips[t.TripID]; ok {
		return ErrTripExists
	}
	m.trips[t.TripID] = cloneTrip(*t)
	return nil
}

func (m *MemoryStore) GetTrip(_ context.Context, id string) (models.CandidateTrip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return models.CandidateTrip{}, ErrNotFound
	}
	return cloneTrip(t), nil
}

func (m *MemoryStore) SearchTrips(_ context.Context, f models.TripFilter) ([]models.CandidateTrip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.CandidateTrip{}
	if f.IDs != nil {
		for _, id := range f.IDs {
			if t, ok := m.trips[id]; ok && f.Matches(t) {
				out = append(out, cloneTrip(t))
			}
		}
		return out, nil
	}
	for _, t := range m.trips {
		if f.Matches(t) {
			out = append(out, cloneTrip(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DepartureTime.Equal(out[j].DepartureTime) {
			return out[i].TripID < out[j].TripID
		}
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	return out, nil
}

func (m *MemoryStore) ReserveSeats(_ context.Context, tripID string, seats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrNotFound
	}
	if t.AvailableSeats < seats {
		return ErrInsufficientSeats
	}
	t.AvailableSeats -= seats
	m.trips[tripID] = t
	return nil
}

func (m *MemoryStore) ReleaseSeats(_ context.Context, tripID string, seats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[tripID]
	if !ok {
		return ErrNotFound
	}
	t.AvailableSeats += seats
	m.trips[tripID] = t
	return nil
}

func (m *MemoryStore) SaveBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = *b
	return nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return models.Booking{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryStore) TransitionBooking(_ context.Context, id string, from, to models.BookingStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if b.Status != from {
		return ErrStatusConflict
	}
	b.Status = to
	b.UpdatedAt = at
	m.bookings[id] = b
	return nil
}

func cloneTrip(t models.CandidateTrip) models.CandidateTrip {
	if t.Stops != nil {
		t.Stops = append([]models.GeoPoint(nil), t.Stops...)
	}
	return t
}

// orderByIDs arranges trips in the order of ids, dropping unknown ids.
func orderByIDs(trips []models.CandidateTrip, ids []string) []models.CandidateTrip {
	byID := make(map[string]models.CandidateTrip, len(trips))
	for _, t := range trips {
		byID[t.TripID] = t
	}
	out := make([]models.CandidateTrip, 0, len(trips))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
			delete(byID, id)
		}
	}
	return out
}
