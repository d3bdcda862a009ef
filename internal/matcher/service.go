package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/geocode"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/storage"
)

var ErrInvalidTrip = errors.New("invalid trip")

// TripPublisher announces newly published trips to other processes.
type TripPublisher interface {
	PublishTrip(ctx context.Context, t models.CandidateTrip) error
}

// SearchOptions narrows the candidate set before scoring.
type SearchOptions struct {
	DepartureAfter  time.Time
	DepartureBefore time.Time
	Seats           int
	Limit           int
}

// Service fetches candidate trips and ranks them with MatchTrips.
type Service struct {
	Index     geo.TripIndex
	Store     storage.TripStore
	Geocoder  geocode.Geocoder // optional; resolves address-only points
	Publisher TripPublisher    // optional
	Logger    *slog.Logger

	RadiusKm       float64
	CandidateLimit int
	TopN           int

	now func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Search ranks trips departing near the rider's origin. Without an explicit
// window only trips that have not left yet are considered.
func (s *Service) Search(ctx context.Context, q models.MatchQuery, opts SearchOptions) ([]models.TripMatch, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()
	observability.MatchRequestsTotal.Inc()

	var err error
	if q.DesiredRoute, err = s.resolveRoute(ctx, q.DesiredRoute); err != nil {
		return nil, err
	}

	ids, err := s.Index.Nearby(ctx, q.DesiredRoute.From, s.RadiusKm, s.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("nearby trips: %w", err)
	}
	if len(ids) == 0 {
		observability.MatchesReturned.Observe(0)
		return []models.TripMatch{}, nil
	}

	f := models.TripFilter{
		IDs:             ids,
		DepartureAfter:  opts.DepartureAfter,
		DepartureBefore: opts.DepartureBefore,
		MinSeats:        max(opts.Seats, 1),
	}
	if f.DepartureAfter.IsZero() {
		f.DepartureAfter = s.clock()
	}
	candidates, err := s.Store.SearchTrips(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	observability.CandidatesScored.Add(float64(len(candidates)))

	matches := MatchTrips(q, candidates)
	limit := opts.Limit
	if limit <= 0 {
		limit = s.TopN
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	observability.MatchesReturned.Observe(float64(len(matches)))
	for _, m := range matches {
		observability.CompatibilityScore.Observe(float64(m.CompatibilityScore))
	}
	s.logger().DebugContext(ctx, "match search",
		"nearby", len(ids),
		"candidates", len(candidates),
		"matches", len(matches),
	)
	return matches, nil
}

// Publish validates, stores and indexes a driver's trip.
func (s *Service) Publish(ctx context.Context, t models.CandidateTrip) (models.CandidateTrip, error) {
	if t.TripID == "" {
		t.TripID = uuid.NewString()
	}
	var err error
	if t.From, err = s.resolve(ctx, t.From); err != nil {
		return models.CandidateTrip{}, err
	}
	if t.To, err = s.resolve(ctx, t.To); err != nil {
		return models.CandidateTrip{}, err
	}
	for i := range t.Stops {
		if t.Stops[i], err = s.resolve(ctx, t.Stops[i]); err != nil {
			return models.CandidateTrip{}, err
		}
	}
	if err := t.Validate(); err != nil {
		return models.CandidateTrip{}, fmt.Errorf("%w: %w", ErrInvalidTrip, err)
	}

	if err := s.Store.CreateTrip(ctx, &t); err != nil {
		return models.CandidateTrip{}, fmt.Errorf("save trip: %w", err)
	}
	if err := s.Index.Upsert(ctx, t.TripID, t.From); err != nil {
		return models.CandidateTrip{}, fmt.Errorf("index trip: %w", err)
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishTrip(ctx, t); err != nil {
			s.logger().WarnContext(ctx, "trip event publish failed", "trip_id", t.TripID, "error", err)
		}
	}
	observability.TripsPublished.Inc()
	s.logger().InfoContext(ctx, "trip published", "trip_id", t.TripID, "driver_id", t.DriverID)
	return t, nil
}

func (s *Service) resolveRoute(ctx context.Context, r models.Route) (models.Route, error) {
	var err error
	if r.From, err = s.resolve(ctx, r.From); err != nil {
		return r, err
	}
	r.To, err = s.resolve(ctx, r.To)
	return r, err
}

func (s *Service) resolve(ctx context.Context, p models.GeoPoint) (models.GeoPoint, error) {
	if s.Geocoder == nil {
		return p, nil
	}
	out, err := geocode.Resolve(ctx, s.Geocoder, p)
	if err != nil {
		return p, fmt.Errorf("geocode %q: %w", p.Address, err)
	}
	return out, nil
}
