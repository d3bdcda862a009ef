package matcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/geocode"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/storage"
)

type fakePublisher struct {
	published []models.CandidateTrip
	err       error
}

func (f *fakePublisher) PublishTrip(_ context.Context, t models.CandidateTrip) error {
	f.published = append(f.published, t)
	return f.err
}

type failingIndex struct{ geo.TripIndex }

func (failingIndex) Nearby(context.Context, models.GeoPoint, float64, int) ([]string, error) {
	return nil, errors.New("redis down")
}

func newTestService(pub TripPublisher) *Service {
	return &Service{
		Index:          geo.NewIndex(),
		Store:          storage.NewMemoryStore(),
		Geocoder:       geocode.NewStatic(),
		Publisher:      pub,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		RadiusKm:       20,
		CandidateLimit: 50,
		TopN:           10,
		now:            func() time.Time { return departure.Add(-24 * time.Hour) },
	}
}

func TestServicePublishAndSearch(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	s := newTestService(pub)

	good, err := s.Publish(ctx, dubaiTrip(""))
	require.NoError(t, err)
	assert.NotEmpty(t, good.TripID)
	require.Len(t, pub.published, 1)
	assert.Equal(t, good.TripID, pub.published[0].TripID)

	pricey := dubaiTrip("pricey")
	pricey.PricePerSeat = 60
	_, err = s.Publish(ctx, pricey)
	require.NoError(t, err)

	elsewhere := dubaiTrip("elsewhere")
	elsewhere.From, elsewhere.To = riyadh, jeddah
	_, err = s.Publish(ctx, elsewhere)
	require.NoError(t, err)

	matches, err := s.Search(ctx, dubaiQuery(), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, good.TripID, matches[0].TripID)
	assert.Equal(t, 93, matches[0].CompatibilityScore)
	assert.Equal(t, "pricey", matches[1].TripID)
}

func TestServiceSearchFiltersDepartedAndFullTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)

	departed := dubaiTrip("departed")
	departed.DepartureTime = departure.Add(-48 * time.Hour)
	full := dubaiTrip("full")
	full.AvailableSeats = 1
	for _, trip := range []models.CandidateTrip{departed, full, dubaiTrip("ok")} {
		_, err := s.Publish(ctx, trip)
		require.NoError(t, err)
	}

	matches, err := s.Search(ctx, dubaiQuery(), SearchOptions{Seats: 2})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ok", matches[0].TripID)
}

func TestServiceSearchLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Publish(ctx, dubaiTrip(id))
		require.NoError(t, err)
	}
	matches, err := s.Search(ctx, dubaiQuery(), SearchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestServiceSearchGeocodesAddressOnlyRoute(t *testing.T) {
	ctx := context.Background()
	s := newTestService(nil)
	_, err := s.Publish(ctx, dubaiTrip("t1"))
	require.NoError(t, err)

	q := dubaiQuery()
	q.DesiredRoute = models.Route{From: models.GeoPoint{Address: "dubai"}, To: models.GeoPoint{Address: "Abu Dhabi"}}
	matches, err := s.Search(ctx, q, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 93, matches[0].CompatibilityScore)
}

func TestServiceSearchNoNearbyTrips(t *testing.T) {
	matches, err := newTestService(nil).Search(context.Background(), dubaiQuery(), SearchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestServiceSearchIndexError(t *testing.T) {
	s := newTestService(nil)
	s.Index = failingIndex{}
	_, err := s.Search(context.Background(), dubaiQuery(), SearchOptions{})
	assert.Error(t, err)
}

func TestServicePublishRejectsInvalidTrip(t *testing.T) {
	s := newTestService(nil)
	bad := dubaiTrip("bad")
	bad.PricePerSeat = -1
	bad.DriverRating = 7
	_, err := s.Publish(context.Background(), bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTrip)

	_, err = s.Store.GetTrip(context.Background(), "bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestServicePublishToleratesEventFailure(t *testing.T) {
	s := newTestService(&fakePublisher{err: errors.New("kafka down")})
	trip, err := s.Publish(context.Background(), dubaiTrip("t1"))
	require.NoError(t, err)
	_, err = s.Store.GetTrip(context.Background(), trip.TripID)
	assert.NoError(t, err)
}

func TestServicePublishRejectsExistingID(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	s := newTestService(pub)

	_, err := s.Publish(ctx, dubaiTrip("t1"))
	require.NoError(t, err)
	require.NoError(t, s.Store.ReserveSeats(ctx, "t1", 3))

	again := dubaiTrip("t1")
	again.DriverID = "someone-else"
	_, err = s.Publish(ctx, again)
	require.ErrorIs(t, err, storage.ErrTripExists)

	stored, err := s.Store.GetTrip(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, stored.AvailableSeats)
	assert.Equal(t, "driver-t1", stored.DriverID)
	assert.Len(t, pub.published, 1)
}
