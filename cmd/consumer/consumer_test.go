package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/models"
)

// fakeUpdater implements RedisUpdater for tests
type fakeUpdater struct {
	failGeo  int // number of times to fail GeoAdd before succeeding
	failRem  int // number of times to fail ZRem before succeeding
	geoCalls int
	remCalls int

	lastKey string
	lastLoc *redis.GeoLocation
}

func (f *fakeUpdater) GeoAdd(_ context.Context, key string, loc *redis.GeoLocation) error {
	f.geoCalls++
	if f.geoCalls <= f.failGeo {
		return errors.New("geo fail")
	}
	f.lastKey = key
	f.lastLoc = loc
	return nil
}

func (f *fakeUpdater) ZRem(context.Context, string, string) error {
	f.remCalls++
	if f.remCalls <= f.failRem {
		return errors.New("zrem fail")
	}
	return nil
}

func testTrip() *models.CandidateTrip {
	return &models.CandidateTrip{
		TripID:         "t1",
		DriverID:       "d1",
		DriverRating:   4.5,
		From:           models.GeoPoint{Latitude: 25.2048, Longitude: 55.2708},
		To:             models.GeoPoint{Latitude: 24.4539, Longitude: 54.3773},
		PricePerSeat:   45,
		DepartureTime:  time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
		AvailableSeats: 3,
		IsVerified:     true,
	}
}

func TestUpdateRedisWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failGeo: 2}
	start := time.Now()
	require.NoError(t, updateRedisWithRetry(context.Background(), f, "trips_geo", testTrip(), 3, 10*time.Millisecond))
	assert.Equal(t, 3, f.geoCalls)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	require.NotNil(t, f.lastLoc)
	assert.Equal(t, "trips_geo", f.lastKey)
	assert.Equal(t, "t1", f.lastLoc.Name)
	assert.Equal(t, 55.2708, f.lastLoc.Longitude)
}

func TestUpdateRedisWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	err := updateRedisWithRetry(context.Background(), f, "trips_geo", testTrip(), 3, 5*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, f.geoCalls)
}

func TestUpdateRedisWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeUpdater{failGeo: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := updateRedisWithRetry(ctx, f, "trips_geo", testTrip(), 3, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.geoCalls)
}

func TestUpdateRedisWithRetry_FullTripLeavesIndex(t *testing.T) {
	f := &fakeUpdater{failRem: 1}
	trip := testTrip()
	trip.AvailableSeats = 0
	require.NoError(t, updateRedisWithRetry(context.Background(), f, "trips_geo", trip, 3, time.Millisecond))
	assert.Equal(t, 2, f.remCalls)
	assert.Zero(t, f.geoCalls)
}

func TestDecodeTrip(t *testing.T) {
	_, err := decodeTrip([]byte("{"))
	assert.Error(t, err)

	_, err = decodeTrip([]byte(`{"driverId":"d1"}`))
	assert.Error(t, err)

	trip, err := decodeTrip([]byte(`{"id":"t1","driverId":"d1","driverRating":4.2,
		"from":{"lat":25.2,"lng":55.3},"to":{"lat":24.4,"lng":54.4},
		"price":30,"departureTime":"2024-03-04T08:00:00Z","availableSeats":2}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.TripID)
	assert.Equal(t, 2, trip.AvailableSeats)
}
