package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/notify"
	"github.com/example/carpool-matching/internal/storage"
)

type fakePayments struct {
	mu         sync.Mutex
	holds      []int64
	captured   []string
	cancelled  []string
	holdErr    error
	captureErr error
	delay      time.Duration // widens the window between claim and settle
}

func (f *fakePayments) Hold(_ context.Context, amount int64, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holdErr != nil {
		return "", f.holdErr
	}
	f.holds = append(f.holds, amount)
	return "pi_test", nil
}

func (f *fakePayments) Capture(_ context.Context, id string) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return f.captureErr
	}
	f.captured = append(f.captured, id)
	return nil
}

func (f *fakePayments) Cancel(_ context.Context, id string) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

// raceStore loses the seat reservation to a concurrent booking.
type raceStore struct{ *storage.MemoryStore }

func (raceStore) ReserveSeats(context.Context, string, int) error {
	return storage.ErrInsufficientSeats
}

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *fakePayments, *notify.Hub) {
	t.Helper()
	store := storage.NewMemoryStore()
	trip := models.CandidateTrip{
		TripID:         "trip-1",
		DriverID:       "driver-1",
		From:           models.GeoPoint{Latitude: 25.0805, Longitude: 55.1403, Address: "Dubai Marina"},
		To:             models.GeoPoint{Latitude: 25.1972, Longitude: 55.2744, Address: "Downtown Dubai"},
		PricePerSeat:   35.5,
		DepartureTime:  now.Add(2 * time.Hour),
		AvailableSeats: 3,
	}
	require.NoError(t, store.CreateTrip(context.Background(), &trip))

	pay := &fakePayments{}
	hub := notify.NewHub(nil)
	s := &Service{
		Store:    store,
		History:  storage.NewMemoryHistoryStore(),
		Payments: pay,
		Notifier: hub,
		Currency: "aed",
		now:      func() time.Time { return now },
	}
	return s, pay, hub
}

func TestBookHoldsPaymentAndReservesSeats(t *testing.T) {
	ctx := context.Background()
	s, pay, hub := setup(t)

	b, err := s.Book(ctx, Request{TripID: "trip-1", RiderID: "rider-1", Seats: 2})
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, int64(7100), b.AmountMinor)
	assert.Equal(t, "pi_test", b.PaymentIntentID)
	assert.Equal(t, "driver-1", b.DriverID)
	assert.Equal(t, []int64{7100}, pay.holds)

	trip, err := s.Store.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 1, trip.AvailableSeats)

	hist, err := s.History.History(ctx, "rider-1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "Dubai Marina", hist[0].FromAddress)
	assert.Equal(t, "Downtown Dubai", hist[0].ToAddress)

	notes := hub.List("driver-1")
	require.Len(t, notes, 1)
	assert.Equal(t, notify.TripRequest, notes[0].Type)
	assert.Equal(t, b.ID, notes[0].Data["bookingId"])
}

func TestBookRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	s, pay, _ := setup(t)

	_, err := s.Book(ctx, Request{TripID: "trip-1", RiderID: "r", Seats: 0})
	assert.ErrorIs(t, err, ErrInvalidSeats)

	_, err = s.Book(ctx, Request{TripID: "missing", RiderID: "r", Seats: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Book(ctx, Request{TripID: "trip-1", RiderID: "r", Seats: 4})
	assert.ErrorIs(t, err, storage.ErrInsufficientSeats)
	assert.Empty(t, pay.holds)
}

func TestBookReleasesHoldWhenReservationFails(t *testing.T) {
	s, pay, _ := setup(t)
	s.Store = raceStore{s.Store.(*storage.MemoryStore)}

	_, err := s.Book(context.Background(), Request{TripID: "trip-1", RiderID: "r", Seats: 1})
	assert.ErrorIs(t, err, storage.ErrInsufficientSeats)
	assert.Equal(t, []string{"pi_test"}, pay.cancelled)
}

func TestBookPaymentFailure(t *testing.T) {
	s, pay, _ := setup(t)
	pay.holdErr = errors.New("card declined")

	_, err := s.Book(context.Background(), Request{TripID: "trip-1", RiderID: "r", Seats: 1})
	require.Error(t, err)
	trip, err := s.Store.GetTrip(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 3, trip.AvailableSeats)
}

func TestConfirmCapturesPayment(t *testing.T) {
	ctx := context.Background()
	s, pay, hub := setup(t)
	b, err := s.Book(ctx, Request{TripID: "trip-1", RiderID: "rider-1", Seats: 1})
	require.NoError(t, err)

	b, err = s.Confirm(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, []string{"pi_test"}, pay.captured)
	assert.Equal(t, 1, hub.UnreadCount("rider-1"))

	_, err = s.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelReleasesSeats(t *testing.T) {
	ctx := context.Background()
	s, pay, hub := setup(t)
	b, err := s.Book(ctx, Request{TripID: "trip-1", RiderID: "rider-1", Seats: 2})
	require.NoError(t, err)

	b, err = s.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)
	assert.Equal(t, []string{"pi_test"}, pay.cancelled)

	trip, err := s.Store.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 3, trip.AvailableSeats)
	assert.Equal(t, notify.TripCancelled, hub.List("driver-1")[0].Type)

	_, err = s.Confirm(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBookWithoutPayments(t *testing.T) {
	s, _, _ := setup(t)
	s.Payments = nil
	b, err := s.Book(context.Background(), Request{TripID: "trip-1", RiderID: "r", Seats: 1})
	require.NoError(t, err)
	assert.Empty(t, b.PaymentIntentID)
}

func TestConfirmAndCancelRace(t *testing.T) {
	ctx := context.Background()
	s, pay, _ := setup(t)
	pay.delay = 5 * time.Millisecond

	b, err := s.Book(ctx, Request{TripID: "trip-1", RiderID: "rider-1", Seats: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = s.Confirm(ctx, b.ID)
			} else {
				_, errs[i] = s.Cancel(ctx, b.ID)
			}
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	require.Equal(t, 1, won)
	assert.Equal(t, 1, len(pay.captured)+len(pay.cancelled))

	got, err := s.Store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	trip, err := s.Store.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	if got.Status == models.BookingConfirmed {
		assert.Equal(t, 2, trip.AvailableSeats)
	} else {
		assert.Equal(t, models.BookingCancelled, got.Status)
		assert.Equal(t, 3, trip.AvailableSeats)
	}
}

func TestConfirmCaptureFailureKeepsBookingPending(t *testing.T) {
	ctx := context.Background()
	s, pay, _ := setup(t)
	b, err := s.Book(ctx, Request{TripID: "trip-1", RiderID: "rider-1", Seats: 1})
	require.NoError(t, err)

	pay.captureErr = errors.New("card declined")
	_, err = s.Confirm(ctx, b.ID)
	require.Error(t, err)

	got, err := s.Store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPending, got.Status)

	// the booking can still be cancelled afterwards
	_, err = s.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_test"}, pay.cancelled)
}
