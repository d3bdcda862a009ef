package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/notify"
	"github.com/example/carpool-matching/internal/observability"
	"github.com/example/carpool-matching/internal/storage"
)

var (
	ErrInvalidSeats = errors.New("seats must be greater than zero")
	ErrInvalidState = errors.New("booking is not pending")
)

// PaymentProcessor holds funds when a seat is booked and settles them later.
type PaymentProcessor interface {
	Hold(ctx context.Context, amount int64, currency, customerID, bookingID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Notifier is the subset of notify.Hub used for booking events.
type Notifier interface {
	Add(userID string, n notify.Notification) notify.Notification
}

type Request struct {
	TripID     string `json:"tripId"`
	RiderID    string `json:"riderId"`
	Seats      int    `json:"seatsBooked"`
	CustomerID string `json:"customerId,omitempty"`
}

type Service struct {
	Store    storage.TripStore
	History  storage.HistoryStore
	Payments PaymentProcessor // optional; bookings are free without it
	Notifier Notifier         // optional
	Currency string
	Logger   *slog.Logger

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

// Book reserves seats on a trip, holding the fare first so a failed
// reservation never leaves a charge behind.
func (s *Service) Book(ctx context.Context, req Request) (models.Booking, error) {
	if req.Seats <= 0 {
		return models.Booking{}, ErrInvalidSeats
	}
	trip, err := s.Store.GetTrip(ctx, req.TripID)
	if err != nil {
		return models.Booking{}, fmt.Errorf("load trip %s: %w", req.TripID, err)
	}
	if trip.AvailableSeats < req.Seats {
		return models.Booking{}, storage.ErrInsufficientSeats
	}

	now := s.clock()
	b := models.Booking{
		ID:          uuid.NewString(),
		TripID:      trip.TripID,
		RiderID:     req.RiderID,
		DriverID:    trip.DriverID,
		Seats:       req.Seats,
		AmountMinor: toMinorUnits(trip.PricePerSeat * float64(req.Seats)),
		Currency:    s.Currency,
		Status:      models.BookingPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if s.Payments != nil && b.AmountMinor > 0 {
		pi, err := s.Payments.Hold(ctx, b.AmountMinor, b.Currency, req.CustomerID, b.ID)
		if err != nil {
			return models.Booking{}, fmt.Errorf("hold payment: %w", err)
		}
		b.PaymentIntentID = pi
	}

	if err := s.Store.ReserveSeats(ctx, trip.TripID, req.Seats); err != nil {
		s.releaseHold(ctx, b)
		return models.Booking{}, err
	}
	if err := s.Store.SaveBooking(ctx, &b); err != nil {
		s.releaseHold(ctx, b)
		if rerr := s.Store.ReleaseSeats(ctx, trip.TripID, req.Seats); rerr != nil {
			s.logger().ErrorContext(ctx, "release seats failed", "trip_id", trip.TripID, "error", rerr)
		}
		return models.Booking{}, fmt.Errorf("save booking: %w", err)
	}
	observability.BookingsTotal.WithLabelValues(string(models.BookingPending)).Inc()

	if s.History != nil {
		rec := models.TripHistoryRecord{
			UserID:        req.RiderID,
			TripID:        trip.TripID,
			FromAddress:   trip.From.Address,
			ToAddress:     trip.To.Address,
			DepartureTime: trip.DepartureTime,
			Price:         trip.PricePerSeat,
		}
		if err := s.History.AppendHistory(ctx, rec); err != nil {
			s.logger().WarnContext(ctx, "append history failed", "rider_id", req.RiderID, "error", err)
		}
	}
	s.notify(trip.DriverID, notify.Notification{
		Type:      notify.TripRequest,
		Title:     "New Trip Request",
		Message:   fmt.Sprintf("A rider booked %d seat(s) on your trip to %s", req.Seats, trip.To.Address),
		Priority:  notify.PriorityHigh,
		ActionURL: "/my-trips",
		Data:      map[string]string{"bookingId": b.ID, "tripId": trip.TripID},
	})
	s.logger().InfoContext(ctx, "booking created", "booking_id", b.ID, "trip_id", trip.TripID, "seats", req.Seats)
	return b, nil
}

// Confirm captures the held payment of a pending booking. The status change
// is claimed first so a concurrent Cancel cannot also act on the hold.
func (s *Service) Confirm(ctx context.Context, bookingID string) (models.Booking, error) {
	b, err := s.claim(ctx, bookingID, models.BookingConfirmed)
	if err != nil {
		return models.Booking{}, err
	}
	if s.Payments != nil && b.PaymentIntentID != "" {
		if err := s.Payments.Capture(ctx, b.PaymentIntentID); err != nil {
			s.unclaim(ctx, b)
			return models.Booking{}, fmt.Errorf("capture payment: %w", err)
		}
	}
	observability.BookingsTotal.WithLabelValues(string(models.BookingConfirmed)).Inc()
	s.notify(b.RiderID, notify.Notification{
		Type:     notify.TripAccepted,
		Title:    "Trip Request Accepted",
		Message:  "Your seat is confirmed",
		Priority: notify.PriorityHigh,
		Data:     map[string]string{"bookingId": b.ID, "tripId": b.TripID},
	})
	return b, nil
}

// Cancel releases the hold and the seats of a pending booking.
func (s *Service) Cancel(ctx context.Context, bookingID string) (models.Booking, error) {
	b, err := s.claim(ctx, bookingID, models.BookingCancelled)
	if err != nil {
		return models.Booking{}, err
	}
	if s.Payments != nil && b.PaymentIntentID != "" {
		if err := s.Payments.Cancel(ctx, b.PaymentIntentID); err != nil {
			s.unclaim(ctx, b)
			return models.Booking{}, fmt.Errorf("cancel payment: %w", err)
		}
	}
	if err := s.Store.ReleaseSeats(ctx, b.TripID, b.Seats); err != nil {
		// the hold is already gone; keep the booking cancelled
		s.logger().ErrorContext(ctx, "release seats failed", "booking_id", b.ID, "trip_id", b.TripID, "error", err)
		return models.Booking{}, fmt.Errorf("release seats: %w", err)
	}
	observability.BookingsTotal.WithLabelValues(string(models.BookingCancelled)).Inc()
	s.notify(b.DriverID, notify.Notification{
		Type:     notify.TripCancelled,
		Title:    "Booking Cancelled",
		Message:  fmt.Sprintf("A rider cancelled %d seat(s)", b.Seats),
		Priority: notify.PriorityMedium,
		Data:     map[string]string{"bookingId": b.ID, "tripId": b.TripID},
	})
	return b, nil
}

// claim moves a pending booking to status. Losing the race to another
// caller reports ErrInvalidState.
func (s *Service) claim(ctx context.Context, bookingID string, status models.BookingStatus) (models.Booking, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status != models.BookingPending {
		return models.Booking{}, ErrInvalidState
	}
	now := s.clock()
	err = s.Store.TransitionBooking(ctx, b.ID, models.BookingPending, status, now)
	if errors.Is(err, storage.ErrStatusConflict) {
		return models.Booking{}, ErrInvalidState
	}
	if err != nil {
		return models.Booking{}, err
	}
	b.Status = status
	b.UpdatedAt = now
	return b, nil
}

// unclaim puts a booking back to pending after its payment step failed.
func (s *Service) unclaim(ctx context.Context, b models.Booking) {
	if err := s.Store.TransitionBooking(ctx, b.ID, b.Status, models.BookingPending, s.clock()); err != nil {
		s.logger().ErrorContext(ctx, "revert booking status failed", "booking_id", b.ID, "status", b.Status, "error", err)
	}
}

func (s *Service) releaseHold(ctx context.Context, b models.Booking) {
	if s.Payments == nil || b.PaymentIntentID == "" {
		return
	}
	if err := s.Payments.Cancel(ctx, b.PaymentIntentID); err != nil {
		s.logger().ErrorContext(ctx, "release payment hold failed", "booking_id", b.ID, "error", err)
	}
}

func (s *Service) notify(userID string, n notify.Notification) {
	if s.Notifier != nil && userID != "" {
		s.Notifier.Add(userID, n)
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
