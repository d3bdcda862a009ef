package models

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMinDriverRating is the rating bar applied when a rider does not set one.
const DefaultMinDriverRating = 4.0

type GeoPoint struct {
	Latitude  float64 `json:"lat" bson:"lat"`
	Longitude float64 `json:"lng" bson:"lng"`
	Address   string  `json:"address" bson:"address"`
}

// IsZero reports whether the point carries no coordinates.
func (p GeoPoint) IsZero() bool { return p.Latitude == 0 && p.Longitude == 0 }

func (p GeoPoint) validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", p.Longitude)
	}
	return nil
}

type ConversationLevel string

const (
	ConversationQuiet    ConversationLevel = "quiet"
	ConversationModerate ConversationLevel = "moderate"
	ConversationChatty   ConversationLevel = "chatty"
)

type Temperature string

const (
	TemperatureCold     Temperature = "cold"
	TemperatureModerate Temperature = "moderate"
	TemperatureWarm     Temperature = "warm"
)

// RidePreferences describes either what a rider wants or what a driver offers.
type RidePreferences struct {
	AllowsSmoking bool              `json:"smoking"`
	AllowsMusic   bool              `json:"music"`
	AllowsPets    bool              `json:"pets"`
	Conversation  ConversationLevel `json:"conversation"`
	Temperature   Temperature       `json:"temperature"`
}

func DefaultPreferences() RidePreferences {
	return RidePreferences{
		AllowsMusic:  true,
		Conversation: ConversationModerate,
		Temperature:  TemperatureModerate,
	}
}

type Route struct {
	From GeoPoint `json:"from"`
	To   GeoPoint `json:"to"`
}

type TripRoute struct {
	From  GeoPoint   `json:"from"`
	To    GeoPoint   `json:"to"`
	Stops []GeoPoint `json:"stops,omitempty"`
}

// CandidateTrip is a read-only snapshot of a driver-offered trip.
type CandidateTrip struct {
	TripID            string          `json:"id"`
	DriverID          string          `json:"driverId"`
	DriverName        string          `json:"driverName"`
	DriverRating      float64         `json:"driverRating"` // 0..5
	DriverPreferences RidePreferences `json:"driverPreferences"`
	From              GeoPoint        `json:"from"`
	To                GeoPoint        `json:"to"`
	Stops             []GeoPoint      `json:"stops,omitempty"`
	PricePerSeat      float64         `json:"price"`
	DepartureTime     time.Time       `json:"departureTime"`
	AvailableSeats    int             `json:"availableSeats"`
	VehicleType       string          `json:"vehicleType"`
	IsVerified        bool            `json:"verified"`
}

func (t CandidateTrip) Route() TripRoute {
	return TripRoute{From: t.From, To: t.To, Stops: t.Stops}
}

// Validate checks the trip shape before it is stored or scored.
func (t CandidateTrip) Validate() error {
	var errs []error
	if t.DriverID == "" {
		errs = append(errs, errors.New("driverId is required"))
	}
	if t.DriverRating < 0 || t.DriverRating > 5 {
		errs = append(errs, fmt.Errorf("driverRating %.2f out of range [0,5]", t.DriverRating))
	}
	if t.PricePerSeat < 0 {
		errs = append(errs, errors.New("price must be >= 0"))
	}
	if t.AvailableSeats < 0 {
		errs = append(errs, errors.New("availableSeats must be >= 0"))
	}
	if t.DepartureTime.IsZero() {
		errs = append(errs, errors.New("departureTime is required"))
	}
	if err := t.From.validate(); err != nil {
		errs = append(errs, fmt.Errorf("from: %w", err))
	}
	if err := t.To.validate(); err != nil {
		errs = append(errs, fmt.Errorf("to: %w", err))
	}
	for i, s := range t.Stops {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("stops[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

type MatchQuery struct {
	DesiredRoute     Route           `json:"route"`
	RiderPreferences RidePreferences `json:"preferences"`
	MaxPricePerSeat  float64         `json:"maxPrice"`
	MinDriverRating  float64         `json:"minRating"`
}

func NewMatchQuery(route Route, prefs RidePreferences, maxPrice float64) MatchQuery {
	return MatchQuery{
		DesiredRoute:     route,
		RiderPreferences: prefs,
		MaxPricePerSeat:  maxPrice,
		MinDriverRating:  DefaultMinDriverRating,
	}
}

type TripMatch struct {
	TripID             string    `json:"tripId"`
	DriverID           string    `json:"driverId"`
	DriverName         string    `json:"driverName"`
	DriverRating       float64   `json:"driverRating"`
	CompatibilityScore int       `json:"compatibilityScore"`
	MatchReasons       []string  `json:"matchReasons"`
	PricePerSeat       float64   `json:"price"`
	DepartureTime      time.Time `json:"departureTime"`
	AvailableSeats     int       `json:"availableSeats"`
	VehicleType        string    `json:"vehicleType"`
	IsVerified         bool      `json:"verified"`
}

type TripHistoryRecord struct {
	UserID        string    `json:"userId" bson:"user_id"`
	TripID        string    `json:"tripId" bson:"trip_id"`
	FromAddress   string    `json:"from" bson:"from_address"`
	ToAddress     string    `json:"to" bson:"to_address"`
	DepartureTime time.Time `json:"departureTime" bson:"departure_time"`
	Price         float64   `json:"price" bson:"price"`
}

// TripFilter narrows candidate trips before scoring.
type TripFilter struct {
	IDs             []string
	DepartureAfter  time.Time
	DepartureBefore time.Time
	MinSeats        int
}

// Matches reports whether t passes the non-geographic parts of the filter.
func (f TripFilter) Matches(t CandidateTrip) bool {
	if !f.DepartureAfter.IsZero() && t.DepartureTime.Before(f.DepartureAfter) {
		return false
	}
	if !f.DepartureBefore.IsZero() && t.DepartureTime.After(f.DepartureBefore) {
		return false
	}
	return t.AvailableSeats >= f.MinSeats
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID              string        `json:"id"`
	TripID          string        `json:"tripId"`
	RiderID         string        `json:"riderId"`
	DriverID        string        `json:"driverId"`
	Seats           int           `json:"seatsBooked"`
	AmountMinor     int64         `json:"amount"`
	Currency        string        `json:"currency"`
	PaymentIntentID string        `json:"paymentIntentId,omitempty"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}
