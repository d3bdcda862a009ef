package matcher

import (
	"math"
	"sort"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

// Factor weights sum to 1.0.
const (
	RouteWeight      = 0.40
	PreferenceWeight = 0.25
	RatingWeight     = 0.20
	PriceWeight      = 0.15

	// MinOverallScore is compared against the unrounded weighted score.
	MinOverallScore = 50.0
)

const (
	kmPenalty      = 10.0 // route points lost per km away from an endpoint
	stopRadiusKm   = 5.0
	stopBonus      = 20.0
	affordableBase = 70.0
)

const (
	ReasonRoute       = "Perfect route match"
	ReasonPreferences = "Great compatibility"
	ReasonRating      = "Highly rated driver"
	ReasonVerified    = "Verified profile"
	ReasonPrice       = "Great price"
)

const (
	perfectRouteScore = 80.0
	greatPrefScore    = 90.0
	highlyRatedDriver = 4.7
	greatPriceScore   = 85.0
)

// Breakdown holds the sub-scores behind one compatibility score.
type Breakdown struct {
	Route      float64 `json:"route"`
	Preference float64 `json:"preference"`
	Price      float64 `json:"price"`
	Rating     float64 `json:"rating"`
	Overall    float64 `json:"overall"`
}

// RouteScore rates how well a trip's endpoints and stops serve the rider's route.
func RouteScore(user models.Route, trip models.TripRoute) float64 {
	startScore := math.Max(0, 100-geo.DistanceKm(user.From, trip.From)*kmPenalty)
	endScore := math.Max(0, 100-geo.DistanceKm(user.To, trip.To)*kmPenalty)

	bonus := 0.0
	for _, stop := range trip.Stops {
		if geo.DistanceKm(user.From, stop) < stopRadiusKm || geo.DistanceKm(user.To, stop) < stopRadiusKm {
			bonus = stopBonus
			break
		}
	}
	return math.Min(100, (startScore+endScore)/2+bonus)
}

// PreferenceScore starts at 100 and subtracts a penalty per mismatched field.
func PreferenceScore(rider, driver models.RidePreferences) float64 {
	score := 100.0
	// smoking and pets are close to hard constraints
	if rider.AllowsSmoking != driver.AllowsSmoking {
		score -= 30
	}
	if rider.AllowsPets != driver.AllowsPets {
		score -= 20
	}
	if rider.AllowsMusic != driver.AllowsMusic {
		score -= 10
	}
	if rider.Conversation != driver.Conversation {
		score -= 10
	}
	if rider.Temperature != driver.Temperature {
		score -= 10
	}
	return math.Max(0, score)
}

// PriceScore gives any affordable trip a 70 point floor plus the percentage saved.
// A non-positive budget scores 0.
func PriceScore(maxPrice, tripPrice float64) float64 {
	if tripPrice > maxPrice || maxPrice <= 0 {
		return 0
	}
	saving := (maxPrice - tripPrice) / maxPrice * 100
	return clamp(affordableBase + saving)
}

// RatingScore interpolates the driver's rating between minRating and 5.
func RatingScore(driverRating, minRating float64) float64 {
	if driverRating < minRating {
		return 0
	}
	if minRating >= 5 {
		// nothing to interpolate; only a perfect rating clears a 5.0 bar
		return 100
	}
	return clamp((driverRating - minRating) / (5 - minRating) * 100)
}

// Score computes the sub-scores and weighted overall score of one candidate.
func Score(q models.MatchQuery, trip models.CandidateTrip) Breakdown {
	b := Breakdown{
		Route:      RouteScore(q.DesiredRoute, trip.Route()),
		Preference: PreferenceScore(q.RiderPreferences, trip.DriverPreferences),
		Price:      PriceScore(q.MaxPricePerSeat, trip.PricePerSeat),
		Rating:     RatingScore(trip.DriverRating, q.MinDriverRating),
	}
	b.Overall = b.Route*RouteWeight +
		b.Preference*PreferenceWeight +
		b.Rating*RatingWeight +
		b.Price*PriceWeight
	return b
}

// Reasons lists the human readable justifications for a scored trip, in a fixed order.
func Reasons(b Breakdown, trip models.CandidateTrip) []string {
	reasons := []string{}
	if b.Route >= perfectRouteScore {
		reasons = append(reasons, ReasonRoute)
	}
	if b.Preference >= greatPrefScore {
		reasons = append(reasons, ReasonPreferences)
	}
	if trip.DriverRating >= highlyRatedDriver {
		reasons = append(reasons, ReasonRating)
	}
	if trip.IsVerified {
		reasons = append(reasons, ReasonVerified)
	}
	if b.Price >= greatPriceScore {
		reasons = append(reasons, ReasonPrice)
	}
	return reasons
}

// MatchTrips scores every candidate against q and returns the ones clearing
// MinOverallScore, best first. Equal scores keep their input order.
func MatchTrips(q models.MatchQuery, candidates []models.CandidateTrip) []models.TripMatch {
	matches := make([]models.TripMatch, 0, len(candidates))
	for _, trip := range candidates {
		b := Score(q, trip)
		if b.Overall < MinOverallScore {
			continue
		}
		matches = append(matches, models.TripMatch{
			TripID:             trip.TripID,
			DriverID:           trip.DriverID,
			DriverName:         trip.DriverName,
			DriverRating:       trip.DriverRating,
			CompatibilityScore: int(math.Round(b.Overall)),
			MatchReasons:       Reasons(b, trip),
			PricePerSeat:       trip.PricePerSeat,
			DepartureTime:      trip.DepartureTime,
			AvailableSeats:     trip.AvailableSeats,
			VehicleType:        trip.VehicleType,
			IsVerified:         trip.IsVerified,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CompatibilityScore > matches[j].CompatibilityScore
	})
	return matches
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
