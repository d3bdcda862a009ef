package suggest

import (
	"fmt"

	"github.com/example/carpool-matching/internal/models"
)

const (
	minRouteRepeats = 3
	minMorningTrips = 3
	morningFrom     = 6
	morningTo       = 9 // inclusive

	MorningCommute = "You often travel in the morning. Enable morning commute alerts?"
)

// RouteKey identifies a route by its exact from/to addresses.
func RouteKey(r models.TripHistoryRecord) string {
	return r.FromAddress + "-" + r.ToAddress
}

// Generate proposes a recurring trip for the most frequent route and a
// morning commute alert when the history shows a morning pattern.
// Departure hours are read in each timestamp's own location.
func Generate(history []models.TripHistoryRecord) []string {
	suggestions := []string{}

	if route, n := mostFrequentRoute(history); n >= minRouteRepeats {
		suggestions = append(suggestions, fmt.Sprintf("Set up recurring trip for %s?", route))
	}

	morning := 0
	for _, r := range history {
		if h := r.DepartureTime.Hour(); h >= morningFrom && h <= morningTo {
			morning++
		}
	}
	if morning >= minMorningTrips {
		suggestions = append(suggestions, MorningCommute)
	}
	return suggestions
}

// mostFrequentRoute returns the route seen most often; the first seen wins ties.
func mostFrequentRoute(history []models.TripHistoryRecord) (string, int) {
	counts := make(map[string]int, len(history))
	var order []string
	for _, r := range history {
		k := RouteKey(r)
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	best, bestN := "", 0
	for _, k := range order {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best, bestN
}
