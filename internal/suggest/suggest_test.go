package suggest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/carpool-matching/internal/models"
)

func rec(from, to string, hour int) models.TripHistoryRecord {
	return models.TripHistoryRecord{
		FromAddress:   from,
		ToAddress:     to,
		DepartureTime: time.Date(2026, 3, 1, hour, 30, 0, 0, time.UTC),
	}
}

func TestGenerateEmptyHistory(t *testing.T) {
	out := Generate(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestGenerateRecurringRoute(t *testing.T) {
	history := []models.TripHistoryRecord{
		rec("Dubai Marina", "Downtown Dubai", 14),
		rec("Dubai Marina", "Downtown Dubai", 15),
		rec("Dubai Marina", "Downtown Dubai", 18),
		rec("Dubai Marina", "Downtown Dubai", 20),
		rec("Sharjah", "Dubai Airport", 12),
	}
	assert.Equal(t, []string{"Set up recurring trip for Dubai Marina-Downtown Dubai?"}, Generate(history))
}

func TestGenerateRouteAndMorningPattern(t *testing.T) {
	history := []models.TripHistoryRecord{
		rec("Dubai Marina", "Downtown Dubai", 14),
		rec("Dubai Marina", "Downtown Dubai", 15),
		rec("Dubai Marina", "Downtown Dubai", 18),
		rec("Dubai Marina", "Downtown Dubai", 20),
		rec("Sharjah", "Dubai Airport", 12),
		rec("Business Bay", "Dubai Marina", 7),
		rec("Jumeirah", "Dubai Mall", 8),
		rec("Al Ain", "Dubai", 9),
	}
	assert.Equal(t, []string{
		"Set up recurring trip for Dubai Marina-Downtown Dubai?",
		MorningCommute,
	}, Generate(history))
}

func TestGenerateRouteDirectionAndCaseMatter(t *testing.T) {
	history := []models.TripHistoryRecord{
		rec("A", "B", 12),
		rec("B", "A", 12),
		rec("a", "b", 12),
		rec("A", "B", 12),
	}
	assert.Empty(t, Generate(history))
}

func TestGenerateMorningWindowBounds(t *testing.T) {
	outside := []models.TripHistoryRecord{rec("A", "B", 5), rec("C", "D", 10), rec("E", "F", 23)}
	assert.Empty(t, Generate(outside))

	inside := []models.TripHistoryRecord{rec("A", "B", 6), rec("C", "D", 9), rec("E", "F", 9)}
	assert.Equal(t, []string{MorningCommute}, Generate(inside))
}

func TestGenerateUsesTimestampLocation(t *testing.T) {
	gst := time.FixedZone("GST", 4*3600)
	history := make([]models.TripHistoryRecord, 0, 3)
	for i := 0; i < 3; i++ {
		// 03:30 UTC is 07:30 in Dubai
		ts := time.Date(2026, 3, 1+i, 3, 30, 0, 0, time.UTC).In(gst)
		history = append(history, models.TripHistoryRecord{FromAddress: "X", ToAddress: string(rune('a' + i)), DepartureTime: ts})
	}
	assert.Equal(t, []string{MorningCommute}, Generate(history))
}

func TestMostFrequentRouteFirstSeenWinsTie(t *testing.T) {
	history := []models.TripHistoryRecord{
		rec("B", "C", 12), rec("A", "B", 12),
		rec("A", "B", 12), rec("B", "C", 12),
		rec("A", "B", 12), rec("B", "C", 12),
	}
	route, n := mostFrequentRoute(history)
	assert.Equal(t, "B-C", route)
	assert.Equal(t, 3, n)
}
