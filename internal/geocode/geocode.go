// Package geocode turns free-text place names into coordinates using a
// fixed lookup table. Unknown places resolve to the fallback point.
package geocode

import (
	"context"
	"strings"

	"github.com/example/carpool-matching/internal/models"
)

// Geocoder resolves an address to a point.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeoPoint, error)
}

type coord struct{ lat, lng float64 }

var places = map[string]coord{
	"dubai":               {25.2048, 55.2708},
	"abu dhabi":           {24.4539, 54.3773},
	"riyadh":              {24.7136, 46.6753},
	"jeddah":              {21.5433, 39.1728},
	"cairo":               {30.0444, 31.2357},
	"alexandria":          {31.2001, 29.9187},
	"doha":                {25.2867, 51.5310},
	"sharjah":             {25.3463, 55.4209},
	"al ain":              {24.2075, 55.7447},
	"dubai marina":        {25.0805, 55.1403},
	"downtown dubai":      {25.1972, 55.2744},
	"business bay":        {25.1850, 55.2650},
	"jumeirah":            {25.2048, 55.2417},
	"dubai airport":       {25.2532, 55.3657},
	"dubai mall":          {25.1985, 55.2796},
	"mall of emirates":    {25.1181, 55.2006},
	"dubai internet city": {25.0955, 55.1599},
}

// Static is the fixed-table Geocoder.
type Static struct {
	Fallback models.GeoPoint
}

func NewStatic() *Static {
	dubai := places["dubai"]
	return &Static{Fallback: models.GeoPoint{Latitude: dubai.lat, Longitude: dubai.lng}}
}

func (s *Static) Geocode(_ context.Context, address string) (models.GeoPoint, error) {
	if c, ok := places[strings.ToLower(strings.TrimSpace(address))]; ok {
		return models.GeoPoint{Latitude: c.lat, Longitude: c.lng, Address: address}, nil
	}
	p := s.Fallback
	p.Address = address
	return p, nil
}

// Resolve fills in coordinates for a point that only carries an address.
func Resolve(ctx context.Context, g Geocoder, p models.GeoPoint) (models.GeoPoint, error) {
	if !p.IsZero() || p.Address == "" {
		return p, nil
	}
	return g.Geocode(ctx, p.Address)
}
