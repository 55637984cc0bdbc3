package domain

import "context"

// GeocodingResult contains the place hierarchy returned by a reverse
// geocoding provider. Empty fields mean the provider did not report that level.
type GeocodingResult struct {
	District         string
	County           string
	City             string
	Region           string
	FormattedAddress string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves coordinates to administrative place names.
type Geocoder interface {
	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lng float64) (GeocodingResult, error)
}
