package zone

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
)

// Resolution sources.
const (
	SourceGeocoder = "geocoder"
	SourceFallback = "fallback"
)

// latitudeBand assigns every latitude at or above min to district. Bands
// are checked north to south.
type latitudeBand struct {
	min      float64
	district string
}

var latitudeBands = []latitudeBand{
	{12.2, "Kasaragod"},
	{11.7, "Kannur"},
	{11.15, "Kozhikode"},
	{10.9, "Malappuram"},
	{10.65, "Palakkad"},
	{10.3, "Thrissur"},
	{9.75, "Ernakulam"},
	{9.4, "Kottayam"},
	{9.1, "Pathanamthitta"},
	{8.7, "Kollam"},
}

// inlandBoxes cover districts that share latitudes with a neighbour and are
// told apart by longitude. They are checked before the bands.
var inlandBoxes = []struct {
	minLat, maxLat float64
	minLng, maxLng float64
	district       string
}{
	{11.45, 12.0, 75.95, 180, "Wayanad"},
	{9.25, 10.3, 76.85, 180, "Idukki"},
	{9.05, 9.75, -180, 76.45, "Alappuzha"},
}

// Resolver maps coordinates to a district. A nil geocoder always uses the
// coordinate heuristic.
type Resolver struct {
	geocoder domain.Geocoder
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewResolver creates a Resolver. timeout bounds each geocoder call.
func NewResolver(geocoder domain.Geocoder, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// ResolveDistrict returns the district containing (lat, lng). It never
// fails: geocoder errors, timeouts, and non-district answers fall back to
// DistrictForCoordinates.
func (r *Resolver) ResolveDistrict(ctx context.Context, lat, lng float64) string {
	if r.geocoder != nil {
		if d, ok := r.geocode(ctx, lat, lng); ok {
			r.metrics.ZoneResolutions.WithLabelValues(SourceGeocoder).Inc()
			return d
		}
	}
	r.metrics.ZoneResolutions.WithLabelValues(SourceFallback).Inc()
	return DistrictForCoordinates(lat, lng)
}

func (r *Resolver) geocode(ctx context.Context, lat, lng float64) (string, bool) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		r.logger.Warn("reverse geocode failed, using latitude bands",
			"lat", lat, "lng", lng, "error", err)
		return "", false
	}

	for _, name := range []string{result.District, result.County, result.City} {
		if d, ok := Canonical(name); ok {
			return d, true
		}
	}
	r.logger.Debug("geocoded place is not a district, using latitude bands",
		"lat", lat, "lng", lng, "place", PlaceName(result))
	return "", false
}

// PlaceName picks the most specific administrative name from a geocoding
// result: district, then county, then city, else Unknown.
func PlaceName(r domain.GeocodingResult) string {
	for _, name := range []string{r.District, r.County, r.City} {
		if name != "" {
			return name
		}
	}
	return Unknown
}

// DistrictForCoordinates is the coarse fallback used when geocoding is
// unavailable: a longitude box for the districts that share latitudes with
// a neighbour, else the latitude band. Everything south of the last band is
// Thiruvananthapuram.
func DistrictForCoordinates(lat, lng float64) string {
	for _, b := range inlandBoxes {
		if lat >= b.minLat && lat < b.maxLat && lng >= b.minLng && lng < b.maxLng {
			return b.district
		}
	}
	for _, b := range latitudeBands {
		if lat >= b.min {
			return b.district
		}
	}
	return "Thiruvananthapuram"
}
