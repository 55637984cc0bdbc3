package zone

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
	block  bool
	calls  int
}

func (m *mockGeocoder) ReverseGeocode(ctx context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return domain.GeocodingResult{}, ctx.Err()
	}
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(g domain.Geocoder) (*Resolver, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewResolver(g, 50*time.Millisecond, discardLogger(), m), m
}

// --- tests ---

func TestAuthorityFor_TotalOverDistricts(t *testing.T) {
	counts := map[string]int{}
	for _, d := range Districts() {
		a, err := AuthorityFor(d.Name)
		require.NoError(t, err, d.Name)
		assert.Contains(t, Authorities(), a)
		assert.Equal(t, d.Authority, a)
		counts[a]++
	}
	assert.Len(t, Districts(), 14)
	assert.Len(t, counts, 4, "every authority owns at least one district")
}

func TestAuthorityFor(t *testing.T) {
	tests := []struct {
		district string
		want     string
	}{
		{"Wayanad", AuthorityNorth},
		{"thrissur", AuthorityMalabar},
		{"Kochi", AuthorityCentral},
		{"Idukki District", AuthorityCentral},
		{" Trivandrum ", AuthoritySouth},
	}
	for _, tt := range tests {
		got, err := AuthorityFor(tt.district)
		require.NoError(t, err, tt.district)
		assert.Equal(t, tt.want, got, tt.district)
	}

	_, err := AuthorityFor("Bengaluru")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownDistrict))

	_, err = AuthorityFor(Unknown)
	assert.True(t, errors.Is(err, domain.ErrUnknownDistrict))
}

func TestCanonical(t *testing.T) {
	got, ok := Canonical("ALLEPPEY")
	assert.True(t, ok)
	assert.Equal(t, "Alappuzha", got)

	_, ok = Canonical("")
	assert.False(t, ok)
}

func TestDistrictForCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		want     string
	}{
		{"Kasaragod", 12.5, 75.0, "Kasaragod"},
		{"band edge", 12.2, 75.1, "Kasaragod"},
		{"Kannur", 11.87, 75.37, "Kannur"},
		{"Kalpetta", 11.61, 76.08, "Wayanad"},
		{"Mananthavady", 11.8, 76.0, "Wayanad"},
		{"coastal Kozhikode beside Wayanad", 11.6, 75.8, "Kozhikode"},
		{"Kozhikode", 11.25, 75.78, "Kozhikode"},
		{"Malappuram", 11.05, 76.07, "Malappuram"},
		{"Palakkad", 10.77, 76.65, "Palakkad"},
		{"Thrissur", 10.52, 76.21, "Thrissur"},
		{"Munnar", 10.09, 77.06, "Idukki"},
		{"Painavu", 9.85, 76.97, "Idukki"},
		{"Kochi", 9.93, 76.26, "Ernakulam"},
		{"Alappuzha", 9.49, 76.33, "Alappuzha"},
		{"Kottayam", 9.59, 76.52, "Kottayam"},
		{"Pathanamthitta", 9.26, 76.78, "Pathanamthitta"},
		{"Kollam", 8.89, 76.61, "Kollam"},
		{"Thiruvananthapuram", 8.52, 76.94, "Thiruvananthapuram"},
		{"far south", 0, 0, "Thiruvananthapuram"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistrictForCoordinates(tt.lat, tt.lng)
			assert.Equal(t, tt.want, got)
			_, err := AuthorityFor(got)
			assert.NoError(t, err)
		})
	}
}

func TestDistrictForCoordinates_ReachesEveryDistrict(t *testing.T) {
	seen := make(map[string]bool)
	for lat := 8.2; lat <= 12.8; lat += 0.05 {
		for lng := 74.8; lng <= 77.5; lng += 0.05 {
			seen[DistrictForCoordinates(lat, lng)] = true
		}
	}
	assert.Len(t, seen, len(Districts()))
}

func TestResolver_UsesGeocoderDistrict(t *testing.T) {
	g := &mockGeocoder{result: domain.GeocodingResult{District: "Wayanad", City: "Kalpetta"}}
	r, m := newTestResolver(g)

	assert.Equal(t, "Wayanad", r.ResolveDistrict(context.Background(), 11.6854, 76.1320))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ZoneResolutions.WithLabelValues(SourceGeocoder)))
}

func TestResolver_PrecedenceCountyThenCity(t *testing.T) {
	r, _ := newTestResolver(&mockGeocoder{result: domain.GeocodingResult{County: "Idukki", City: "Kochi"}})
	assert.Equal(t, "Idukki", r.ResolveDistrict(context.Background(), 9.85, 76.97))

	r, _ = newTestResolver(&mockGeocoder{result: domain.GeocodingResult{City: "Calicut"}})
	assert.Equal(t, "Kozhikode", r.ResolveDistrict(context.Background(), 11.25, 75.78))
}

func TestResolver_FallbackOnError(t *testing.T) {
	r, m := newTestResolver(&mockGeocoder{err: errors.New("mapbox API error: status 500")})

	assert.Equal(t, "Ernakulam", r.ResolveDistrict(context.Background(), 9.93, 76.26))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ZoneResolutions.WithLabelValues(SourceFallback)))
}

func TestResolver_FallbackOnTimeout(t *testing.T) {
	g := &mockGeocoder{block: true}
	r, _ := newTestResolver(g)

	start := time.Now()
	assert.Equal(t, "Thrissur", r.ResolveDistrict(context.Background(), 10.52, 76.21))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, g.calls)
}

func TestResolver_FallbackOnNonDistrict(t *testing.T) {
	r, _ := newTestResolver(&mockGeocoder{result: domain.GeocodingResult{City: "Chennai", Region: "Tamil Nadu"}})
	assert.Equal(t, "Kollam", r.ResolveDistrict(context.Background(), 8.89, 76.61))

	r, _ = newTestResolver(&mockGeocoder{})
	assert.Equal(t, "Kollam", r.ResolveDistrict(context.Background(), 8.89, 76.61))
}

func TestResolver_NilGeocoder(t *testing.T) {
	r, _ := newTestResolver(nil)
	assert.Equal(t, "Kannur", r.ResolveDistrict(context.Background(), 11.87, 75.37))
}

func TestPlaceName(t *testing.T) {
	assert.Equal(t, "Ernakulam", PlaceName(domain.GeocodingResult{District: "Ernakulam", County: "x", City: "Kochi"}))
	assert.Equal(t, "Kochi", PlaceName(domain.GeocodingResult{City: "Kochi"}))
	assert.Equal(t, Unknown, PlaceName(domain.GeocodingResult{}))
}

func TestProfiles_Conditions(t *testing.T) {
	p := NewProfiles([]string{"wayanad", "Atlantis"})

	c, err := p.Conditions(context.Background(), "Wayanad")
	require.NoError(t, err)
	assert.Equal(t, domain.Conditions{PopulationDensity: domain.DensityLow, DisasterZone: true}, c)

	c, err = p.Conditions(context.Background(), "Kochi")
	require.NoError(t, err)
	assert.Equal(t, domain.Conditions{PopulationDensity: domain.DensityHigh}, c)

	_, err = p.Conditions(context.Background(), Unknown)
	assert.True(t, errors.Is(err, domain.ErrUnknownDistrict))
}
