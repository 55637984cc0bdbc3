package scoring

import (
	"testing"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

var (
	noon     = time.Date(2024, 7, 30, 12, 0, 0, 0, time.UTC)
	evening  = time.Date(2024, 7, 30, 19, 30, 0, 0, time.UTC)
	midnight = time.Date(2024, 7, 30, 2, 0, 0, 0, time.UTC)
)

func TestContextModel_Assess(t *testing.T) {
	m := NewContextModel(time.UTC)

	tests := []struct {
		name    string
		c       domain.Conditions
		at      time.Time
		want    float64
		factors []string
	}{
		{"baseline", domain.Conditions{}, noon, 0.6, nil},
		{"explicit medium normal", domain.Conditions{PopulationDensity: "medium", Weather: "normal"}, noon, 0.6, nil},
		{"low density day", domain.Conditions{PopulationDensity: "low"}, noon, 0.52, nil},
		{"evening", domain.Conditions{}, evening, 0.63, nil},
		{"high density severe night", domain.Conditions{PopulationDensity: "high", Weather: "severe"}, midnight, 0.915,
			[]string{"high_population_density", "night_time", "severe_weather"}},
		{"moderate weather", domain.Conditions{Weather: "moderate"}, noon, 0.645, []string{"moderate_weather"}},
		{"unknown tiers treated as defaults", domain.Conditions{PopulationDensity: "dense", Weather: "foggy"}, noon, 0.6, nil},
		{"disaster zone floors multiplier", domain.Conditions{PopulationDensity: "low", DisasterZone: true}, noon, DisasterZoneFloor,
			[]string{"disaster_zone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Assess(tt.c, tt.at)
			assert.InDelta(t, tt.want, got.Multiplier, 1e-9)
			assert.Equal(t, tt.factors, got.Factors)
		})
	}
}

func TestContextModel_Assess_DisasterZoneKeepsHigherValue(t *testing.T) {
	m := NewContextModel(time.UTC)
	got := m.Assess(domain.Conditions{PopulationDensity: "high", Weather: "severe", DisasterZone: true}, midnight)

	assert.InDelta(t, 0.915, got.Multiplier, 1e-9)
}

func TestContextModel_Assess_UsesLocation(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	m := NewContextModel(ist)

	// 17:00 UTC is 22:30 IST.
	got := m.Assess(domain.Conditions{}, time.Date(2024, 7, 30, 17, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"night_time"}, got.Factors)
}

func TestTimePeriod(t *testing.T) {
	assert.Equal(t, periodNight, timePeriod(5))
	assert.Equal(t, periodDay, timePeriod(6))
	assert.Equal(t, periodDay, timePeriod(17))
	assert.Equal(t, periodEvening, timePeriod(18))
	assert.Equal(t, periodEvening, timePeriod(21))
	assert.Equal(t, periodNight, timePeriod(22))
	assert.Equal(t, periodNight, timePeriod(0))
}
