package scoring

import (
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// Sub-factor weights; they sum to 1 so the multiplier stays in [0,1].
const (
	densityWeight = 0.4
	timeWeight    = 0.3
	weatherWeight = 0.3

	// DisasterZoneFloor is the minimum multiplier inside a declared disaster zone.
	DisasterZoneFloor = 0.9

	// NeutralContext is used when conditions cannot be gathered.
	NeutralContext = 0.5
)

var densityRisk = map[string]float64{
	domain.DensityLow:    0.4,
	domain.DensityMedium: 0.6,
	domain.DensityHigh:   0.9,
}

var weatherRisk = map[string]float64{
	domain.WeatherNormal:   0.6,
	domain.WeatherModerate: 0.75,
	domain.WeatherSevere:   1.0,
}

// Time-of-day tiers.
const (
	periodDay     = "day"
	periodEvening = "evening"
	periodNight   = "night"
)

var timeRisk = map[string]float64{
	periodDay:     0.6,
	periodEvening: 0.7,
	periodNight:   0.85,
}

// Assessment is the output of the context-risk model.
type Assessment struct {
	Multiplier float64
	Factors    []string
}

// ContextModel combines density, time-of-day, and weather tiers into a risk
// multiplier.
type ContextModel struct {
	loc *time.Location
}

// NewContextModel creates a ContextModel that reads time-of-day in loc.
// A nil loc uses UTC.
func NewContextModel(loc *time.Location) *ContextModel {
	if loc == nil {
		loc = time.UTC
	}
	return &ContextModel{loc: loc}
}

// Assess computes the multiplier for conditions observed at the given time.
func (m *ContextModel) Assess(c domain.Conditions, at time.Time) Assessment {
	density, ok := densityRisk[c.PopulationDensity]
	if !ok {
		density = densityRisk[domain.DensityMedium]
	}
	weather, ok := weatherRisk[c.Weather]
	if !ok {
		weather = weatherRisk[domain.WeatherNormal]
	}
	period := timePeriod(at.In(m.loc).Hour())

	multiplier := densityWeight*density + timeWeight*timeRisk[period] + weatherWeight*weather

	var factors []string
	if c.PopulationDensity == domain.DensityHigh {
		factors = append(factors, "high_population_density")
	}
	if period == periodNight {
		factors = append(factors, "night_time")
	}
	if c.Weather == domain.WeatherSevere || c.Weather == domain.WeatherModerate {
		factors = append(factors, c.Weather+"_weather")
	}
	if c.DisasterZone {
		factors = append(factors, "disaster_zone")
		multiplier = max(multiplier, DisasterZoneFloor)
	}

	return Assessment{Multiplier: domain.Clamp01(multiplier), Factors: factors}
}

func timePeriod(hour int) string {
	switch {
	case hour >= 6 && hour < 18:
		return periodDay
	case hour >= 18 && hour < 22:
		return periodEvening
	default:
		return periodNight
	}
}
