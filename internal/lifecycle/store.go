package lifecycle

import (
	"context"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/scoring"
)

// Store persists incidents and crisis records. Every method that takes a
// callback runs it inside the store's unit of atomicity (a lock or a
// transaction); an error from the callback aborts without writing.
type Store interface {
	CreateIncident(ctx context.Context, inc domain.Incident) error
	GetIncident(ctx context.Context, id string) (domain.Incident, error)
	// ListIncidents returns matching incidents, newest first.
	ListIncidents(ctx context.Context, f domain.IncidentFilter) ([]domain.Incident, error)
	UpdateIncident(ctx context.Context, id string, fn func(*domain.Incident) error) (domain.Incident, error)

	// OpenCrisis creates the crisis built by fn and marks the incident
	// forwarded, unless the incident already has a crisis. In that case the
	// existing crisis is returned with created=false and fn is not called.
	OpenCrisis(ctx context.Context, incidentID string, fn func(domain.Incident) (domain.CrisisRecord, error)) (crisis domain.CrisisRecord, created bool, err error)
	GetCrisis(ctx context.Context, id string) (domain.CrisisRecord, error)
	// ListCrises returns matching crises, newest first.
	ListCrises(ctx context.Context, f domain.CrisisFilter) ([]domain.CrisisRecord, error)
	// UpdateCrisis mutates a crisis and its source incident together.
	UpdateCrisis(ctx context.Context, id string, fn func(*domain.CrisisRecord, *domain.Incident) error) (domain.CrisisRecord, domain.Incident, error)
}

// EventPublisher emits lifecycle events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.IncidentEvent) error
}

// TrustLedger reads reporter profiles and applies adjudicated outcomes.
type TrustLedger interface {
	GetOrCreate(ctx context.Context, reporterID string) (domain.TrustProfile, error)
	RecordOutcome(ctx context.Context, reporterID string, verified bool) (domain.TrustProfile, error)
}

// Scorer computes the score set for a new incident and previews severity.
type Scorer interface {
	Compute(ctx context.Context, inc domain.Incident) (domain.ScoreSet, error)
	Classify(description string) scoring.Classification
}

// DistrictResolver maps coordinates to a district.
type DistrictResolver interface {
	ResolveDistrict(ctx context.Context, lat, lng float64) string
}
