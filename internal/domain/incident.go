package domain

import "time"

// Modality is the kind of evidence attached to a report.
type Modality string

const (
	ModalityCamera Modality = "camera"
	ModalityImage  Modality = "image"
	ModalityText   Modality = "text"
	ModalityNone   Modality = "none"
)

// Evidence describes what the reporter attached.
type Evidence struct {
	Modality            Modality `json:"modality"`
	HasLocationMetadata bool     `json:"has_location_metadata"`
}

// Coordinates is a WGS-84 latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Population density tiers.
const (
	DensityLow    = "low"
	DensityMedium = "medium"
	DensityHigh   = "high"
)

// Weather tiers.
const (
	WeatherNormal   = "normal"
	WeatherModerate = "moderate"
	WeatherSevere   = "severe"
)

// Conditions are the environmental inputs to the context-risk model. Empty
// tiers fall back to medium density and normal weather. DisasterZone is set
// from declared districts only; a value supplied with a report is dropped.
type Conditions struct {
	PopulationDensity string `json:"population_density,omitempty" validate:"omitempty,oneof=low medium high"`
	Weather           string `json:"weather,omitempty" validate:"omitempty,oneof=normal moderate severe"`
	DisasterZone      bool   `json:"disaster_zone,omitempty"`
}

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusResolved Status = "resolved"
)

// Outcome records how an incident was adjudicated. Each incident contributes
// at most one outcome to its reporter's trust profile.
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeVerified   Outcome = "verified"
	OutcomeFalseAlarm Outcome = "false_alarm"
)

// Incident is a citizen report together with its derived district, scores,
// and lifecycle state.
type Incident struct {
	ID          string       `json:"id"`
	ReporterID  string       `json:"reporter_id"`
	Description string       `json:"description"`
	Evidence    Evidence     `json:"evidence"`
	Location    *Coordinates `json:"location,omitempty"`
	District    string       `json:"district"`
	Conditions  Conditions   `json:"conditions"`
	Status      Status       `json:"status"`
	Forwarded   bool         `json:"forwarded"`
	CrisisID    string       `json:"crisis_id,omitempty"`
	Outcome     Outcome      `json:"outcome,omitempty"`
	Scores      ScoreSet     `json:"scores"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// CrisisStatus is the state of a crisis record.
type CrisisStatus string

const (
	CrisisOpen   CrisisStatus = "open"
	CrisisClosed CrisisStatus = "closed"
)

// CrisisRecord is the authority-facing projection of a forwarded incident.
// Closing archives it; the incident itself is never deleted.
type CrisisRecord struct {
	ID            string       `json:"id"`
	IncidentID    string       `json:"incident_id"`
	District      string       `json:"district"`
	Authority     string       `json:"authority"`
	Priority      float64      `json:"priority"`
	Action        Action       `json:"action"`
	CrisisLevel   string       `json:"crisis_level"`
	EmergencyType string       `json:"emergency_type"`
	Description   string       `json:"description"`
	Status        CrisisStatus `json:"status"`
	ForwardedBy   string       `json:"forwarded_by"`
	ClosedBy      string       `json:"closed_by,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ClosedAt      *time.Time   `json:"closed_at,omitempty"`
}

// IncidentFilter narrows incident listings. Zero values match everything.
type IncidentFilter struct {
	District string
	Status   Status
	Limit    int
}

// CrisisFilter narrows crisis listings. Zero values match everything.
type CrisisFilter struct {
	Authority string
	Status    CrisisStatus
	Limit     int
}
