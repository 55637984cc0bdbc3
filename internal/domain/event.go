package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the outcomes topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Verdict is an externally sourced verification outcome for an incident,
// such as a community validation round.
type Verdict struct {
	IncidentID string    `json:"incident_id" validate:"required"`
	Verified   bool      `json:"verified"`
	Source     string    `json:"source,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// EventType names a lifecycle transition published downstream.
type EventType string

const (
	EventSubmitted    EventType = "incident.submitted"
	EventForwarded    EventType = "incident.forwarded"
	EventCrisisClosed EventType = "crisis.closed"
	EventResolved     EventType = "incident.resolved"
	EventDismissed    EventType = "incident.dismissed"
)

// IncidentEvent is the message published for every lifecycle transition.
type IncidentEvent struct {
	Type       EventType `json:"type"`
	IncidentID string    `json:"incident_id"`
	CrisisID   string    `json:"crisis_id,omitempty"`
	District   string    `json:"district"`
	Authority  string    `json:"authority,omitempty"`
	Status     Status    `json:"status"`
	Action     Action    `json:"action"`
	Priority   float64   `json:"priority"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
