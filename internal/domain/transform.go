package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseVerdict deserializes a RawEvent's value into a Verdict. The message
// key is used as the incident ID when the payload omits it.
func ParseVerdict(raw RawEvent) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	v.IncidentID = strings.TrimSpace(v.IncidentID)
	if v.IncidentID == "" {
		v.IncidentID = strings.TrimSpace(string(raw.Key))
	}
	if v.Source == "" {
		v.Source = raw.Headers["source"]
	}
	if v.DecidedAt.IsZero() {
		v.DecidedAt = raw.Timestamp.UTC()
	}
	if err := ValidateStruct(v); err != nil {
		return Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	return v, nil
}

// NewIncidentEvent builds the downstream event for a transition of inc.
func NewIncidentEvent(typ EventType, inc Incident, actorID string) IncidentEvent {
	return IncidentEvent{
		Type:       typ,
		IncidentID: inc.ID,
		CrisisID:   inc.CrisisID,
		District:   inc.District,
		Status:     inc.Status,
		Action:     inc.Scores.Action,
		Priority:   inc.Scores.FinalPriority,
		ActorID:    actorID,
		OccurredAt: Now(),
	}
}
