package domain

import "time"

// MessageKind distinguishes zone message types.
type MessageKind string

const (
	KindBroadcast            MessageKind = "broadcast"
	KindAuthorityAlert       MessageKind = "authority_alert"
	KindAuthorityInstruction MessageKind = "authority_instruction"
)

// Audience is the set of identities a zone message is addressed to.
type Audience string

const (
	AudienceModerators Audience = "moderators"
	AudienceCitizens   Audience = "citizens"
)

// DefaultAudience returns the audience a message kind targets when the
// publisher leaves it unset.
func DefaultAudience(kind MessageKind) Audience {
	if kind == KindAuthorityInstruction {
		return AudienceModerators
	}
	return AudienceCitizens
}

// ZoneMessage is an immutable message addressed to one district and audience.
type ZoneMessage struct {
	ID             string      `json:"id"`
	Kind           MessageKind `json:"kind" validate:"required,oneof=broadcast authority_alert authority_instruction"`
	District       string      `json:"district" validate:"required"`
	Audience       Audience    `json:"audience" validate:"omitempty,oneof=moderators citizens"`
	Severity       string      `json:"severity" validate:"omitempty,oneof=info warning alert critical"`
	AuthorID       string      `json:"author_id" validate:"required"`
	AuthorName     string      `json:"author_name,omitempty"`
	Title          string      `json:"title" validate:"required,max=200"`
	Body           string      `json:"body" validate:"required,max=4000"`
	IncidentID     string      `json:"incident_id,omitempty"`
	RecipientCount int         `json:"recipient_count"`
	CreatedAt      time.Time   `json:"created_at"`
}
