package domain

// Action is the dispatch decision derived from the final priority.
type Action string

const (
	ActionDispatch Action = "DISPATCH"
	ActionValidate Action = "VALIDATE"
	ActionHold     Action = "HOLD"
)

// Action thresholds applied to the unrounded final priority.
const (
	DispatchThreshold = 0.7
	ValidateThreshold = 0.4
)

// ClassifyAction maps a final priority to an action.
func ClassifyAction(priority float64) Action {
	switch {
	case priority >= DispatchThreshold:
		return ActionDispatch
	case priority >= ValidateThreshold:
		return ActionValidate
	default:
		return ActionHold
	}
}

// ScoreSet is the immutable scoring outcome of a single report.
type ScoreSet struct {
	Severity      float64 `json:"severity"`
	Trust         float64 `json:"trust"`
	Evidence      float64 `json:"evidence"`
	ContextRisk   float64 `json:"context_risk"`
	FinalPriority float64 `json:"final_priority"`
	Action        Action  `json:"action"`

	EmergencyType   string   `json:"emergency_type"`
	CrisisLevel     string   `json:"crisis_level"`
	Keywords        []string `json:"keywords,omitempty"`
	ContextFactors  []string `json:"context_factors,omitempty"`
	EvidenceQuality string   `json:"evidence_quality"`
	TrustLevel      string   `json:"trust_level"`

	// Degraded names the signals that fell back to a neutral value because
	// their dependency failed or timed out.
	Degraded []string `json:"degraded,omitempty"`
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
