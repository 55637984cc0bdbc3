package domain

import "time"

// Trend describes the direction of a reporter's verification ratio.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// TrustProfile is the per-reporter reputation record. It is created lazily on
// first lookup and mutated only by adjudicated outcomes.
type TrustProfile struct {
	ReporterID        string    `json:"reporter_id"`
	TotalReports      int       `json:"total_reports"`
	VerifiedReports   int       `json:"verified_reports"`
	FalseReports      int       `json:"false_reports"`
	VerificationRatio float64   `json:"verification_ratio"`
	TrustScore        float64   `json:"trust_score"`
	Trend             Trend     `json:"trend"`
	RatioHistory      []float64 `json:"ratio_history,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}
