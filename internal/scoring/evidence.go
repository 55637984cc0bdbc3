package scoring

import (
	"log/slog"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// Evidence strength by modality.
const (
	EvidenceCamera   = 1.0
	EvidenceImageGeo = 0.8
	EvidenceImage    = 0.6
	EvidenceText     = 0.4
	EvidenceNone     = 0.0
)

// EvidenceScorer maps an evidence descriptor to a strength in [0,1].
type EvidenceScorer struct {
	logger *slog.Logger
}

// NewEvidenceScorer creates an EvidenceScorer.
func NewEvidenceScorer(logger *slog.Logger) *EvidenceScorer {
	return &EvidenceScorer{logger: logger}
}

// Score returns the evidence strength. Camera captures carry their own
// geolocation, so the metadata flag only distinguishes images. Unknown
// modalities fall back to the text tier.
func (s *EvidenceScorer) Score(e domain.Evidence) float64 {
	switch e.Modality {
	case domain.ModalityCamera:
		return EvidenceCamera
	case domain.ModalityImage:
		if e.HasLocationMetadata {
			return EvidenceImageGeo
		}
		return EvidenceImage
	case domain.ModalityText:
		return EvidenceText
	case domain.ModalityNone, "":
		return EvidenceNone
	default:
		s.logger.Warn("unknown evidence modality, scoring as text", "modality", string(e.Modality))
		return EvidenceText
	}
}

// EvidenceQuality labels an evidence score for display.
func EvidenceQuality(score float64) string {
	switch {
	case score >= 0.8:
		return "STRONG"
	case score >= 0.6:
		return "MODERATE"
	case score >= 0.4:
		return "WEAK"
	default:
		return "VERY_WEAK"
	}
}
