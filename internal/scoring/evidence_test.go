package scoring

import (
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvidenceScorer_Score(t *testing.T) {
	s := NewEvidenceScorer(discardLogger())

	tests := []struct {
		name     string
		evidence domain.Evidence
		want     float64
	}{
		{"camera with metadata", domain.Evidence{Modality: domain.ModalityCamera, HasLocationMetadata: true}, 1.0},
		{"camera without metadata", domain.Evidence{Modality: domain.ModalityCamera}, 1.0},
		{"image with metadata", domain.Evidence{Modality: domain.ModalityImage, HasLocationMetadata: true}, 0.8},
		{"image without metadata", domain.Evidence{Modality: domain.ModalityImage}, 0.6},
		{"text", domain.Evidence{Modality: domain.ModalityText}, 0.4},
		{"text ignores metadata", domain.Evidence{Modality: domain.ModalityText, HasLocationMetadata: true}, 0.4},
		{"none", domain.Evidence{Modality: domain.ModalityNone}, 0.0},
		{"empty modality", domain.Evidence{}, 0.0},
		{"unknown modality", domain.Evidence{Modality: "video"}, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Score(tt.evidence))
		})
	}
}

func TestEvidenceQuality(t *testing.T) {
	assert.Equal(t, "STRONG", EvidenceQuality(1.0))
	assert.Equal(t, "STRONG", EvidenceQuality(0.8))
	assert.Equal(t, "MODERATE", EvidenceQuality(0.6))
	assert.Equal(t, "WEAK", EvidenceQuality(0.4))
	assert.Equal(t, "VERY_WEAK", EvidenceQuality(0.0))
}
