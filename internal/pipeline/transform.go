package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
)

// VerdictTransformer implements Transformer with domain.ParseVerdict.
type VerdictTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a VerdictTransformer.
func NewTransformer(logger *slog.Logger) *VerdictTransformer {
	return &VerdictTransformer{logger: logger}
}

func (t *VerdictTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Verdict, error) {
	return domain.ParseVerdict(raw)
}

// VerdictRecorder applies one verdict to its incident.
type VerdictRecorder interface {
	RecordVerdict(ctx context.Context, v domain.Verdict) (domain.Incident, error)
}

// VerdictLoader implements BatchApplier on top of the incident lifecycle.
type VerdictLoader struct {
	recorder VerdictRecorder
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewLoader creates a VerdictLoader.
func NewLoader(recorder VerdictRecorder, logger *slog.Logger, metrics *observability.Metrics) *VerdictLoader {
	return &VerdictLoader{recorder: recorder, logger: logger, metrics: metrics}
}

// ApplyBatch records verdicts in order. Verdicts for unknown incidents are
// dropped and count as handled; any other failure stops at that verdict so
// the caller can retry from there.
func (l *VerdictLoader) ApplyBatch(ctx context.Context, verdicts []domain.Verdict) (int, error) {
	for i, v := range verdicts {
		_, err := l.recorder.RecordVerdict(ctx, v)
		switch {
		case err == nil:
			l.metrics.VerdictsApplied.Inc()
		case errors.Is(err, domain.ErrNotFound):
			l.logger.Warn("verdict for unknown incident dropped",
				"incident_id", v.IncidentID, "source", v.Source)
			l.metrics.VerdictsSkipped.WithLabelValues(SkipUnknownIncident).Inc()
		default:
			return i, fmt.Errorf("apply verdict for %s: %w", v.IncidentID, err)
		}
	}
	return len(verdicts), nil
}
