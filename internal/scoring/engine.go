package scoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/couchcryptid/incident-triage-service/internal/trust"
	"golang.org/x/sync/errgroup"
)

// NeutralTrust is used when the reporter's profile cannot be read.
const NeutralTrust = 0.5

// Signal names reported in ScoreSet.Degraded.
const (
	SignalTrust   = "trust"
	SignalContext = "context"
)

// TrustSource reads reporter trust profiles.
type TrustSource interface {
	GetOrCreate(ctx context.Context, reporterID string) (domain.TrustProfile, error)
}

// ConditionsSource supplies the environmental baseline for a district.
type ConditionsSource interface {
	Conditions(ctx context.Context, district string) (domain.Conditions, error)
}

// Engine composes the four signals into a ScoreSet.
type Engine struct {
	evidence   *EvidenceScorer
	severity   *SeverityClassifier
	context    *ContextModel
	trust      TrustSource
	conditions ConditionsSource
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewEngine creates an Engine. timeout bounds each dependency call; a
// non-positive timeout disables the bound.
func NewEngine(
	trustSource TrustSource,
	conditions ConditionsSource,
	contextModel *ContextModel,
	timeout time.Duration,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		evidence:   NewEvidenceScorer(logger),
		severity:   NewSeverityClassifier(),
		context:    contextModel,
		trust:      trustSource,
		conditions: conditions,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// Classify exposes the severity classifier for previews.
func (e *Engine) Classify(description string) Classification {
	return e.severity.Classify(description)
}

// Compute scores inc. Trust and context failures degrade to neutral
// defaults; only cancellation of ctx returns an error. The time-of-day
// factor is read from inc.CreatedAt so identical inputs give identical
// output.
func (e *Engine) Compute(ctx context.Context, inc domain.Incident) (domain.ScoreSet, error) {
	start := time.Now()

	var (
		evidence     float64
		severity     Classification
		assessment   Assessment
		trustScore   float64
		trustDegrade bool
		ctxDegrade   bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		evidence = e.evidence.Score(inc.Evidence)
		return nil
	})

	g.Go(func() error {
		severity = e.severity.Classify(inc.Description)
		return nil
	})

	g.Go(func() error {
		dctx, cancel := e.bound(gctx)
		defer cancel()

		p, err := e.trust.GetOrCreate(dctx, inc.ReporterID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("trust lookup failed, using neutral trust",
				"reporter_id", inc.ReporterID, "error", err)
			trustScore, trustDegrade = NeutralTrust, true
			return nil
		}
		trustScore = p.TrustScore
		return nil
	})

	g.Go(func() error {
		dctx, cancel := e.bound(gctx)
		defer cancel()

		base, err := e.conditions.Conditions(dctx, inc.District)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("context conditions unavailable, using neutral context",
				"district", inc.District, "error", err)
			assessment, ctxDegrade = Assessment{Multiplier: NeutralContext}, true
			return nil
		}
		assessment = e.context.Assess(mergeConditions(base, inc.Conditions), inc.CreatedAt)
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.ScoreSet{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.ScoreSet{}, err
	}

	scores := domain.ScoreSet{
		Severity:    severity.Score,
		Trust:       trustScore,
		Evidence:    evidence,
		ContextRisk: assessment.Multiplier,

		EmergencyType:   severity.EmergencyType,
		CrisisLevel:     severity.CrisisLevel,
		Keywords:        severity.Keywords,
		ContextFactors:  assessment.Factors,
		EvidenceQuality: EvidenceQuality(evidence),
		TrustLevel:      trust.Level(trustScore),
	}
	scores.FinalPriority = scores.Severity * scores.Trust * scores.Evidence * scores.ContextRisk
	scores.Action = domain.ClassifyAction(scores.FinalPriority)

	if trustDegrade {
		scores.Degraded = append(scores.Degraded, SignalTrust)
		e.metrics.DegradedSignals.WithLabelValues(SignalTrust).Inc()
	}
	if ctxDegrade {
		scores.Degraded = append(scores.Degraded, SignalContext)
		e.metrics.DegradedSignals.WithLabelValues(SignalContext).Inc()
	}

	e.metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	return scores, nil
}

func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// mergeConditions overlays citizen-supplied density and weather tiers on the
// district baseline. Disaster declarations come only from the baseline.
func mergeConditions(base, override domain.Conditions) domain.Conditions {
	out := base
	if override.PopulationDensity != "" {
		out.PopulationDensity = override.PopulationDensity
	}
	if override.Weather != "" {
		out.Weather = override.Weather
	}
	return out
}
