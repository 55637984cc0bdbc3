// Package pipeline consumes verification verdicts from the outcomes topic
// and applies them to incidents in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into a verdict.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Verdict, error)
}

// BatchApplier applies verdicts in order. It returns how many leading
// verdicts were handled before the first failure.
type BatchApplier interface {
	ApplyBatch(ctx context.Context, verdicts []domain.Verdict) (int, error)
}

// Reasons reported on the skipped-verdicts metric.
const (
	SkipDuplicate       = "duplicate"
	SkipUnknownIncident = "unknown_incident"
)

const (
	initialRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// Pipeline runs the consume-apply-commit loop. A batch that fails to apply
// is held and retried before anything new is read, because the consumer
// group does not redeliver uncommitted messages within a session.
type Pipeline struct {
	source    BatchExtractor
	parser    Transformer
	applier   BatchApplier
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics

	inflight *batch
	ready    atomic.Bool
	running  atomic.Bool
}

// New creates a Pipeline.
func New(source BatchExtractor, parser Transformer, applier BatchApplier, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		source:    source,
		parser:    parser,
		applier:   applier,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Ready reports whether the pipeline has fully applied at least one batch.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil while the consumer loop is running. An idle
// outcomes topic is normal, so readiness does not wait for a first message.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("verdict pipeline is not running")
	}
	return nil
}

// Run consumes verdicts until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	retry := newRetryDelay(initialRetryDelay, maxRetryDelay)
	for ctx.Err() == nil {
		if err := p.step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("verdict batch failed", "error", err, "retry_in", retry.next)
			if !retry.wait(ctx) {
				break
			}
			continue
		}
		retry.reset()
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// step applies the held batch, or reads and decodes a new one first.
func (p *Pipeline) step(ctx context.Context) error {
	if p.inflight == nil {
		raws, err := p.source.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			return fmt.Errorf("extract batch: %w", err)
		}
		if len(raws) == 0 {
			return nil
		}
		p.metrics.MessagesConsumed.Add(float64(len(raws)))
		p.metrics.BatchSize.Observe(float64(len(raws)))
		p.inflight = p.decode(ctx, raws)
	}

	b := p.inflight
	err := p.apply(ctx, b)
	p.commitApplied(ctx, b)
	if err != nil {
		return err
	}

	p.inflight = nil
	p.metrics.BatchProcessingDuration.Observe(time.Since(b.started).Seconds())
	p.ready.Store(true)
	return nil
}

// batch is one extracted set of messages. Every message points at the
// verdict it carries; repeats for the same incident share the first one,
// since an incident accepts a single outcome.
type batch struct {
	entries  []entry
	verdicts []domain.Verdict
	applied  int
	started  time.Time
}

type entry struct {
	raw     domain.RawEvent
	verdict int // index into verdicts, or -1 when unparseable
}

func (p *Pipeline) decode(ctx context.Context, raws []domain.RawEvent) *batch {
	b := &batch{entries: make([]entry, 0, len(raws)), started: time.Now()}
	seen := make(map[string]int, len(raws))

	for _, raw := range raws {
		v, err := p.parser.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("unparseable verdict, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			b.entries = append(b.entries, entry{raw: raw, verdict: -1})
			continue
		}
		if idx, dup := seen[v.IncidentID]; dup {
			p.logger.Debug("repeat verdict in batch ignored",
				"incident_id", v.IncidentID, "offset", raw.Offset)
			p.metrics.VerdictsSkipped.WithLabelValues(SkipDuplicate).Inc()
			b.entries = append(b.entries, entry{raw: raw, verdict: idx})
			continue
		}
		seen[v.IncidentID] = len(b.verdicts)
		b.entries = append(b.entries, entry{raw: raw, verdict: len(b.verdicts)})
		b.verdicts = append(b.verdicts, v)
	}
	return b
}

func (p *Pipeline) apply(ctx context.Context, b *batch) error {
	if b.applied == len(b.verdicts) {
		return nil
	}
	n, err := p.applier.ApplyBatch(ctx, b.verdicts[b.applied:])
	b.applied += n
	if err != nil {
		return fmt.Errorf("apply verdicts (%d of %d held): %w", len(b.verdicts)-b.applied, len(b.verdicts), err)
	}
	return nil
}

// commitApplied commits messages in arrival order up to the first one whose
// verdict is still unapplied. Committing past it would skip that verdict
// after a restart.
func (p *Pipeline) commitApplied(ctx context.Context, b *batch) {
	done := 0
	for _, e := range b.entries {
		if e.verdict >= b.applied {
			break
		}
		p.commit(ctx, e.raw)
		done++
	}
	b.entries = b.entries[done:]
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// retryDelay doubles from floor to ceiling across consecutive failures.
type retryDelay struct {
	floor, ceiling, next time.Duration
}

func newRetryDelay(floor, ceiling time.Duration) *retryDelay {
	return &retryDelay{floor: floor, ceiling: ceiling, next: floor}
}

func (r *retryDelay) reset() {
	r.next = r.floor
}

// wait sleeps for the current delay and doubles it. It returns false if ctx
// ends first.
func (r *retryDelay) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.next)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.next = min(r.next*2, r.ceiling)
	return true
}
