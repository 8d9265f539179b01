package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	"github.com/couchcryptid/firms-detection-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into an output event.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline consumes query requests in batches, builds a detection result for
// each one and publishes the results. Offsets are committed only after the
// result for a message has been loaded, or after its query has failed
// permanently.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency sets how many queries of one batch are built at the same
// time. Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.concurrency = max(n, 1)
	}
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness reports an error until the first read from the source topic
// has succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not reached the source topic yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "concurrency", p.concurrency)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for ctx.Err() == nil {
		if !p.processBatch(ctx, &backoff) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// processBatch runs one extract-build-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	queries, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	p.ready.Store(true)
	if len(queries) == 0 {
		return true
	}

	p.metrics.QueriesConsumed.Add(float64(len(queries)))
	p.metrics.BatchSize.Observe(float64(len(queries)))
	*backoff = initialBackoff

	built := p.buildAll(ctx, queries)
	if ctx.Err() != nil {
		return false
	}

	var (
		results   []domain.OutputEvent
		succeeded []domain.RawEvent
	)
	for i, b := range built {
		if b.err != nil {
			p.skip(ctx, queries[i], b.err)
			continue
		}
		results = append(results, b.out)
		succeeded = append(succeeded, queries[i])
	}
	if len(results) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, results); err != nil {
		p.logger.Error("load batch failed", "error", err, "batch_size", len(results))
		return p.backoffOrStop(ctx, backoff)
	}
	p.metrics.ResultsProduced.Add(float64(len(results)))
	for _, raw := range succeeded {
		p.commitOffset(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

type buildOutcome struct {
	out domain.OutputEvent
	err error
}

// buildAll transforms every query of the batch, at most p.concurrency at a
// time. Outcomes are returned in batch order.
func (p *Pipeline) buildAll(ctx context.Context, queries []domain.RawEvent) []buildOutcome {
	outcomes := make([]buildOutcome, len(queries))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, raw := range queries {
		g.Go(func() error {
			out, err := p.transformer.Transform(ctx, raw)
			outcomes[i] = buildOutcome{out: out, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// skip logs a failed query and commits past it so a bad request cannot block
// its partition.
func (p *Pipeline) skip(ctx context.Context, raw domain.RawEvent, err error) {
	p.logger.Warn("query failed, skipping message",
		"error", err,
		"kind", domain.ErrorKind(err),
		"topic", raw.Topic,
		"partition", raw.Partition,
		"offset", raw.Offset,
	)
	p.metrics.TransformErrors.Inc()
	p.commitOffset(ctx, raw)
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sharedretry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = sharedretry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
