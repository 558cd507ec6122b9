package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/citysieve/internal/observability"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize search requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]RawMessage, error)
}

// Transformer turns a search request message into a search run message.
type Transformer interface {
	Transform(ctx context.Context, raw RawMessage) (OutputMessage, error)
}

// BatchLoader writes search run messages to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, msgs []OutputMessage) error
}

// Pipeline is the search worker: it consumes search requests in batches,
// runs them, and publishes the run events.
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

// New creates a Pipeline with the given stages and observability. Up to
// concurrency requests from one batch are searched at the same time.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// CheckReadiness returns nil once the worker has completed at least one
// batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("search worker has not processed any requests yet")
	}
	return nil
}

// Run consumes and processes batches until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "concurrency", p.concurrency)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one consume-search-publish cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err, "fetched", len(rawBatch))
		if len(rawBatch) == 0 {
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		// Fetched messages are not redelivered, so process them anyway.
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// transformAndLoad runs the requests in the batch, up to concurrency at a time,
// publishes the successes in input order, then commits every offset. Failed
// requests are skipped. A failed load is retried with backoff and commits
// nothing until it succeeds. Returns the number of published messages and
// false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []RawMessage, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	outs := make([]*OutputMessage, len(rawBatch))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, raw := range rawBatch {
		g.Go(func() error {
			out, err := p.transformer.Transform(ctx, raw)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("search request failed, skipping message",
						"error", err,
						"topic", raw.Topic,
						"partition", raw.Partition,
						"offset", raw.Offset,
					)
					p.metrics.TransformErrors.Inc()
				}
				return nil
			}
			outs[i] = &out
			return nil
		})
	}
	_ = g.Wait()

	// Requests interrupted by shutdown stay uncommitted and are redelivered.
	if ctx.Err() != nil {
		return 0, false
	}

	outBatch := make([]OutputMessage, 0, len(rawBatch))
	for _, out := range outs {
		if out != nil {
			outBatch = append(outBatch, *out)
		}
	}

	if len(outBatch) > 0 {
		// The reader never rewinds, so the same batch is retried until it
		// is published or the pipeline stops.
		for {
			err := p.loader.LoadBatch(ctx, outBatch)
			if err == nil {
				break
			}
			p.logger.Error("load batch failed, retrying", "error", err, "batch_size", len(outBatch))
			if !p.backoffOrStop(ctx, backoff, maxBackoff) {
				return 0, false
			}
		}
		*backoff = 200 * time.Millisecond
		p.metrics.MessagesProduced.Add(float64(len(outBatch)))
	}

	// Offsets are committed in input order so the group offset never moves back.
	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
