package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
)

// ApplyFunc runs the use case for a single result. Service.Apply satisfies it.
type ApplyFunc func(ctx context.Context, entityID int64, result model.ExtractionResult, pipelineVersion string) (*Result, error)

// Item is one entity/result pair in a batch.
type Item struct {
	EntityID int64
	Result   model.ExtractionResult
}

// Outcome is the per-item result of a batch run. Exactly one of Result and
// Err is set.
type Outcome struct {
	EntityID int64   `json:"entity_id"`
	Result   *Result `json:"result,omitempty"`
	Err      error   `json:"-"`
	Error    string  `json:"error,omitempty"`
}

// BatchReport summarises a batch run. Outcomes are in input order.
type BatchReport struct {
	RunID    string    `json:"run_id"`
	Applied  int       `json:"applied"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// BatchOptions tunes a Batch.
type BatchOptions struct {
	// MaxConcurrency bounds the number of items in flight. Default: 1.
	MaxConcurrency int
	// RatePerSec throttles item starts. Zero disables throttling.
	RatePerSec float64
	// Retry is applied to each item. Only transient storage errors raised
	// before the item's log was written are retried.
	Retry resilience.RetryConfig
}

// Batch applies many results, continuing past per-item failures.
type Batch struct {
	apply   ApplyFunc
	opts    BatchOptions
	limiter *rate.Limiter
}

// NewBatch returns a Batch that runs apply for every item.
func NewBatch(apply ApplyFunc, opts BatchOptions) *Batch {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("extraction", "batch_apply")
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = retryBeforeLog
	}
	b := &Batch{apply: apply, opts: opts}
	if opts.RatePerSec > 0 {
		burst := max(1, int(opts.RatePerSec))
		b.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return b
}

// Run applies every item. A per-item failure is captured in its Outcome and
// does not stop the batch. Every log written by the run carries the run id
// under the "batch_run_id" metadata key.
func (b *Batch) Run(ctx context.Context, items []Item, pipelineVersion string) (*BatchReport, error) {
	runID := uuid.NewString()
	report := &BatchReport{RunID: runID, Outcomes: make([]Outcome, len(items))}
	log := zap.L().With(zap.String("batch_run_id", runID))

	if len(items) == 0 {
		log.Info("no extraction items to apply")
		return report, nil
	}

	log.Info("processing extraction batch",
		zap.Int("items", len(items)),
		zap.Int("concurrency", b.opts.MaxConcurrency),
		zap.String("pipeline_version", pipelineVersion),
	)

	ctx = WithLogDetails(ctx, LogDetails{Metadata: map[string]any{"batch_run_id": runID}})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.MaxConcurrency)

	var applied, skipped, failed atomic.Int64

	for i, item := range items {
		g.Go(func() error {
			out := &report.Outcomes[i]
			out.EntityID = item.EntityID

			res, err := b.runItem(gctx, item, pipelineVersion)
			if err != nil {
				failed.Add(1)
				out.Err = err
				out.Error = err.Error()
				log.Error("extraction item failed", zap.Int64("entity_id", item.EntityID), zap.Error(err))
				return nil // keep going
			}

			out.Result = res
			if res.Applied {
				applied.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, eris.Wrap(err, "extraction: batch")
	}

	report.Applied = int(applied.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())

	log.Info("extraction batch complete",
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)

	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "extraction: batch interrupted")
	}
	return report, nil
}

func (b *Batch) runItem(ctx context.Context, item Item, pipelineVersion string) (*Result, error) {
	if model.IsNilResult(item.Result) {
		return nil, eris.Errorf("extraction: item for entity %d has no result", item.EntityID)
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "extraction: rate limit wait")
		}
	}
	return resilience.DoVal(ctx, b.opts.Retry, func(ctx context.Context) (*Result, error) {
		return b.apply(ctx, item.EntityID, item.Result, pipelineVersion)
	})
}

type rawItem struct {
	EntityID int64           `json:"entity_id"`
	Result   json.RawMessage `json:"result"`
}

// DecodeItems parses a JSON array of {"entity_id": n, "result": {...}}
// objects whose results are all of entityType.
func DecodeItems(entityType model.EntityType, data []byte) ([]Item, error) {
	var raw []rawItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "extraction: decode batch items")
	}
	items := make([]Item, 0, len(raw))
	for i, r := range raw {
		if r.EntityID <= 0 {
			return nil, eris.Errorf("extraction: item %d: invalid entity id %d", i, r.EntityID)
		}
		result, err := DecodeResult(entityType, r.Result)
		if err != nil {
			return nil, eris.Wrapf(err, "extraction: item %d", i)
		}
		items = append(items, Item{EntityID: r.EntityID, Result: result})
	}
	return items, nil
}

// retryBeforeLog retries transient failures unless the log row was already
// written. Re-running such an item would record a second log; the updater
// has already retried its own entity write.
func retryBeforeLog(err error) bool {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return false
	}
	return resilience.IsTransient(err)
}
