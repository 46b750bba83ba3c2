package extraction

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
	"github.com/sagebase/sagebase/internal/store"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func politicianItems(ids ...int64) []Item {
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, Item{EntityID: id, Result: &model.PoliticianExtractionResult{Name: "n"}})
	}
	return items
}

func TestBatch_ContinuesPastFailures(t *testing.T) {
	apply := func(_ context.Context, id int64, _ model.ExtractionResult, _ string) (*Result, error) {
		switch id {
		case 2:
			return nil, ErrNotFound
		case 3:
			return &Result{Applied: false, Reason: ReasonManuallyVerified, LogID: id}, nil
		default:
			return &Result{Applied: true, LogID: id}, nil
		}
	}

	b := NewBatch(apply, BatchOptions{MaxConcurrency: 2, Retry: fastRetry()})
	report, err := b.Run(context.Background(), politicianItems(1, 2, 3, 4), "v1")
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, report.Outcomes, 4)
	for i, id := range []int64{1, 2, 3, 4} {
		assert.Equal(t, id, report.Outcomes[i].EntityID)
	}
	assert.True(t, errors.Is(report.Outcomes[1].Err, ErrNotFound))
	assert.NotEmpty(t, report.Outcomes[1].Error)
	assert.Nil(t, report.Outcomes[1].Result)
	assert.Equal(t, ReasonManuallyVerified, report.Outcomes[2].Result.Reason)
}

func TestBatch_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int64
	apply := func(_ context.Context, id int64, _ model.ExtractionResult, _ string) (*Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &Result{Applied: true, LogID: id}, nil
	}

	b := NewBatch(apply, BatchOptions{MaxConcurrency: 3})
	report, err := b.Run(context.Background(), politicianItems(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, report.Applied)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestBatch_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	apply := func(_ context.Context, id int64, _ model.ExtractionResult, _ string) (*Result, error) {
		if calls.Add(1) < 3 {
			return nil, &store.StorageError{Op: "postgres: insert extraction_logs", Err: errors.New("write: broken pipe")}
		}
		return &Result{Applied: true, LogID: id}, nil
	}

	b := NewBatch(apply, BatchOptions{Retry: fastRetry()})
	report, err := b.Run(context.Background(), politicianItems(1), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, int64(3), calls.Load())
}

func TestBatch_DoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int64
	apply := func(context.Context, int64, model.ExtractionResult, string) (*Result, error) {
		calls.Add(1)
		return nil, ErrNotFound
	}

	b := NewBatch(apply, BatchOptions{Retry: fastRetry()})
	report, err := b.Run(context.Background(), politicianItems(1), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int64(1), calls.Load())
}

func TestBatch_DoesNotRerunItemAfterLogWritten(t *testing.T) {
	var calls atomic.Int64
	apply := func(_ context.Context, id int64, _ model.ExtractionResult, _ string) (*Result, error) {
		calls.Add(1)
		return nil, &UpdateError{
			EntityType: model.EntityTypePolitician,
			EntityID:   id,
			LogID:      40,
			Err:        &store.StorageError{Op: "sqlite: update politicians", Err: resilience.NewTransientError(errors.New("database is locked"))},
		}
	}

	b := NewBatch(apply, BatchOptions{Retry: fastRetry()})
	report, err := b.Run(context.Background(), politicianItems(1), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, int64(1), calls.Load())
	assert.Contains(t, report.Outcomes[0].Error, "log 40 kept")
}

func TestBatch_MissingResultFails(t *testing.T) {
	b := NewBatch(func(context.Context, int64, model.ExtractionResult, string) (*Result, error) {
		t.Error("apply must not be called")
		return nil, nil
	}, BatchOptions{})
	var typed *model.SpeakerExtractionResult
	report, err := b.Run(context.Background(), []Item{{EntityID: 1}, {EntityID: 2, Result: typed}}, "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
}

func TestBatch_Empty(t *testing.T) {
	b := NewBatch(nil, BatchOptions{})
	report, err := b.Run(context.Background(), nil, "v1")
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.NotEmpty(t, report.RunID)
}

func TestBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBatch(func(ctx context.Context, id int64, _ model.ExtractionResult, _ string) (*Result, error) {
		return nil, ctx.Err()
	}, BatchOptions{RatePerSec: 1})
	report, err := b.Run(ctx, politicianItems(1, 2), "v1")
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Failed)
}

func TestBatch_StampsRunIDIntoLogs(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := NewService(st, st)

	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		p := &model.Politician{Name: name}
		require.NoError(t, st.CreatePolitician(ctx, p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, st.SetVerified(ctx, model.EntityTypePolitician, ids[1], true))

	b := NewBatch(svc.Apply, BatchOptions{MaxConcurrency: 2, RatePerSec: 100, Retry: fastRetry()})
	report, err := b.Run(ctx, politicianItems(ids...), "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Skipped)

	page, err := st.SearchExtractionLogs(ctx, model.ExtractionLogFilter{EntityType: model.EntityTypePolitician})
	require.NoError(t, err)
	require.Len(t, page.Logs, 3)
	for _, l := range page.Logs {
		assert.Equal(t, report.RunID, l.Metadata["batch_run_id"])
	}
}

func TestDecodeItems(t *testing.T) {
	data := []byte(`[
		{"entity_id": 1, "result": {"name": "山田", "district": "東京1区"}},
		{"entity_id": 2, "result": {"name": "佐藤"}}
	]`)
	items, err := DecodeItems(model.EntityTypePolitician, data)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].EntityID)
	r := items[0].Result.(*model.PoliticianExtractionResult)
	assert.Equal(t, "東京1区", *r.District)

	_, err = DecodeItems(model.EntityTypePolitician, []byte(`[{"entity_id": 0, "result": {}}]`))
	assert.Error(t, err)

	_, err = DecodeItems(model.EntityTypePolitician, []byte(`[{"entity_id": 1}]`))
	assert.Error(t, err)

	_, err = DecodeItems(model.EntityTypePolitician, []byte(`{}`))
	assert.Error(t, err)
}
