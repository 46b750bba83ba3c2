package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagebase/sagebase/internal/config"
	"github.com/sagebase/sagebase/internal/model"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]Alert
}

func (r *recordingNotifier) SendAlerts(_ context.Context, alerts []Alert) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, alerts)
	return len(alerts)
}

func (r *recordingNotifier) sent() [][]Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]Alert(nil), r.calls...)
}

func qualityConfig() config.MonitoringConfig {
	return config.MonitoringConfig{LookbackWindowHours: 12, MinAvgConfidence: 0.5, MinSampleSize: 10}
}

func lowConfidenceStats(avg float64) *model.ExtractionStatistics {
	return &model.ExtractionStatistics{
		TotalCount:           15,
		ByPipelineVersion:    map[string]int{"v1": 15},
		AverageConfidence:    conf(avg),
		ConfidenceByPipeline: map[string]float64{"v1": avg},
	}
}

func TestChecker_Check_ReportsFiringAlerts(t *testing.T) {
	src := &mockStats{stats: lowConfidenceStats(0.3)}
	n := &recordingNotifier{}
	checker := NewChecker(src, qualityConfig()).WithNotifier(n)

	rep, err := checker.Check(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, rep.Snapshot.LookbackHours)
	require.Len(t, rep.Firing, 2)
	assert.Equal(t, AlertLowConfidence, rep.Firing[0].Type)
	assert.Equal(t, AlertPipelineLowConfidence, rep.Firing[1].Type)
	assert.Equal(t, rep.Firing, rep.Raised)
	assert.Equal(t, 2, rep.Sent)
	assert.Len(t, n.sent(), 1)
}

func TestChecker_Check_LookbackOverride(t *testing.T) {
	src := &mockStats{stats: &model.ExtractionStatistics{}}
	checker := NewChecker(src, qualityConfig())

	rep, err := checker.Check(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Snapshot.LookbackHours)
	require.NotNil(t, src.filter.DateFrom)
}

func TestChecker_Check_NotifiesOnlyNewAlerts(t *testing.T) {
	src := &mockStats{stats: lowConfidenceStats(0.3)}
	n := &recordingNotifier{}
	checker := NewChecker(src, qualityConfig()).WithNotifier(n)
	ctx := context.Background()

	_, err := checker.Check(ctx, 0)
	require.NoError(t, err)

	// Still below threshold: nothing new to send.
	rep, err := checker.Check(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rep.Firing, 2)
	assert.Empty(t, rep.Raised)
	assert.Zero(t, rep.Sent)
	assert.Len(t, n.sent(), 1)

	// Recovered, then degraded again: the alerts are sent a second time.
	src.stats = lowConfidenceStats(0.9)
	rep, err = checker.Check(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, rep.Firing)

	src.stats = lowConfidenceStats(0.2)
	rep, err = checker.Check(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rep.Raised, 2)
	assert.Len(t, n.sent(), 2)
}

func TestChecker_Check_PipelineAlertsTrackedPerVersion(t *testing.T) {
	src := &mockStats{stats: &model.ExtractionStatistics{
		TotalCount:           30,
		ByPipelineVersion:    map[string]int{"v1": 15, "v2": 15},
		AverageConfidence:    conf(0.7),
		ConfidenceByPipeline: map[string]float64{"v1": 0.4, "v2": 0.9},
	}}
	n := &recordingNotifier{}
	checker := NewChecker(src, qualityConfig()).WithNotifier(n)
	ctx := context.Background()

	rep, err := checker.Check(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rep.Raised, 1)
	assert.Equal(t, "v1", rep.Raised[0].Details["pipeline_version"])

	src.stats.ConfidenceByPipeline = map[string]float64{"v1": 0.4, "v2": 0.3}
	rep, err = checker.Check(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rep.Firing, 2)
	require.Len(t, rep.Raised, 1)
	assert.Equal(t, "v2", rep.Raised[0].Details["pipeline_version"])
}

func TestChecker_Check_SourceError(t *testing.T) {
	src := &mockStats{err: errors.New("database is locked")}
	n := &recordingNotifier{}
	checker := NewChecker(src, qualityConfig()).WithNotifier(n)

	rep, err := checker.Check(context.Background(), 0)
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Empty(t, n.sent())
}

func TestChecker_RunChecksImmediately(t *testing.T) {
	src := &mockStats{stats: lowConfidenceStats(0.3)}
	n := &recordingNotifier{}
	cfg := qualityConfig()
	cfg.CheckIntervalSecs = 3600
	checker := NewChecker(src, cfg).WithNotifier(n)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(n.sent()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(&mockStats{stats: &model.ExtractionStatistics{}}, config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
