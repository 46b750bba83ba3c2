// Package monitoring watches the extraction log for quality regressions and
// posts alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sagebase/sagebase/internal/model"
)

// MetricsSnapshot holds a point-in-time view of extraction quality.
type MetricsSnapshot struct {
	LogsTotal         int                `json:"logs_total"`
	ByEntityType      map[string]int     `json:"by_entity_type"`
	ByPipelineVersion map[string]int     `json:"by_pipeline_version"`
	AvgConfidence     *float64           `json:"avg_confidence,omitempty"`
	PipelineAvgConf   map[string]float64 `json:"pipeline_avg_confidence"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StatsSource is the part of the log store the collector reads.
type StatsSource interface {
	ExtractionStatistics(ctx context.Context, filter model.ExtractionLogFilter) (*model.ExtractionStatistics, error)
}

// Collector gathers metrics from the extraction log.
type Collector struct {
	stats StatsSource
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(stats StatsSource) *Collector {
	return &Collector{stats: stats, now: time.Now}
}

// Collect summarises logs created within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	stats, err := c.stats.ExtractionStatistics(ctx, model.ExtractionLogFilter{DateFrom: &cutoff})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: extraction statistics")
	}

	return &MetricsSnapshot{
		LogsTotal:         stats.TotalCount,
		ByEntityType:      stats.ByEntityType,
		ByPipelineVersion: stats.ByPipelineVersion,
		AvgConfidence:     stats.AverageConfidence,
		PipelineAvgConf:   stats.ConfidenceByPipeline,
		LookbackHours:     lookbackHours,
		CollectedAt:       now,
	}, nil
}
