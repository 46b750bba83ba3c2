package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowConfidence         AlertType = "low_confidence"
	AlertPipelineLowConfidence AlertType = "pipeline_low_confidence"
	AlertExtractionStall       AlertType = "extraction_stall"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Confidence alerts need at least MinSampleSize logs in the window.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.MinLogsPerWindow > 0 && snap.LogsTotal < a.cfg.MinLogsPerWindow {
		alerts = append(alerts, Alert{
			Type:     AlertExtractionStall,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Only %d extraction logs in last %dh (expected at least %d)",
				snap.LogsTotal, snap.LookbackHours, a.cfg.MinLogsPerWindow,
			),
			Details: map[string]any{
				"logs_total": snap.LogsTotal,
				"expected":   a.cfg.MinLogsPerWindow,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MinAvgConfidence <= 0 {
		return alerts
	}

	if snap.AvgConfidence != nil && snap.LogsTotal >= a.cfg.MinSampleSize && *snap.AvgConfidence < a.cfg.MinAvgConfidence {
		alerts = append(alerts, Alert{
			Type:     AlertLowConfidence,
			Severity: "high",
			Message: fmt.Sprintf(
				"Average extraction confidence %.3f below threshold %.3f (%d logs in last %dh)",
				*snap.AvgConfidence, a.cfg.MinAvgConfidence, snap.LogsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"avg_confidence": *snap.AvgConfidence,
				"threshold":      a.cfg.MinAvgConfidence,
				"logs_total":     snap.LogsTotal,
			},
			Timestamp: now,
		})
	}

	versions := make([]string, 0, len(snap.PipelineAvgConf))
	for v := range snap.PipelineAvgConf {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	for _, v := range versions {
		avg := snap.PipelineAvgConf[v]
		n := snap.ByPipelineVersion[v]
		if n < a.cfg.MinSampleSize || avg >= a.cfg.MinAvgConfidence {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertPipelineLowConfidence,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Pipeline %s average confidence %.3f below threshold %.3f (%d logs)",
				v, avg, a.cfg.MinAvgConfidence, n,
			),
			Details: map[string]any{
				"pipeline_version": v,
				"avg_confidence":   avg,
				"threshold":        a.cfg.MinAvgConfidence,
				"logs":             n,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
