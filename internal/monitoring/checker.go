package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Notifier delivers alerts and reports how many went out. *Alerter posts
// them to the configured webhook.
type Notifier interface {
	SendAlerts(ctx context.Context, alerts []Alert) int
}

// Report is the outcome of one quality check.
type Report struct {
	Snapshot *MetricsSnapshot
	// Firing holds every alert whose threshold is breached.
	Firing []Alert
	// Raised holds the alerts in Firing that were not firing at the previous
	// check. Only these are sent.
	Raised []Alert
	Sent   int
}

// Checker evaluates extraction quality over a sliding window. An alert is
// notified when it starts firing and again only after it has cleared.
type Checker struct {
	collector *Collector
	rules     *Alerter
	notifier  Notifier
	lookback  int
	interval  time.Duration

	mu     sync.Mutex
	firing map[string]bool
}

// NewChecker builds a Checker reading statistics from src. Alerts go to the
// webhook of cfg; use WithNotifier to deliver them elsewhere.
func NewChecker(src StatsSource, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	rules := NewAlerter(cfg)
	return &Checker{
		collector: NewCollector(src),
		rules:     rules,
		notifier:  rules,
		lookback:  cfg.LookbackWindowHours,
		interval:  interval,
		firing:    make(map[string]bool),
	}
}

// WithNotifier replaces the alert destination.
func (c *Checker) WithNotifier(n Notifier) *Checker {
	c.notifier = n
	return c
}

// Check runs one evaluation. A non-positive lookbackHours uses the configured
// window.
func (c *Checker) Check(ctx context.Context, lookbackHours int) (*Report, error) {
	if lookbackHours <= 0 {
		lookbackHours = c.lookback
	}
	snap, err := c.collector.Collect(ctx, lookbackHours)
	if err != nil {
		return nil, err
	}

	rep := &Report{Snapshot: snap, Firing: c.rules.Evaluate(snap)}
	rep.Raised = c.transition(rep.Firing)
	if len(rep.Raised) > 0 {
		rep.Sent = c.notifier.SendAlerts(ctx, rep.Raised)
	}
	return rep, nil
}

// transition records the firing set and returns the alerts that were not
// firing before.
func (c *Checker) transition(firing []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]bool, len(firing))
	var raised []Alert
	for _, a := range firing {
		k := alertKey(a)
		next[k] = true
		if !c.firing[k] {
			raised = append(raised, a)
		}
	}
	c.firing = next
	return raised
}

func alertKey(a Alert) string {
	if v, ok := a.Details["pipeline_version"].(string); ok {
		return string(a.Type) + "/" + v
	}
	return string(a.Type)
}

// Run checks once immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring"))
	log.Info("extraction quality checks started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		rep, err := c.Check(ctx, 0)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				log.Error("quality check failed", zap.Error(err))
			}
		case len(rep.Raised) > 0:
			log.Warn("extraction quality alerts raised",
				zap.Int("raised", len(rep.Raised)),
				zap.Int("firing", len(rep.Firing)),
				zap.Int("sent", rep.Sent),
			)
		default:
			log.Debug("quality check passed", zap.Int("firing", len(rep.Firing)))
		}

		select {
		case <-ctx.Done():
			log.Info("extraction quality checks stopped")
			return
		case <-ticker.C:
		}
	}
}
