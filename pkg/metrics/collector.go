package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/logger"
)

// DefaultInterval is how often a Collector refreshes the gauges.
const DefaultInterval = 15 * time.Second

// Source lists and loads features. rollout.Rollout satisfies it.
type Source interface {
	Features(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (*feature.Feature, error)
}

// Collector periodically refreshes the feature gauges from a Source.
// Counters are updated as events happen and do not need it.
type Collector struct {
	source   Source
	metrics  *Metrics
	interval time.Duration
	log      *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewCollector creates a collector. Non-positive intervals use DefaultInterval.
func NewCollector(source Source, m *Metrics, interval time.Duration, log *slog.Logger) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		source:   source,
		metrics:  m,
		interval: interval,
		log:      log.With(logger.Component("metrics")),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins collecting in the background until Stop is called or ctx ends.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()

		// Collect immediately on start
		c.Collect(ctx)

		for {
			select {
			case <-ticker.C:
				c.Collect(ctx)
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector and waits for the loop to exit.
// It must only be called after Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
}

// Collect refreshes the gauges once.
func (c *Collector) Collect(ctx context.Context) {
	names, err := c.source.Features(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "failed to list features", logger.Error(err))
		return
	}
	c.metrics.FeaturesTotal.Set(float64(len(names)))

	for _, name := range names {
		f, err := c.source.Get(ctx, name)
		if err != nil {
			c.log.WarnContext(ctx, "failed to load feature", logger.Feature(name), logger.Error(err))
			continue
		}
		c.metrics.Percentage.WithLabelValues(name).Set(float64(f.Percentage))
	}
}
