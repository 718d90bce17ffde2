package config

import (
	"time"

	"github.com/okian/solarbatch/pkg/metrics"
)

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// MetricsOptions translates the metrics settings for metrics.Init.
func (c *Config) MetricsOptions() []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(c.MetricsEnabled),
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithMetricPrefix(c.MetricsPrefix),
		metrics.WithCustomLabels(c.MetricsLabels),
		metrics.WithHistogramBuckets(c.MetricsExportBuckets),
		metrics.WithRefreshInterval(c.MetricsRefresh()),
	}
}
