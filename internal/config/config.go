// Package config defines service configuration and its defaults.
//
// Values are layered by Load: defaults from New, an optional YAML file named
// by SOLAR_CONFIG, then SOLAR_* environment variables.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultEndpoint is the Google Solar building insights lookup.
const DefaultEndpoint = "https://solar.googleapis.com/v1/buildingInsights:findClosest"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// APIEndpoint is the building insights URL queried for every coordinate.
	APIEndpoint string `koanf:"api_endpoint"`

	// HTTPTimeoutMS bounds a single outbound request. Zero means no client timeout.
	HTTPTimeoutMS int `koanf:"http_timeout_ms"`

	// FetchConcurrency is the number of outstanding requests per batch.
	// 1 dispatches strictly in input order.
	FetchConcurrency int `koanf:"fetch_concurrency"`

	// MaxBatchSize caps the number of parameters accepted per request. Zero disables the cap.
	MaxBatchSize int `koanf:"max_batch_size"`

	// OutputDir is where CSV artifacts are written.
	OutputDir string `koanf:"output_dir"`

	// FileLabel prefixes generated CSV file names.
	FileLabel string `koanf:"file_label"`

	// MetricsEnabled turns pipeline metrics on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace and MetricsSubsystem name every collector.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsPrefix is prepended to metric names after the subsystem.
	MetricsPrefix string `koanf:"metrics_prefix"`

	// MetricsLabels are constant labels attached to every collector.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// MetricsExportBuckets overrides the export latency histogram buckets (ms).
	MetricsExportBuckets []float64 `koanf:"metrics_export_buckets"`

	// MetricsRefreshMS is the system gauge refresh period.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		APIEndpoint:      DefaultEndpoint,
		HTTPTimeoutMS:    0,
		FetchConcurrency: 1,
		MaxBatchSize:     1000,
		OutputDir:        "output",
		FileLabel:        "building-insights",
		MetricsEnabled:   true,
		MetricsNamespace: "solar",
		MetricsSubsystem: "batch",
		MetricsRefreshMS: 10000,
	}
}

// HTTPTimeout returns HTTPTimeoutMS as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.APIEndpoint) == "":
		return fmt.Errorf("%w: api_endpoint must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.OutputDir) == "":
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.FileLabel) == "":
		return fmt.Errorf("%w: file_label must not be empty", ErrInvalidConfig)
	case strings.ContainsAny(c.FileLabel, `/\`):
		return fmt.Errorf("%w: file_label must not contain path separators", ErrInvalidConfig)
	case c.FetchConcurrency < 1:
		return fmt.Errorf("%w: fetch_concurrency must be at least 1", ErrInvalidConfig)
	case c.HTTPTimeoutMS < 0:
		return fmt.Errorf("%w: http_timeout_ms must not be negative", ErrInvalidConfig)
	case c.MaxBatchSize < 0:
		return fmt.Errorf("%w: max_batch_size must not be negative", ErrInvalidConfig)
	case strings.TrimSpace(c.MetricsNamespace) == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	case !sort.Float64sAreSorted(c.MetricsExportBuckets) || hasDuplicate(c.MetricsExportBuckets):
		return fmt.Errorf("%w: metrics_export_buckets must be strictly increasing", ErrInvalidConfig)
	}
	return nil
}

func hasDuplicate(sorted []float64) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return true
		}
	}
	return false
}
