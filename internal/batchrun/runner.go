// Package batchrun runs one building insights batch from a coordinates
// file and reports the outcome on the terminal.
package batchrun

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/okian/solarbatch/internal/adapters/csvexport"
	app "github.com/okian/solarbatch/internal/app"
	"github.com/okian/solarbatch/internal/config"
	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
)

// Stats summarizes a run.
type Stats struct {
	Items     int
	Succeeded int
	Failed    int
	Path      string
	Duration  time.Duration
}

// Processor runs a named batch. *app.Service implements it.
type Processor interface {
	ProcessBatchNamed(ctx context.Context, apiKey string, coords []model.CoordinateRequest, name string) ([]*flatten.Row, *csvexport.Artifact, error)
}

// Run loads cfg.File, processes it and writes a report to out.
func Run(ctx context.Context, cfg *Config, out io.Writer) (*Stats, error) {
	if cfg.Service == nil {
		cfg.Service = config.New()
	}
	return RunWith(ctx, app.NewFromConfig(cfg.Service, logger.Get()), cfg, out)
}

// RunWith is Run against a given processor.
func RunWith(ctx context.Context, p Processor, cfg *Config, out io.Writer) (*Stats, error) {
	req, err := LoadCoordinates(cfg.File)
	if err != nil {
		return nil, err
	}
	key := ResolveKey(cfg.Key, req.Key)
	if key == "" {
		return nil, fmt.Errorf("%w: pass -key, set it in %s or export %s", ErrMissingKey, cfg.File, EnvAPIKey)
	}

	logger.Get().Info(ctx, "starting building insights batch",
		logger.String("file", cfg.File),
		logger.Int("items", len(req.Parameters)),
		logger.String("out", cfg.Out),
	)

	start := time.Now()
	rows, artifact, err := p.ProcessBatchNamed(ctx, key, req.Parameters, cfg.Out)
	stats := summarize(rows)
	stats.Duration = time.Since(start)
	if artifact != nil {
		stats.Path = artifact.Path
	}

	report(out, req.Parameters, rows, stats, cfg.Verbose)
	return stats, err
}

// ResolveKey picks the flag value, then the file value, then EnvAPIKey.
func ResolveKey(flagKey, fileKey string) string {
	for _, k := range []string{flagKey, fileKey, os.Getenv(EnvAPIKey)} {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return ""
}

func summarize(rows []*flatten.Row) *Stats {
	s := &Stats{Items: len(rows)}
	for _, r := range rows {
		if isSuccess(r) {
			s.Succeeded++
			continue
		}
		s.Failed++
	}
	return s
}
