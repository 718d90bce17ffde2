// Package service runs building insights batches: one lookup per
// coordinate, one flat row per lookup, one CSV artifact per batch.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/solarbatch/internal/adapters/csvexport"
	"github.com/okian/solarbatch/internal/adapters/solarapi"
	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/jsonvalue"
	"github.com/okian/solarbatch/internal/domain/model"
	"github.com/okian/solarbatch/pkg/logger"
	"github.com/okian/solarbatch/pkg/metrics"
)

// Columns of an error row.
const (
	ErrorLatitudeKey  = "latitude"
	ErrorLongitudeKey = "longitude"
	ErrorKey          = "error"
)

// DefaultOutputDir is used when no exporter is supplied.
const DefaultOutputDir = "output"

// Fetcher looks up the building insights document closest to a coordinate.
type Fetcher interface {
	FindClosest(ctx context.Context, apiKey string, coord model.CoordinateRequest) (jsonvalue.Value, error)
}

// Exporter persists the rows of a finished batch.
type Exporter interface {
	Export(ctx context.Context, rows []*flatten.Row, name string) (*csvexport.Artifact, error)
}

// ItemResult is the outcome of one lookup. Exactly one of Insight and Err is meaningful.
type ItemResult struct {
	Index   int
	Request model.CoordinateRequest
	Insight jsonvalue.Value
	Err     error
}

// OK reports whether the lookup succeeded.
func (r ItemResult) OK() bool { return r.Err == nil }

// Row projects the result into its flat row. Successes carry the request
// echo columns and the flattened document; failures carry only the
// coordinate and the error message.
func (r ItemResult) Row() *flatten.Row {
	if r.OK() {
		return flatten.Flatten(r.Insight, flatten.Seed(r.Request.Latitude, r.Request.Longitude), "")
	}
	return ErrorRow(r.Request, r.Err)
}

// ErrorRow builds the row recorded for a failed lookup.
func ErrorRow(coord model.CoordinateRequest, err error) *flatten.Row {
	row := flatten.NewRow()
	row.Set(ErrorLatitudeKey, jsonvalue.Float(coord.Latitude))
	row.Set(ErrorLongitudeKey, jsonvalue.Float(coord.Longitude))
	row.Set(ErrorKey, jsonvalue.String(err.Error()))
	return row
}

// Service implements the batch dependencies of the HTTP API and the CLI.
type Service struct {
	mu sync.RWMutex

	fetcher     Fetcher
	exporter    Exporter
	concurrency int

	// Stats
	batches    int64
	items      int64
	failures   int64
	lastBatch  string
	lastExport string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetcher sets the building insights source.
func WithFetcher(f Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithExporter sets the batch sink.
func WithExporter(e Exporter) Option {
	return func(s *Service) {
		if e != nil {
			s.exporter = e
		}
	}
}

// WithConcurrency sets how many lookups of one batch may be in flight.
// Values below 2 keep lookups sequential.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Without options it queries the public Solar
// endpoint and writes into DefaultOutputDir.
func New(opts ...Option) *Service {
	s := &Service{concurrency: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.fetcher == nil {
		s.fetcher = solarapi.New()
	}
	if s.exporter == nil {
		s.exporter = csvexport.New(DefaultOutputDir)
	}
	return s
}

// ProcessBatch fetches, flattens and exports coords under a generated file name.
func (s *Service) ProcessBatch(ctx context.Context, apiKey string, coords []model.CoordinateRequest) ([]*flatten.Row, *csvexport.Artifact, error) {
	return s.ProcessBatchNamed(ctx, apiKey, coords, "")
}

// ProcessBatchNamed is ProcessBatch with a caller chosen file name. The batch
// id is taken from ctx (see model.WithBatchID) or generated.
//
// The returned rows mirror coords index for index. Lookup failures never
// abort the batch; they become error rows. An export failure is returned
// together with the rows.
func (s *Service) ProcessBatchNamed(ctx context.Context, apiKey string, coords []model.CoordinateRequest, name string) ([]*flatten.Row, *csvexport.Artifact, error) {
	id, ok := model.BatchIDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = model.WithBatchID(ctx, id)
	}
	log := s.logger.With(logger.String("batch_id", id))
	start := time.Now()

	log.Info(ctx, "processing batch", logger.Int("items", len(coords)))

	results := s.Fetch(ctx, apiKey, coords)
	rows := make([]*flatten.Row, len(results))
	failed := 0
	for i, r := range results {
		rows[i] = r.Row()
		if r.OK() {
			metrics.RecordItem(metrics.OutcomeSuccess)
			metrics.RecordRowColumns(rows[i].Len())
			continue
		}
		failed++
		metrics.RecordItem(metrics.OutcomeError)
		log.Error(ctx, "error fetching building insights",
			logger.Int("index", r.Index),
			logger.Float64("latitude", r.Request.Latitude),
			logger.Float64("longitude", r.Request.Longitude),
			logger.Error(r.Err),
		)
	}

	artifact, err := s.exporter.Export(ctx, rows, name)
	metrics.RecordBatch(len(coords), time.Since(start))
	s.record(id, len(coords), failed, artifact)

	if err != nil {
		log.Error(ctx, "batch export failed", logger.Error(err))
		return rows, nil, err
	}

	fields := []logger.Field{
		logger.Int("items", len(coords)),
		logger.Int("failures", failed),
		logger.Duration("duration", time.Since(start)),
	}
	if artifact != nil {
		fields = append(fields, logger.String("path", artifact.Path))
	}
	log.Info(ctx, "batch processed", fields...)
	return rows, artifact, nil
}

// Fetch performs one lookup per coordinate and returns the results in input order.
func (s *Service) Fetch(ctx context.Context, apiKey string, coords []model.CoordinateRequest) []ItemResult {
	results := make([]ItemResult, len(coords))
	lookup := func(i int) {
		doc, err := s.fetcher.FindClosest(ctx, apiKey, coords[i])
		results[i] = ItemResult{Index: i, Request: coords[i], Insight: doc, Err: err}
	}

	if s.concurrency < 2 || len(coords) < 2 {
		for i := range coords {
			lookup(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range coords {
		i := i
		g.Go(func() error {
			lookup(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) record(id string, items, failed int, artifact *csvexport.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	s.items += int64(items)
	s.failures += int64(failed)
	s.lastBatch = id
	if artifact != nil {
		s.lastExport = artifact.Path
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"batches":        s.batches,
		"items":          s.items,
		"failures":       s.failures,
		"concurrency":    s.concurrency,
		"lastBatchId":    s.lastBatch,
		"lastExportPath": s.lastExport,
	}
}
