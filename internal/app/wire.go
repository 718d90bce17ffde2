package service

import (
	"net/http"

	"github.com/okian/solarbatch/internal/adapters/csvexport"
	"github.com/okian/solarbatch/internal/adapters/solarapi"
	"github.com/okian/solarbatch/internal/config"
	"github.com/okian/solarbatch/pkg/logger"
)

// NewFromConfig wires the Solar API client and the CSV exporter from cfg.
func NewFromConfig(cfg *config.Config, log logger.Logger) *Service {
	client := solarapi.New(
		solarapi.WithEndpoint(cfg.APIEndpoint),
		solarapi.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout()}),
		solarapi.WithLogger(log.Named("solarapi")),
	)
	exporter := csvexport.New(cfg.OutputDir,
		csvexport.WithLabel(cfg.FileLabel),
		csvexport.WithLogger(log.Named("csvexport")),
	)
	return New(
		WithFetcher(client),
		WithExporter(exporter),
		WithConcurrency(cfg.FetchConcurrency),
		WithLogger(log.Named("service")),
	)
}
