package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/solarbatch/internal/batchrun"
	"github.com/okian/solarbatch/internal/config"
	"github.com/okian/solarbatch/pkg/logger"
	"github.com/okian/solarbatch/pkg/metrics"
)

func main() {
	var (
		file    = flag.String("file", "", "Coordinates file (YAML)")
		out     = flag.String("out", "", "CSV file name (default: building-insights-TIMESTAMP)")
		key     = flag.String("key", "", "API key (default: file key, then $"+batchrun.EnvAPIKey+")")
		verbose = flag.Bool("verbose", false, "Print every row as JSON")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *file == "" {
		batchrun.ShowHelp()
		if !*help {
			os.Exit(2)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	metrics.Init(cfg.MetricsOptions()...)

	_, err = batchrun.Run(ctx, &batchrun.Config{
		File:    *file,
		Out:     *out,
		Key:     *key,
		Verbose: *verbose,
		Service: cfg,
	}, os.Stdout)
	if err != nil {
		os.Stderr.WriteString("batch failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
