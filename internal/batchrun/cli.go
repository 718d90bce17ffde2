package batchrun

import (
	"fmt"
	"io"
	"os"
	"time"

	app "github.com/okian/solarbatch/internal/app"
	"github.com/okian/solarbatch/internal/domain/flatten"
	"github.com/okian/solarbatch/internal/domain/model"
)

// report prints one line per item and a closing summary.
func report(out io.Writer, coords []model.CoordinateRequest, rows []*flatten.Row, stats *Stats, verbose bool) {
	for i, r := range rows {
		c := coords[i]
		if !isSuccess(r) {
			msg, _ := r.Get(app.ErrorKey)
			fmt.Fprintf(out, "%4d  %11.6f %11.6f  error: %s\n", i, c.Latitude, c.Longitude, msg.Text())
			continue
		}
		if verbose {
			fmt.Fprintf(out, "%4d  %11.6f %11.6f  %s\n", i, c.Latitude, c.Longitude, r.String())
			continue
		}
		fmt.Fprintf(out, "%4d  %11.6f %11.6f  ok (%d columns)\n", i, c.Latitude, c.Longitude, r.Len())
	}

	fmt.Fprintf(out, "\n%d items, %d succeeded, %d failed in %s\n",
		stats.Items, stats.Succeeded, stats.Failed, stats.Duration.Round(time.Millisecond))
	if stats.Path != "" {
		fmt.Fprintf(out, "CSV written to %s\n", stats.Path)
	} else if stats.Items == 0 {
		fmt.Fprintln(out, "no data to save to CSV")
	}
}

func isSuccess(r *flatten.Row) bool {
	_, ok := r.Get(flatten.RequestLatitudeKey)
	return ok
}

// ShowHelp prints usage information for the batch tool.
func ShowHelp() {
	os.Stdout.WriteString(`Solar Batch
===========

Looks up Google Solar building insights for every coordinate in a file,
prints a per-item summary and writes all rows to one CSV file.

Usage:
  go run ./cmd/batch -file coords.yaml [options]

Options:
  -file string
        Coordinates file (YAML, required)
  -out string
        CSV file name without extension (default: building-insights-TIMESTAMP)
  -key string
        API key (default: key from the file, then $SOLAR_API_KEY)
  -verbose
        Print every row as JSON
  -help
        Show this help message

Coordinates file:
  key: optional-api-key
  parameters:
    - latitude: 37.4449
      longitude: -122.139
      requiredQuality: HIGH

Service settings (output_dir, api_endpoint, http_timeout_ms,
fetch_concurrency, file_label) come from $SOLAR_CONFIG and SOLAR_* variables.
`)
}
