package batchrun

import "github.com/okian/solarbatch/internal/config"

// EnvAPIKey supplies the API key when neither the flag nor the file has one.
const EnvAPIKey = "SOLAR_API_KEY"

// Config holds the options of one CLI run.
type Config struct {
	File    string         // Coordinates file (YAML)
	Out     string         // Output file name; generated when empty
	Key     string         // API key; overrides the file and EnvAPIKey
	Verbose bool           // Print every row instead of a summary line per item
	Service *config.Config // Endpoint, output directory and fetch settings
}
