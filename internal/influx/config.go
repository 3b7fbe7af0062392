package influx

import "time"

// Config holds the InfluxDB v2 connection parameters
type Config struct {
	URL   string `yaml:"url"`
	Org   string `yaml:"org"`
	Token string `yaml:"token"`

	// Timeout bounds each HTTP request; zero keeps the client default
	Timeout time.Duration `yaml:"timeout"`
}
