package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for databayes
type Config struct {
	Log     LogConfig
	Backend BackendConfig
	Metrics MetricsConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// BackendConfig locates the YAML document the backend is built from.
type BackendConfig struct {
	File    string        // Path to the backend YAML document
	Section string        // Optional top-level section to descend into
	Class   string        // Forced discriminator (empty = use the document's)
	Timeout time.Duration // Deadline applied to each CLI operation
	// Overrides are applied to the built backend with objcore.Update,
	// keyed by the backend's yaml field names (e.g. size_window).
	Overrides map[string]interface{}
}

type MetricsConfig struct {
	Enabled bool // Print metrics in text exposition format after each command
}

// Load loads configuration from environment and config file.
// An empty configFile searches the default locations; a missing file there is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DATABAYES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("databayes")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/databayes/")
		v.AddConfigPath("$HOME/.databayes/")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	timeout := v.GetDuration("backend.timeout")
	if timeout < 0 {
		return nil, fmt.Errorf("invalid backend.timeout: %s", timeout)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Backend: BackendConfig{
			File:      v.GetString("backend.file"),
			Section:   v.GetString("backend.section"),
			Class:     v.GetString("backend.class"),
			Timeout:   timeout,
			Overrides: v.GetStringMap("backend.overrides"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Backend defaults
	v.SetDefault("backend.file", "backend.yaml")
	v.SetDefault("backend.section", "")
	v.SetDefault("backend.class", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.overrides", map[string]interface{}{})

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
}
