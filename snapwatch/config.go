package snapwatch

import (
	"github.com/hazyhaar/snaptrail/snapwatch/internal/config"
)

// Config is the top-level snapwatch configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to observe.
type PageConfig = config.PageConfig

// CaptureConfig is the sampling policy and history tuning.
type CaptureConfig = config.CaptureConfig

// OutputConfig locates artifacts on disk.
type OutputConfig = config.OutputConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}
