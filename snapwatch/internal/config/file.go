// Package config handles snapwatch configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
	"github.com/hazyhaar/snaptrail/snapwatch/internal/policy"
)

// Config is the top-level snapwatch configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Capture CaptureConfig `yaml:"capture"`
	Output  OutputConfig  `yaml:"output"`
	Store   StoreConfig   `yaml:"store"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // plain | headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
}

// PageConfig defines a page to observe.
type PageConfig struct {
	ID           string       `yaml:"id"`
	URL          string       `yaml:"url"`
	StealthLevel string       `yaml:"stealth_level"` // plain | headless | headful; empty follows browser
	Region       event.Region `yaml:"region"`
}

// CaptureConfig is the sampling policy and history tuning shared by all pages.
type CaptureConfig struct {
	Screenshots       policy.Channel `yaml:"screenshots"`
	DOMSnapshots      policy.Channel `yaml:"dom_snapshots"`
	Randomized        bool           `yaml:"randomized"`
	IdleInterval      time.Duration  `yaml:"idle_interval"`
	SelectKeys        []int          `yaml:"select_keys"`
	HistoryCapacity   int            `yaml:"history_capacity"`
	HistoryMaxAge     time.Duration  `yaml:"history_max_age"`
	SweepInterval     time.Duration  `yaml:"sweep_interval"`
	MoveThrottle      time.Duration  `yaml:"move_throttle"`
	ScreenshotFormat  string         `yaml:"screenshot_format"` // png | jpeg | webp
	ScreenshotQuality int            `yaml:"screenshot_quality"`
}

// Policy converts the capture section into scheduler policy options.
func (c CaptureConfig) Policy() policy.Options {
	return policy.Options{
		Screenshots:  c.Screenshots,
		DOMSnapshots: c.DOMSnapshots,
		Randomized:   c.Randomized,
		IdleInterval: c.IdleInterval,
		SelectKeys:   c.SelectKeys,
	}
}

// OutputConfig locates artifacts on disk.
type OutputConfig struct {
	Root string `yaml:"root"`
	// EchoLines mirrors the line log to stderr.
	EchoLines bool `yaml:"echo_lines"`
}

// StoreConfig locates the SQLite databases. Empty Path disables the event
// index; empty PagesPath disables the watch_pages table.
type StoreConfig struct {
	Path      string `yaml:"path"`
	PagesPath string `yaml:"pages_path"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string        `yaml:"type"` // stdout | webhook
	URL     string        `yaml:"url"`  // for webhook
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Queue   int           `yaml:"queue"`
}

// HTTPConfig controls the status API. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default is the configuration used when no file is given: both channels
// enabled and selective, randomized page sampling on.
func Default() *Config {
	cfg := &Config{
		Capture: CaptureConfig{
			Screenshots:  policy.Channel{Enabled: true, Selective: true},
			DOMSnapshots: policy.Channel{Enabled: true, Selective: true},
			Randomized:   true,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Capture.IdleInterval <= 0 {
		c.Capture.IdleInterval = policy.DefaultIdleInterval
	}
	if len(c.Capture.SelectKeys) == 0 {
		c.Capture.SelectKeys = append([]int(nil), policy.DefaultSelectKeys...)
	}
	if c.Capture.HistoryCapacity <= 0 {
		c.Capture.HistoryCapacity = 1024
	}
	if c.Capture.HistoryMaxAge <= 0 {
		c.Capture.HistoryMaxAge = 2 * time.Minute
	}
	if c.Capture.SweepInterval <= 0 {
		c.Capture.SweepInterval = 10 * time.Second
	}
	if c.Capture.MoveThrottle <= 0 {
		c.Capture.MoveThrottle = 50 * time.Millisecond
	}
	if c.Capture.ScreenshotFormat == "" {
		c.Capture.ScreenshotFormat = "png"
	}
	if c.Output.Root == "" {
		c.Output.Root = "."
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "" {
			c.Sinks[i].Type = "stdout"
		}
	}
}
