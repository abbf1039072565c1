// Package config provides configuration management for go-speedtest.
package config

import (
	"github.com/randomizedcoder/go-speedtest/internal/engine"
)

// Config holds all configuration options for a speed test run.
type Config struct {
	// Target
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Measurement
	Engine engine.Config `json:"engine" yaml:"engine"`

	// Output
	JSONOutput bool `json:"json_output" yaml:"json_output"`
	TUIEnabled bool `json:"tui" yaml:"tui"`

	// Observability
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"` // empty = disabled
	LogFormat   string `json:"log_format" yaml:"log_format"`     // json, text
	LogLevel    string `json:"log_level" yaml:"log_level"`
	Verbose     bool   `json:"verbose" yaml:"verbose"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight" yaml:"skip_preflight"`

	// Flag-only fields, never read from a config file.
	ConfigFile  string `json:"-" yaml:"-"`
	ShowVersion bool   `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Target
		Host:      "speed.cloudflare.com",
		Port:      443,
		UserAgent: "go-speedtest/1.0",

		// Measurement
		Engine: engine.DefaultConfig(),

		// Output
		JSONOutput: false,
		TUIEnabled: true,

		// Observability
		MetricsAddr: "", // Disabled
		LogFormat:   "text",
		LogLevel:    "info",
		Verbose:     false,
	}
}
