package config

import (
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-speedtest/internal/engine"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "host",
			Message: "must not be empty",
		})
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "port",
			Message: fmt.Sprintf("must be between 1 and 65535 (got %d)", cfg.Port),
		})
	}

	if cfg.Engine.LatencyPackets < 1 {
		errs = append(errs, ValidationError{
			Field:   "latency_packets",
			Message: "must be at least 1",
		})
	}

	if p := cfg.Engine.BandwidthPercentile; p <= 0 || p > 1 {
		errs = append(errs, ValidationError{
			Field:   "percentile",
			Message: fmt.Sprintf("must be in (0, 1] (got %v)", p),
		})
	}

	errs = append(errs, validateSizes("download_sizes", cfg.Engine.DownloadSizes)...)
	errs = append(errs, validateSizes("upload_sizes", cfg.Engine.UploadSizes)...)

	if cfg.Engine.LoadedLatencyThrottle <= 0 {
		errs = append(errs, ValidationError{
			Field:   "loaded_latency_throttle",
			Message: "must be positive",
		})
	}

	if cfg.Engine.BandwidthFinishDurationMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "bandwidth_finish_duration_ms",
			Message: "must be positive",
		})
	}

	// Retry policy
	if cfg.Engine.Retry.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_retries",
			Message: "must not be negative",
		})
	}
	if cfg.Engine.Retry.BaseDelay <= 0 {
		errs = append(errs, ValidationError{
			Field:   "base_delay",
			Message: "must be positive",
		})
	}
	if cfg.Engine.Retry.MaxDelay < cfg.Engine.Retry.BaseDelay {
		errs = append(errs, ValidationError{
			Field:   "max_delay",
			Message: "must be >= base_delay",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true, "error": true,
	}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateSizes checks a bandwidth size sequence for impossible values.
func validateSizes(field string, sizes []engine.DataBlock) []error {
	var errs []error

	if len(sizes) == 0 {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "must not be empty",
		})
		return errs
	}

	for i, block := range sizes {
		if block.Bytes < 1 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("entry %d: bytes must be positive (got %d)", i, block.Bytes),
			})
		}
		if block.Count < 1 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("entry %d: count must be positive (got %d)", i, block.Count),
			})
		}
	}

	return errs
}
