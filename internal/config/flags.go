package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config. A config
// file named by -config is loaded first, so explicit flags win over
// file values.
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()

	// The config file has to be loaded before flag registration so the
	// remaining flags default to the file's values.
	if path := configFilePath(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	fs := flag.NewFlagSet("go-speedtest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-speedtest - network speed test against speed.cloudflare.com

Usage:
  go-speedtest [flags]

Target Flags:
`)
		// Print flags by category
		printFlagCategory(fs, []string{"host", "port", "user-agent"})

		fmt.Fprintf(os.Stderr, "\nMeasurement:\n")
		printFlagCategory(fs, []string{"latency-packets", "percentile", "max-retries", "config"})

		fmt.Fprintf(os.Stderr, "\nOutput:\n")
		printFlagCategory(fs, []string{"json", "tui"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory(fs, []string{"metrics", "v", "log-format", "log-level"})

		fmt.Fprintf(os.Stderr, "\nDiagnostics:\n")
		printFlagCategory(fs, []string{"skip-preflight", "version"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Interactive test with the live dashboard
  go-speedtest

  # Machine-readable output for scripting
  go-speedtest -json

  # Scheduled run exposing Prometheus metrics
  go-speedtest -tui=false -metrics 0.0.0.0:17092

`)
	}

	// Target flags
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Speed test server hostname")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Speed test server port")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")

	// Measurement
	fs.IntVar(&cfg.Engine.LatencyPackets, "latency-packets", cfg.Engine.LatencyPackets, "Probes for the idle latency measurement")
	fs.Float64Var(&cfg.Engine.BandwidthPercentile, "percentile", cfg.Engine.BandwidthPercentile, "Percentile reported as the final speed (0-1)")
	fs.IntVar(&cfg.Engine.Retry.MaxRetries, "max-retries", cfg.Engine.Retry.MaxRetries, "Retries per failed measurement")
	fs.String("config", cfg.ConfigFile, "YAML config file (flags override file values)")

	// Output
	fs.BoolVar(&cfg.JSONOutput, "json", cfg.JSONOutput, "Print the report as JSON instead of the summary")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use -tui=false to disable)")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)

	// Diagnostics
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip the connectivity preflight check")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configFilePath scans args for the -config flag ahead of full parsing.
func configFilePath(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		name = strings.TrimLeft(name, "-")
		if name != "config" || !strings.HasPrefix(arg, "-") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
