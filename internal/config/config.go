package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"segstat/domain/comparison"
	"segstat/domain/core"
	"segstat/internal/errors"
)

// Output formats supported by the table writer
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Pipeline is the immutable configuration passed into each pipeline run
type Pipeline struct {
	SourceDir    string                 `yaml:"source_dir"`
	DestDir      string                 `yaml:"dest_dir"`
	Pattern      string                 `yaml:"pattern"`
	ClipNegative bool                   `yaml:"clip_negative"`
	ControlLabel string                 `yaml:"control_label"`
	Metric       string                 `yaml:"metric"`
	OutputFormat string                 `yaml:"output_format"`
	Workers      int                    `yaml:"workers"`
	SummaryFile  string                 `yaml:"summary_file"`
	GroupStats   string                 `yaml:"group_stats_file"`
	DatabaseURL  string                 `yaml:"database_url"`
	Groups       []comparison.GroupSpec `yaml:"groups"`
}

// Default returns the configuration used when nothing else is specified
func Default() Pipeline {
	return Pipeline{
		Pattern:      "*.csv",
		ClipNegative: true,
		Metric:       string(comparison.MetricIntensityMean),
		OutputFormat: FormatCSV,
		Workers:      runtime.NumCPU(),
		SummaryFile:  "summary_per_file",
		GroupStats:   "group_stats",
	}
}

// Load reads an optional YAML file over the defaults, applies environment overrides
// and validates the result.
func Load(path string) (Pipeline, error) {
	cfg, err := Read(path)
	if err != nil {
		return Pipeline{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Pipeline{}, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Read is Load without validation, for callers that override fields first
func Read(path string) (Pipeline, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Pipeline{}, errors.Wrapf(errors.IOError("failed to read config file", err), "config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Pipeline{}, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to parse config file")
		}
	}

	return cfg.withEnv(), nil
}

func (p Pipeline) withEnv() Pipeline {
	p.SourceDir = getEnvOrDefault("SEGSTAT_SOURCE_DIR", p.SourceDir)
	p.DestDir = getEnvOrDefault("SEGSTAT_DEST_DIR", p.DestDir)
	p.Pattern = getEnvOrDefault("SEGSTAT_PATTERN", p.Pattern)
	p.ClipNegative = getEnvBoolOrDefault("SEGSTAT_CLIP_NEGATIVE", p.ClipNegative)
	p.ControlLabel = getEnvOrDefault("SEGSTAT_CONTROL_LABEL", p.ControlLabel)
	p.Metric = getEnvOrDefault("SEGSTAT_METRIC", p.Metric)
	p.OutputFormat = getEnvOrDefault("SEGSTAT_OUTPUT_FORMAT", p.OutputFormat)
	p.Workers = getEnvIntOrDefault("SEGSTAT_WORKERS", p.Workers)
	p.DatabaseURL = getEnvOrDefault("DATABASE_URL", p.DatabaseURL)
	return p
}

// Validate checks the configuration for internal consistency
func (p Pipeline) Validate() error {
	if strings.TrimSpace(p.SourceDir) == "" {
		return invalid("source directory is required")
	}
	if _, err := filepath.Match(p.Pattern, ""); err != nil {
		return invalid(fmt.Sprintf("invalid file pattern %q", p.Pattern))
	}
	if p.OutputFormat != FormatCSV && p.OutputFormat != FormatXLSX {
		return invalid(fmt.Sprintf("unsupported output format %q", p.OutputFormat))
	}
	if p.Workers < 1 {
		return invalid("workers must be at least 1")
	}
	if _, err := comparison.ParseMetric(p.Metric); err != nil {
		return invalid(err.Error())
	}
	if len(p.Groups) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(p.Groups))
	controls := 0
	for _, g := range p.Groups {
		if strings.TrimSpace(g.Label) == "" {
			return invalid("group label cannot be empty")
		}
		if seen[g.Label] {
			return invalid(fmt.Sprintf("duplicate group label %q", g.Label))
		}
		seen[g.Label] = true
		if g.Control {
			controls++
			if p.ControlLabel != "" && p.ControlLabel != g.Label {
				return invalid(fmt.Sprintf("control_label %q does not match control group %q", p.ControlLabel, g.Label))
			}
		}
	}
	if controls > 1 {
		return invalid("exactly one group may be marked as control")
	}
	if controls == 0 && !seen[p.ControlLabel] {
		return invalid(fmt.Sprintf("control group %q is not among the configured groups", p.ControlLabel))
	}
	return nil
}

// Control returns the control group label
func (p Pipeline) Control() string {
	for _, g := range p.Groups {
		if g.Control {
			return g.Label
		}
	}
	return p.ControlLabel
}

// ComparisonMetric returns the parsed metric. Validate guarantees it parses.
func (p Pipeline) ComparisonMetric() comparison.Metric {
	m, err := comparison.ParseMetric(p.Metric)
	if err != nil {
		return comparison.MetricIntensityMean
	}
	return m
}

// GroupOrder returns group labels in configured order
func (p Pipeline) GroupOrder() []string {
	order := make([]string, len(p.Groups))
	for i, g := range p.Groups {
		order[i] = g.Label
	}
	return order
}

// OutputDir returns the destination directory, falling back to the source directory
func (p Pipeline) OutputDir() string {
	if p.DestDir != "" {
		return p.DestDir
	}
	return p.SourceDir
}

// invalid reports a configuration problem that errors.Is matches against core.ErrConfiguration
func invalid(reason string) error {
	return errors.WithCode(errors.CodeConfigInvalid, core.NewConfigurationError(reason))
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
