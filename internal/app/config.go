package app

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/registry"
)

// EnvConfigPath names the environment variable holding the default
// configuration file.
const EnvConfigPath = "HOSTMAINT_CONFIG"

// DefaultConfigPath is used when neither -f nor HOSTMAINT_CONFIG is given.
const DefaultConfigPath = "/etc/hostmaint/hostmaint.hcl"

// Config holds the settings given on the command line. Nil pointers leave the
// configuration file's value in place.
type Config struct {
	ConfigPath string
	LogFormat  string
	// VerbosityDelta is added to the configured verbosity (-v).
	VerbosityDelta int
	// Quiet restricts output to errors (-q).
	Quiet   bool
	Workers *int
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = envString(EnvConfigPath, DefaultConfigPath)
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = FormatText
	case FormatText, FormatJSON, FormatJournal:
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text, json or journal", cfg.LogFormat)
	}
	if cfg.Quiet && cfg.VerbosityDelta > 0 {
		return nil, fmt.Errorf("-q and -v are mutually exclusive")
	}
	return &cfg, nil
}

// RunConfig is the process-wide run configuration. It is a value and never
// changes once built.
type RunConfig struct {
	nbWorkers int
	verbosity int
}

// NewRunConfig merges the file settings with command-line overrides.
func NewRunConfig(m *config.Model, cfg *Config) RunConfig {
	rc := RunConfig{verbosity: registry.DefaultVerbosity}
	if m != nil && m.NbWorkers != nil {
		rc.nbWorkers = *m.NbWorkers
	}
	if m != nil && m.Verbosity != nil {
		rc.verbosity = *m.Verbosity
	}
	if cfg != nil {
		if cfg.Workers != nil {
			rc.nbWorkers = *cfg.Workers
		}
		rc.verbosity += cfg.VerbosityDelta
		if cfg.Quiet {
			rc.verbosity = 1
		}
	}
	rc.verbosity = max(0, min(rc.verbosity, 4))
	return rc
}

// NbWorkers is the worker pool setting: 0 for the CPU count, negative for
// unbounded.
func (rc RunConfig) NbWorkers() int { return rc.nbWorkers }

// Verbosity is on the configuration's 0..4 scale.
func (rc RunConfig) Verbosity() int { return rc.verbosity }

// Threshold is the slog level matching Verbosity.
func (rc RunConfig) Threshold() slog.Level { return registry.LevelFromVerbosity(rc.verbosity) }

func (rc RunConfig) String() string {
	return "nb-workers=" + strconv.Itoa(rc.nbWorkers) + " vl=" + strconv.Itoa(rc.verbosity)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
