// Package config parses the command line, the environment and migration plan
// files into the settings of one cwd-migrate run.
package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every environment variable read by ParseEnvConfig.
const EnvPrefix = "CWD_MIGRATE_"

// DefaultLockFile serializes concurrent runs on one host.
const DefaultLockFile = "/run/cwd-migrate.lock"

// ErrUsage is returned when the command line does not describe a migration.
var ErrUsage = errors.New("usage: cwd-migrate [flags] <detect-path> <new-path> | --plan <file>")

// EnvConfig holds configuration from environment variables.
// Command-line flags take precedence over these.
type EnvConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`
	LockFile string `env:"LOCK_FILE"`
	Select   string `env:"SELECT"`
	TraceID  string `env:"TRACE_ID"`
}

// ParseEnvConfig parses CWD_MIGRATE_* environment variables.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

// Config holds the parsed configuration of one run.
type Config struct {
	// Migrations are executed in order. Either the single positional pair or
	// the entries of the plan file.
	Migrations []Migration
	// PlanFile is the plan the migrations were read from, if any.
	PlanFile string

	DryRun      bool
	BestEffort  bool
	WatchSpawns bool

	// Select is the default selector for migrations that have none.
	Select string

	LockFile string
	LogLevel string
	LogFile  string
	// TraceID is the raw --trace-id value; see otel.TraceIDFromString.
	TraceID string

	ShowVersion bool
}

// ParseArgs parses command-line arguments (args[0] is the program name) on
// top of the environment configuration. The plan file, if any, is not read
// here; see LoadPlan.
//
// pflag.ErrHelp is returned when --help was requested; usage has then already
// been written to output.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	envCfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	flags := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	flags.SetOutput(output)
	flags.SortFlags = false
	flags.Usage = func() {
		fmt.Fprintf(output, "%v\n\nFlags:\n%s", ErrUsage, flags.FlagUsages()) //nolint:errcheck // Usage output
	}

	flags.StringVar(&cfg.PlanFile, "plan", "", "YAML file listing migrations to run in order")
	flags.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "list matching processes without touching them")
	flags.BoolVar(&cfg.BestEffort, "best-effort", false, "try every process instead of stopping at the first failure")
	flags.StringVarP(&cfg.Select, "select", "s", envCfg.Select, "expression narrowing the processes to migrate")
	flags.BoolVar(&cfg.WatchSpawns, "watch-spawns", false, "report processes forked under the old path during the run")
	flags.StringVar(&cfg.LockFile, "lock-file", envCfg.LockFile, "lock file preventing concurrent runs")
	flags.StringVar(&cfg.LogLevel, "log-level", envCfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.LogFile, "log-file", envCfg.LogFile, "also write JSON logs to this file")
	flags.StringVarP(&cfg.TraceID, "trace-id", "t", envCfg.TraceID, "join this trace (32 hex chars, or any string to hash)")
	flags.BoolVarP(&cfg.ShowVersion, "version", "v", false, "print version and exit")

	if err := flags.Parse(args[1:]); err != nil {
		return nil, err
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	positional := flags.Args()
	switch {
	case cfg.PlanFile != "" && len(positional) > 0:
		return nil, fmt.Errorf("--plan cannot be combined with positional paths: %w", ErrUsage)
	case cfg.PlanFile != "":
		// Migrations are filled by LoadPlan.
	case len(positional) == 2:
		cfg.Migrations = []Migration{{From: positional[0], To: positional[1]}}
	default:
		return nil, ErrUsage
	}

	if cfg.LockFile == "" {
		cfg.LockFile = DefaultLockFile
	}

	for i := range cfg.Migrations {
		if err := cfg.Migrations[i].Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Migration moves every process working under From to To.
type Migration struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Select string `yaml:"select,omitempty"`
}

// Validate checks that both paths are absolute. Relative paths could never
// match a working directory, which the kernel always reports absolute.
func (m Migration) Validate() error {
	if m.From == "" || m.To == "" {
		return fmt.Errorf("migration needs both a detect path and a new path")
	}
	if !filepath.IsAbs(m.From) {
		return fmt.Errorf("detect path %q is not absolute", m.From)
	}
	if !filepath.IsAbs(m.To) {
		return fmt.Errorf("new path %q is not absolute", m.To)
	}
	return nil
}

// SelectorFor returns the selector expression that applies to m.
func (c *Config) SelectorFor(m Migration) string {
	if m.Select != "" {
		return m.Select
	}
	return c.Select
}
