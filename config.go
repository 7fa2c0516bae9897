package openhtf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/MFX-eng/openhtf/flags"
)

// DefaultTeardownTimeout bounds the teardown phase when no override is
// configured. Teardown must never hang a run indefinitely.
const DefaultTeardownTimeout = 3 * time.Second

// Config holds the station configuration
type Config struct {
	StationName         string
	TeardownTimeout     time.Duration // Hard ceiling for the teardown phase
	DefaultPhaseTimeout time.Duration // Applied to phases with no timeout of their own (0 = none)
	StopOnFirstFail     bool          // Halt the phase sequence on the first failing phase
	RunInterval         time.Duration // Interval between test runs
	RunOnce             bool          // Indicates if the station should exit after one test run
	LogDir              string        // Directory to store per-run test logs
	Log                 log.Logger
}

// stationFile is the YAML shape of an optional station config file.
type stationFile struct {
	Station             string        `yaml:"station,omitempty"`
	TeardownTimeout     *yamlDuration `yaml:"teardown_timeout,omitempty"`
	DefaultPhaseTimeout *yamlDuration `yaml:"phase_timeout,omitempty"`
	StopOnFirstFail     *bool         `yaml:"stop_on_first_fail,omitempty"`
}

// yamlDuration parses Go duration strings ("3s", "2m30s") from YAML.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// NewConfig creates a new Config from cli context. Flag values take their
// defaults from the optional station file, mirroring how the file is meant
// to pin per-bench policy while flags handle per-invocation overrides.
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	cfg := &Config{
		StationName:         ctx.String(flags.StationName.Name),
		TeardownTimeout:     ctx.Duration(flags.TeardownTimeout.Name),
		DefaultPhaseTimeout: ctx.Duration(flags.PhaseTimeout.Name),
		StopOnFirstFail:     ctx.Bool(flags.StopOnFirstFail.Name),
		RunInterval:         ctx.Duration(flags.RunInterval.Name),
		LogDir:              ctx.String(flags.LogDir.Name),
		Log:                 logger,
	}
	cfg.RunOnce = cfg.RunInterval == 0

	if file := ctx.String(flags.StationConfig.Name); file != "" {
		if err := cfg.applyStationFile(ctx, file); err != nil {
			return nil, err
		}
	}

	if cfg.StationName == "" {
		return nil, errors.New("station name is required")
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	absLogDir, err := filepath.Abs(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", cfg.LogDir, err)
	}
	cfg.LogDir = absLogDir

	return cfg, nil
}

// applyStationFile layers file-level settings under explicitly-set flags.
func (c *Config) applyStationFile(ctx *cli.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading station config '%s': %w", path, err)
	}
	var file stationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parsing station config '%s': %w", path, err)
	}

	if file.Station != "" && !ctx.IsSet(flags.StationName.Name) {
		c.StationName = file.Station
	}
	if file.TeardownTimeout != nil && !ctx.IsSet(flags.TeardownTimeout.Name) {
		c.TeardownTimeout = time.Duration(*file.TeardownTimeout)
	}
	if file.DefaultPhaseTimeout != nil && !ctx.IsSet(flags.PhaseTimeout.Name) {
		c.DefaultPhaseTimeout = time.Duration(*file.DefaultPhaseTimeout)
	}
	if file.StopOnFirstFail != nil && !ctx.IsSet(flags.StopOnFirstFail.Name) {
		c.StopOnFirstFail = *file.StopOnFirstFail
	}
	return nil
}
