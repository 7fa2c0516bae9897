package openhtf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/MFX-eng/openhtf/flags"
)

// parseConfig runs a throwaway CLI app so NewConfig sees real flag parsing,
// including IsSet semantics.
func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	var cfg *Config
	var cfgErr error
	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.New())
		return nil
	}
	require.NoError(t, app.Run(append([]string{"station"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(t)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.StationName)
	assert.Equal(t, DefaultTeardownTimeout, cfg.TeardownTimeout)
	assert.Equal(t, time.Duration(0), cfg.DefaultPhaseTimeout)
	assert.True(t, cfg.StopOnFirstFail)
	assert.True(t, cfg.RunOnce)
	assert.True(t, filepath.IsAbs(cfg.LogDir))
}

func TestNewConfigRunIntervalDisablesRunOnce(t *testing.T) {
	cfg, err := parseConfig(t, "--run-interval", "30s")
	require.NoError(t, err)

	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 30*time.Second, cfg.RunInterval)
}

func TestNewConfigZeroTeardownFallsBackToDefault(t *testing.T) {
	cfg, err := parseConfig(t, "--teardown-timeout", "0s")
	require.NoError(t, err)

	assert.Equal(t, DefaultTeardownTimeout, cfg.TeardownTimeout)
}

func TestNewConfigStationFileApplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"station: bench-7\nteardown_timeout: 10s\nstop_on_first_fail: false\n",
	), 0644))

	cfg, err := parseConfig(t, "--station-config", path)
	require.NoError(t, err)

	assert.Equal(t, "bench-7", cfg.StationName)
	assert.Equal(t, 10*time.Second, cfg.TeardownTimeout)
	assert.False(t, cfg.StopOnFirstFail)
}

func TestNewConfigFlagsOverrideStationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"station: bench-7\nteardown_timeout: 10s\n",
	), 0644))

	cfg, err := parseConfig(t, "--station-config", path,
		"--station", "bench-override", "--teardown-timeout", "5s")
	require.NoError(t, err)

	assert.Equal(t, "bench-override", cfg.StationName)
	assert.Equal(t, 5*time.Second, cfg.TeardownTimeout)
}

func TestNewConfigRejectsBadStationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte("station: [broken"), 0644))

	_, err := parseConfig(t, "--station-config", path)
	require.Error(t, err)

	_, err = parseConfig(t, "--station-config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
