package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OPENHTF"

var (
	StationName = &cli.StringFlag{
		Name:    "station",
		Value:   "local",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATION"),
		Usage:   "Name of this test station, recorded on every test record",
	}
	StationConfig = &cli.StringFlag{
		Name:    "station-config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STATION_CONFIG"),
		Usage:   "Path to a station config file (eg. 'station.yaml')",
	}
	TeardownTimeout = &cli.DurationFlag{
		Name:    "teardown-timeout",
		Value:   3 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEARDOWN_TIMEOUT"),
		Usage:   "Hard ceiling for the teardown phase, overriding whatever the phase declares",
	}
	PhaseTimeout = &cli.DurationFlag{
		Name:    "phase-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PHASE_TIMEOUT"),
		Usage:   "Default timeout for phases that declare none. Set to 0 or omit for unbounded.",
	}
	StopOnFirstFail = &cli.BoolFlag{
		Name:    "stop-on-first-fail",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_ON_FIRST_FAIL"),
		Usage:   "Halt the phase sequence on the first failing phase",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run test logs",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	StationName,
	StationConfig,
	TeardownTimeout,
	PhaseTimeout,
	StopOnFirstFail,
	RunInterval,
	LogDir,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
