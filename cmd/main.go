package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	openhtf "github.com/MFX-eng/openhtf"
	"github.com/MFX-eng/openhtf/flags"
	"github.com/MFX-eng/openhtf/plugs"
	"github.com/MFX-eng/openhtf/service"
	"github.com/MFX-eng/openhtf/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "openhtf-station"
	app.Usage = "Hardware Test Station Service"
	app.Description = "openhtf-station runs hardware tests"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if openhtf.IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			} else if openhtf.IsTestFailureError(err) {
				// For test failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start server
	ctx := context.Background()
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()

	cfg, err := openhtf.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, openhtf.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	station, err := openhtf.NewStation(ctx.Context, cfg, Version, selfCheckTest(), closeApp,
		openhtf.WithStationPlugs(plugs.Registration{Name: "bench", New: newBenchPlug}),
		openhtf.WithStationTeardown(types.PhaseDescriptor{Name: "release bench", Run: releaseBench}),
	)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, openhtf.NewRuntimeError(fmt.Errorf("failed to create station: %w", err))
	}

	return station, nil
}

// selfCheckTest exercises the station end to end without a unit under test.
// It stands in for a real test descriptor until one is wired in.
func selfCheckTest() *types.TestDescriptor {
	return &types.TestDescriptor{
		Name: "station-selfcheck",
		Phases: []types.PhaseDescriptor{
			{Name: "check plugs", Run: checkPlugs, Options: types.PhaseOptions{Timeout: 5 * time.Second}},
			{Name: "check logging", Run: checkLogging, Options: types.PhaseOptions{Timeout: 5 * time.Second}},
		},
	}
}

// benchPlug is a stand-in instrument handle used by the selfcheck test.
type benchPlug struct {
	logger log.Logger
}

func newBenchPlug(logger log.Logger) (types.Plug, error) {
	return &benchPlug{logger: logger}, nil
}

func (p *benchPlug) TearDown() {
	p.logger.Debug("Releasing bench plug")
}

func checkPlugs(ctx context.Context, t types.PhaseContext) types.PhaseResult {
	if _, ok := t.Plugs().Plug("bench"); !ok {
		return types.PhaseError
	}
	return types.PhaseContinue
}

func checkLogging(ctx context.Context, t types.PhaseContext) types.PhaseResult {
	t.Logger().Info("Station logging operational", "unit", t.UnitID())
	return types.PhaseContinue
}

func releaseBench(ctx context.Context, t types.PhaseContext) types.PhaseResult {
	t.Logger().Info("Selfcheck teardown complete")
	return types.PhaseContinue
}
