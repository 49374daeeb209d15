// Command simbus runs a sensor tracking simulation on the in-process bus.
//
//	simbus -c sim.toml --report out/report.json --log-level debug
//	simbus validate -c sim.toml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/simbus/config"
	"github.com/vinayprograms/simbus/logging"
	"github.com/vinayprograms/simbus/sim"
	"github.com/vinayprograms/simbus/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simbus",
		Short: "Run a tick-driven sensor simulation on an in-process message bus",
		Long: `simbus starts a clock, a set of sensors and a pool of tracker workers on
one message bus, runs the configured number of ticks, and reports what was
detected, tracked and lost.`,
		SilenceUsage: true,
		RunE:         runSimulation,
	}
	root.PersistentFlags().StringP("config", "c", "", "TOML config file (defaults are used when empty)")
	root.Flags().String("report", "", "write the JSON report to this path (overrides output.report)")
	root.Flags().String("log-level", "", "debug, info, warn or error (overrides logging.level)")

	root.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check a config file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d ticks every %s, %d sensors, %d trackers\n",
				cfg.Simulation.Duration, cfg.Simulation.TickInterval, cfg.Simulation.Sensors, cfg.Simulation.Workers)
			return nil
		},
	})
	return root
}

// loadConfig reads the --config file, or the defaults when none is given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.Default()
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}
	return config.LoadFile(path)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if report, _ := cmd.Flags().GetString("report"); report != "" {
		cfg.Output.Report = report
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	base := logging.New()
	base.SetOutput(cmd.ErrOrStderr())
	base.SetLevel(cfg.LogLevel())
	logger := base.WithComponent("simbus")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer := telemetry.GetTracer()
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.InitProvider(ctx, cfg.ProviderConfig())
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("trace provider shutdown failed", map[string]interface{}{"error": err.Error()})
			}
		}()
		tracer = provider.Tracer()
	}

	exporter, err := telemetry.NewExporter(cfg.Output.EventsProtocol, cfg.Output.Events)
	if err != nil {
		return err
	}
	defer exporter.Close()

	runner := sim.NewRunner(cfg,
		sim.WithLogger(logger),
		sim.WithTracer(tracer),
		sim.WithExporter(exporter),
	)
	snap, runErr := runner.Run(ctx)

	if cfg.Output.Report != "" {
		if err := sim.WriteReport(cfg.Output.Report, snap); err != nil {
			return err
		}
		logger.Info("report written", map[string]interface{}{"path": cfg.Output.Report})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s %s: %d ticks, %d detected, %d tracked, %d timeouts\n",
		snap.RunID, snap.Status, snap.SystemRuntime, snap.Detected, snap.Tracked, snap.Timeouts)
	return runErr
}
