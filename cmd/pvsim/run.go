package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/edp1096/toy-pv/internal/config"
	"github.com/edp1096/toy-pv/pkg/analysis"
	"github.com/edp1096/toy-pv/pkg/circuit"
	"github.com/edp1096/toy-pv/pkg/device"
	"github.com/edp1096/toy-pv/pkg/ivplot"
	"github.com/edp1096/toy-pv/pkg/metrics"
	"github.com/edp1096/toy-pv/pkg/netlist"
)

var errNoAnalysis = errors.New("netlist declares no .op or .dc analysis")

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <netlist>",
	Short: "Execute the analysis declared in a netlist",
	Long: `Build the topology described by the netlist and execute its analysis.

  .op IRR TEMP V          solve one operating point
  .dc START STOP INCR     sweep voltages under every .cond line
  .dc list V1 V2 ...      sweep explicit voltages`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNetlist(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.Bool("reduce", false, "solve the reduced topology")
	flags.Int("workers", 0, "conditions solved concurrently (default: GOMAXPROCS)")
	flags.String("plot", "", "write I-V and P-V curves to this image (png, svg, pdf)")
	flags.String("metrics-file", "", "write solver metrics in Prometheus text format")

	mustBindFlags(v, flags, map[string]string{
		"sweep.reduce":        "reduce",
		"sweep.workers":       "workers",
		"output.plot":         "plot",
		"output.metrics_file": "metrics-file",
	})
}

func runNetlist(ctx context.Context, cfg *config.Config, path string, w io.Writer) error {
	ckt, data, err := loadCircuit(cfg, path)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(cfg, w)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(registry, logger.WithName("solver"))
	if err != nil {
		return err
	}

	opts := []analysis.Option{
		analysis.WithObserver(recorder),
		analysis.WithLogger(logger.WithName("analysis")),
		analysis.WithReduction(cfg.Sweep.Reduce),
		analysis.WithWorkers(cfg.Sweep.Workers),
	}

	var report analysis.Report
	switch data.Analysis {
	case netlist.AnalysisOP:
		op := analysis.NewOP(data.OPParam.Irradiance, data.OPParam.Temperature, data.OPParam.Voltage, opts...)
		if err := execute(ctx, op, ckt); err != nil {
			return err
		}
		point := op.Point()
		report = analysis.Report{
			Array:      op.Array().Name(),
			Structure:  op.Array().Describe(),
			Reduced:    cfg.Sweep.Reduce,
			Points:     []analysis.Point{point},
			TotalPower: point.Power,
		}

	case netlist.AnalysisDC:
		sweep := analysis.NewSweep(data.Conditions, data.Voltages(), opts...)
		if err := execute(ctx, sweep, ckt); err != nil {
			return err
		}
		report = sweep.Report()

	default:
		return errNoAnalysis
	}

	if err := formatter.FormatSweep(report); err != nil {
		return err
	}

	if cfg.Output.Plot != "" {
		if err := ivplot.Curves(report, cfg.Output.Plot); err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		logger.Info("Curves written", "file", cfg.Output.Plot)
	}

	logger.V(1).Info("Solver calls",
		"cell", recorder.Calls(device.LevelCell),
		"series", recorder.Calls(device.LevelSeries),
		"parallel", recorder.Calls(device.LevelParallel))

	if cfg.Output.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Output.MetricsFile, registry); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func execute(ctx context.Context, a analysis.Analysis, ckt *circuit.Circuit) error {
	if err := a.Setup(ckt); err != nil {
		return fmt.Errorf("analysis setup failed: %w", err)
	}
	if err := a.Execute(ctx); err != nil {
		return fmt.Errorf("analysis execution failed: %w", err)
	}
	return nil
}
