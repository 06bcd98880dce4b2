package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tranreloc/tranreloc/sim"
	"github.com/tranreloc/tranreloc/sim/metrics"
	"github.com/tranreloc/tranreloc/sim/optimize"
	"github.com/tranreloc/tranreloc/sim/params"
	"github.com/tranreloc/tranreloc/sim/results"
)

// Tasks accepted by --task.
const (
	taskEvaluate = "evaluate"
	taskOptimize = "optimize"
)

var (
	// CLI flags for the analysis
	task         string  // evaluate or optimize
	resultsPath  string  // File the results are written to
	outputKind   string  // measures or distributions
	serviceLevel float64 // Minimum service level for optimize
	paramsPath   string  // Parameter directory or YAML scenario file
	logLevel     string  // Log verbosity level

	// CLI flags for the solver
	solverConfigPath   string  // YAML solver configuration
	tolerance          float64 // Truncation error bound per uniformization step
	segmentLength      float64 // Duration of each segment
	migrationMethod    string  // auto, fast or accurate
	migrationThreshold float64 // Size product at which auto switches to fast migration

	// CLI flags for optimize and output
	workers     int    // Concurrent evaluations during optimize
	maxCapacity int    // Per-asset capacity search limit
	metricsFile string // Prometheus textfile written after the run
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "tranreloc",
	Short: "Transient analysis of capacity-limited asset networks with customer relocation",
}

// runOptions is the resolved configuration of one run.
type runOptions struct {
	Task         string
	ParamsPath   string
	ResultsPath  string
	Output       results.Kind
	ServiceLevel float64
	Solver       sim.SolverConfig
	Workers      int
	MaxCapacity  int
	MetricsFile  string
}

// runCmd evaluates or optimizes the system described by --params
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate or optimize the system",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		opts, err := resolveRunOptions(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		logrus.Infof("Starting %s of %s, tolerance=%g, migration=%s",
			opts.Task, opts.ParamsPath, opts.Solver.Tolerance, opts.Solver.Migration.Method)
		startTime := time.Now()
		if err := runTask(ctx, opts); err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}
		logrus.Infof("Results written to %s in %v", opts.ResultsPath, time.Since(startTime))
	},
}

// resolveRunOptions validates the flags and merges the solver configuration
// file with explicitly set solver flags.
func resolveRunOptions(cmd *cobra.Command) (runOptions, error) {
	opts := runOptions{
		Task:         task,
		ParamsPath:   paramsPath,
		ResultsPath:  resultsPath,
		ServiceLevel: serviceLevel,
		Workers:      workers,
		MaxCapacity:  maxCapacity,
		MetricsFile:  metricsFile,
	}
	if task != taskEvaluate && task != taskOptimize {
		return opts, fmt.Errorf("unknown task %q (want %s or %s)", task, taskEvaluate, taskOptimize)
	}
	kind, err := results.ParseKind(outputKind)
	if err != nil {
		return opts, err
	}
	opts.Output = kind
	if !(serviceLevel > 0 && serviceLevel < 1) {
		return opts, fmt.Errorf("service level %v outside (0,1)", serviceLevel)
	}

	opts.Solver = sim.DefaultSolverConfig()
	if solverConfigPath != "" {
		if opts.Solver, err = loadSolverConfig(solverConfigPath); err != nil {
			return opts, err
		}
	}
	// Flags override the file only when set explicitly.
	if cmd.Flags().Changed("tolerance") {
		opts.Solver.Tolerance = tolerance
	}
	if cmd.Flags().Changed("segment-length") {
		opts.Solver.SegmentLength = segmentLength
	}
	if cmd.Flags().Changed("migration") {
		if opts.Solver.Migration.Method, err = sim.ParseMigrationMethod(migrationMethod); err != nil {
			return opts, err
		}
	}
	if cmd.Flags().Changed("migration-threshold") {
		opts.Solver.Migration.Threshold = migrationThreshold
	}
	return opts, opts.Solver.Validate()
}

// runTask loads the parameters, runs the task and writes the results.
func runTask(ctx context.Context, opts runOptions) error {
	sys, err := params.Load(opts.ParamsPath)
	if err != nil {
		return fmt.Errorf("loading parameters: %w", err)
	}
	logrus.Infof("Loaded %d assets over %d segments", sys.Assets(), len(sys.Segments))

	var evalOpts []sim.EvaluatorOption
	var collector *metrics.Collector
	if opts.MetricsFile != "" {
		if collector, err = metrics.NewCollector(prometheus.NewRegistry()); err != nil {
			return err
		}
		evalOpts = append(evalOpts, sim.WithObserver(collector))
	}
	eval, err := sim.NewEvaluator(sys, opts.Solver, evalOpts...)
	if err != nil {
		return err
	}

	var segments []sim.SegmentResult
	switch opts.Task {
	case taskOptimize:
		o, err := optimize.New(eval, optimize.Config{
			ServiceLevel: opts.ServiceLevel,
			Workers:      opts.Workers,
			MaxCapacity:  opts.MaxCapacity,
		})
		if err != nil {
			return err
		}
		segments, err = o.Optimize(ctx)
		if err != nil {
			return err
		}
	default:
		if segments, err = eval.EvaluateSequence(); err != nil {
			return err
		}
	}

	var agg results.Aggregated
	if err := agg.AddAll(segments); err != nil {
		return err
	}
	if err := agg.WriteFile(opts.ResultsPath, opts.Output); err != nil {
		return err
	}
	if collector != nil {
		if err := metrics.WriteTextfile(opts.MetricsFile, collector.Gatherer()); err != nil {
			return err
		}
		logrus.Infof("Metrics written to %s", opts.MetricsFile)
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	defaults := sim.DefaultSolverConfig()

	runCmd.Flags().StringVarP(&task, "task", "t", taskEvaluate, "Task to run (evaluate, optimize)")
	runCmd.Flags().StringVarP(&resultsPath, "results", "r", "Results/results.csv", "Results file")
	runCmd.Flags().StringVarP(&outputKind, "output", "o", string(results.KindMeasures), "Results content (measures, distributions)")
	runCmd.Flags().Float64VarP(&serviceLevel, "service-level", "s", 0.99, "Minimum service level for optimize, in (0,1)")
	runCmd.Flags().StringVarP(&paramsPath, "params", "p", "Parameters", "Parameter directory or YAML scenario file")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// Solver configs
	runCmd.Flags().StringVar(&solverConfigPath, "solver-config", "", "YAML solver configuration; explicit flags take precedence")
	runCmd.Flags().Float64Var(&tolerance, "tolerance", defaults.Tolerance, "Truncation error bound per uniformization step")
	runCmd.Flags().Float64Var(&segmentLength, "segment-length", defaults.SegmentLength, "Duration of each segment")
	runCmd.Flags().StringVar(&migrationMethod, "migration", defaults.Migration.Method.String(), "Migration between segments (auto, fast, accurate)")
	runCmd.Flags().Float64Var(&migrationThreshold, "migration-threshold", defaults.Migration.Threshold, "State space size product at which auto migration switches to fast")

	// Optimize and output configs
	runCmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Concurrent evaluations during optimize")
	runCmd.Flags().IntVar(&maxCapacity, "max-capacity", optimize.DefaultMaxCapacity, "Per-asset capacity search limit during optimize")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this textfile")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
