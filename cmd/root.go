package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/trace"
)

var (
	// CLI flags for the run command
	systemPath     string   // System descriptor (islands, power models, energy kernel)
	tasksetPath    string   // Taskset descriptor (tasks, servers, resources)
	duration       int64    // Length of each run (in ticks)
	runs           int      // Number of independent runs
	seed           int64    // Master seed of the partitioned RNG
	tracePaths     []string // Trace outputs, format chosen by extension
	powerTracePath string   // CSV output of the power sampler
	powerPeriod    int64    // Sampling period of the power trace (in ticks)
	logLevel       string   // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "partsim",
	Short: "Discrete-event simulator for real-time multi-core platforms",
}

// runCmd builds the system from the descriptors and simulates it
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a taskset on a platform",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if systemPath == "" || tasksetPath == "" {
			logrus.Fatalf("Both --system and --taskset are required")
		}
		if duration <= 0 || runs <= 0 {
			logrus.Fatalf("--duration and --runs must be positive, got %d and %d", duration, runs)
		}

		sysCfg, err := LoadSystem(systemPath)
		if err != nil {
			logrus.Fatalf("Failed to load system: %v", err)
		}
		tsCfg, err := LoadTaskset(tasksetPath)
		if err != nil {
			logrus.Fatalf("Failed to load taskset: %v", err)
		}

		startTime := time.Now()
		report, err := simulate(sysCfg, tsCfg, runOptions{
			duration:    sim.Tick(duration),
			runs:        runs,
			seed:        seed,
			traces:      tracePaths,
			powerTrace:  powerTracePath,
			powerPeriod: sim.Tick(powerPeriod),
		})
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if err := report.Print(os.Stdout); err != nil {
			logrus.Fatalf("Failed to print the summary: %v", err)
		}
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

type runOptions struct {
	duration    sim.Tick
	runs        int
	seed        int64
	traces      []string
	powerTrace  string
	powerPeriod sim.Tick
}

// simulate builds the system, runs the batch and flushes every output.
func simulate(sysCfg *SystemConfig, tsCfg *TasksetConfig, opts runOptions) (*Report, error) {
	s := sim.NewSimulation(sim.NewSimulationKey(opts.seed))
	system, err := Build(s, sysCfg, tsCfg)
	if err != nil {
		return nil, err
	}

	mem := &trace.MemorySink{}
	tracer := trace.NewTracer(mem)
	for _, p := range opts.traces {
		sink, err := trace.Open(p)
		if err != nil {
			return nil, err
		}
		tracer.AddSink(sink)
	}
	tracer.Attach(system.Hookables()...)

	if opts.powerPeriod <= 0 {
		opts.powerPeriod = 1
	}
	power, err := trace.NewPowerTrace(s, "", opts.powerPeriod, system.CPUs())
	if err != nil {
		return nil, err
	}
	stats := newBatchStats(system.Tasks, power, mem)
	s.AddStat(stats)

	logrus.Infof("Starting %d run(s) of %v ticks, %d tasks on %d cpus, seed %d",
		opts.runs, opts.duration, len(system.Tasks), len(system.CPUs()), opts.seed)
	s.Run(opts.duration, opts.runs)

	if err := tracer.Close(); err != nil {
		return nil, fmt.Errorf("closing traces: %w", err)
	}
	if opts.powerTrace != "" {
		if err := writePowerTrace(opts.powerTrace, power); err != nil {
			return nil, err
		}
	}
	return stats.Report(opts.duration), nil
}

func writePowerTrace(path string, power *trace.PowerTrace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := power.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&systemPath, "system", "", "System descriptor (YAML)")
	runCmd.Flags().StringVar(&tasksetPath, "taskset", "", "Taskset descriptor (YAML)")
	runCmd.Flags().Int64Var(&duration, "duration", 10000, "Length of each run (in ticks)")
	runCmd.Flags().IntVar(&runs, "runs", 1, "Number of independent runs")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for random arrivals and execution times")
	runCmd.Flags().StringArrayVar(&tracePaths, "trace", nil, "Trace output (.txt, .json, .sqlite); repeatable")
	runCmd.Flags().StringVar(&powerTracePath, "power-trace", "", "CSV output of the per-CPU power samples")
	runCmd.Flags().Int64Var(&powerPeriod, "power-period", 1, "Sampling period of the power trace (in ticks)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
