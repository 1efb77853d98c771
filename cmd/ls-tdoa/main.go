// Command ls-tdoa simulates and solves TDOA/FDOA emitter geolocation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/litescript/ls-tdoa/internal/config"
	"github.com/litescript/ls-tdoa/internal/logging"
	"github.com/litescript/ls-tdoa/internal/metrics"
	"github.com/litescript/ls-tdoa/internal/version"
)

// Global flags
var (
	configPath  string
	logLevel    string
	logFile     string
	jsonPath    string
	tuiMode     bool
	metricsFile string
	metricsPush string
)

var rootCmd = &cobra.Command{
	Use:   "ls-tdoa",
	Short: "Locate a radio emitter from time and frequency differences of arrival",
	Long: `ls-tdoa estimates the position and velocity of a radio emitter from the
signals captured by four or more receivers.

It can simulate a full capture (signal synthesis, cross-ambiguity correlation
and least-squares multilateration), run Monte Carlo error studies, correlate
two recorded IQ captures, or solve directly from measured differences.

Examples:
  ls-tdoa simulate --config scenario.yaml --tui
  ls-tdoa montecarlo --trials 500 --workers 8 --json mc.json
  ls-tdoa correlate rx0.cf32 rx1.cf32 --algorithm direct --sample-rate 21.8e6
  ls-tdoa solve --config measurements.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ls-tdoa %s\n", version.Version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	pf.StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	pf.StringVar(&jsonPath, "json", "", "write a JSON result to this file (use - for stdout)")
	pf.BoolVar(&tuiMode, "tui", false, "show results in the terminal UI")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	pf.StringVar(&metricsPush, "metrics-push", "", "push Prometheus metrics to this Pushgateway URL")

	rootCmd.AddCommand(simulateCmd, monteCarloCmd, correlateCmd, solveCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runEnv is the shared setup of every command.
type runEnv struct {
	cfg      config.Config
	logger   *logging.Logger
	recorder *metrics.Recorder
	closeLog func()
}

// setup loads the configuration, applies global flag overrides and builds
// the logger and metrics recorder.
func setup(cmd *cobra.Command) (*runEnv, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("json") {
		cfg.Output.JSON = jsonPath
	}
	if flags.Changed("metrics-file") {
		cfg.Output.MetricsFile = metricsFile
	}
	if flags.Changed("metrics-push") {
		cfg.Output.MetricsPush = metricsPush
	}

	env := &runEnv{
		cfg:      cfg,
		logger:   logging.New(cfg.LogLevel()),
		closeLog: func() {},
	}

	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		env.logger.SetOutput(f)
		env.closeLog = func() { f.Close() }
	case useTUI():
		// Log lines would tear the alternate screen
		env.logger.SetOutput(io.Discard)
	}

	if cfg.Output.MetricsFile != "" || cfg.Output.MetricsPush != "" {
		env.recorder = metrics.NewRecorder()
	}
	return env, nil
}

// useTUI reports whether the terminal UI should run: it was requested and
// stdout is a terminal.
func useTUI() bool {
	return tuiMode && term.IsTerminal(int(os.Stdout.Fd()))
}

// flushMetrics writes and pushes the collected metrics as configured.
func (e *runEnv) flushMetrics() {
	out := e.cfg.Output
	if out.MetricsFile != "" {
		if err := e.recorder.WriteTextfile(out.MetricsFile); err != nil {
			e.logger.Error("%v", err)
		} else {
			e.logger.Debug("Metrics written to %s", out.MetricsFile)
		}
	}
	if out.MetricsPush != "" {
		if err := e.recorder.Push(out.MetricsPush, out.MetricsJob); err != nil {
			e.logger.Error("%v", err)
		}
	}
}

// writeJSON writes a JSON document to path, or stdout for "-".
func writeJSON(path string, write func(io.Writer) error) error {
	if path == "-" {
		if err := write(os.Stdout); err != nil {
			return fmt.Errorf("write JSON to stdout: %w", err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create JSON file: %w", err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return fmt.Errorf("write JSON to file: %w", err)
	}
	return nil
}
