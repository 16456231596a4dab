package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minesim/minesim/sim"
	"github.com/minesim/minesim/sim/ensemble"
	"github.com/minesim/minesim/sim/export"
	"github.com/minesim/minesim/sim/inputs"
)

var (
	configPath    string   // Path to the YAML input document
	iterations    int      // Monte-Carlo iterations per scenario
	seed          int64    // Master seed
	workers       int      // Concurrent iterations (0 = GOMAXPROCS)
	priority      string   // Allocation priority policy
	development   string   // Development policy
	scenarioNames []string // Scenarios to run (default all)
	traceLevel    string   // Decision trace level
	outputDir     string   // Directory for CSV/YAML output
	otelStdout    bool     // Export OpenTelemetry spans to stderr
	logLevel      string   // Log verbosity level

	influxURL    string
	influxToken  string
	influxOrg    string
	influxBucket string
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "minesim",
	Short: "Monte-Carlo simulator of primary mine supply against demand scenarios",
}

// runCmd executes the ensemble using the input document and CLI overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every scenario and report cross-iteration statistics",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		doc, err := loadDocument(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		startTime := time.Now()
		if _, err := runSimulation(ctx, doc, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// validateCmd checks an input document without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an input document",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		doc, err := loadDocument(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		printValidation(os.Stdout, doc)
	},
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadDocument decodes --config, applies explicitly set flags over the
// document's run section, then validates.
func loadDocument(cmd *cobra.Command) (*inputs.Document, error) {
	if configPath == "" {
		return nil, errors.New("--config is required")
	}
	doc, err := inputs.DecodeFile(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, &doc.Run)
	if err := sim.Validate(&doc.Inputs, doc.Run); err != nil {
		return nil, fmt.Errorf("invalid inputs in %s:\n%w", configPath, err)
	}
	return doc, nil
}

// applyOverrides copies flags the user set explicitly into cfg. Unset flags
// leave the document's values in place.
func applyOverrides(cmd *cobra.Command, cfg *sim.RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		cfg.Iterations = iterations
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("priority") {
		cfg.Priority = priority
	}
	if flags.Changed("development") {
		cfg.Development = development
	}
	if flags.Changed("trace-level") {
		cfg.TraceLevel = traceLevel
	}
}

// runSimulation runs the ensemble and sends the report to every configured
// sink. A cancelled run still exports its partial report.
func runSimulation(ctx context.Context, doc *inputs.Document, out io.Writer) (*ensemble.Report, error) {
	runner, err := ensemble.NewRunner(&doc.Inputs, doc.Run, ensemble.WithScenarios(scenarioNames...))
	if err != nil {
		return nil, err
	}

	var spanWriter io.Writer
	if otelStdout {
		spanWriter = os.Stderr
	}
	shutdown, err := ensemble.InitTracing(spanWriter, runner.RunID())
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logrus.Warnf("flushing spans: %v", err)
		}
	}()

	logrus.Infof("Starting run %s: %d iterations, years %d-%d, seed %d",
		runner.RunID(), doc.Run.Iterations, doc.Run.FirstYear, doc.Run.LastYear, doc.Run.Seed)
	report, runErr := runner.Run(ctx)

	if outputDir != "" {
		if err := export.WriteReport(outputDir, report, doc.Run); err != nil {
			return report, err
		}
		logrus.Infof("Wrote results to %s", outputDir)
	}
	influx := export.InfluxConfig{URL: influxURL, Token: influxToken, Org: influxOrg, Bucket: influxBucket}
	if influx.Enabled() {
		w, err := export.NewInfluxWriter(influx)
		if err != nil {
			return report, err
		}
		defer w.Close()
		if err := w.Write(context.WithoutCancel(ctx), report.RunID, report.Table); err != nil {
			return report, err
		}
	}
	if err := printSummary(out, doc, report); err != nil {
		return report, err
	}
	return report, runErr
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVar(&configPath, "config", "", "Path to the YAML input document")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().IntVar(&iterations, "iterations", 100, "Monte-Carlo iterations per scenario (overrides run.iterations)")
		c.Flags().Int64Var(&seed, "seed", 42, "Master seed (overrides run.seed)")
		c.Flags().StringVar(&priority, "priority", "", "Allocation priority policy (overrides run.priority)")
		c.Flags().StringVar(&development, "development", "", "Development policy (overrides run.development)")
		c.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level: none, decisions (overrides run.trace_level)")
	}

	runCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent iterations, 0 for GOMAXPROCS (overrides run.workers)")
	runCmd.Flags().StringSliceVar(&scenarioNames, "scenario", nil, "Scenarios to run (default all)")
	runCmd.Flags().StringVar(&outputDir, "output", "", "Directory for run.yaml and CSV results")
	runCmd.Flags().BoolVar(&otelStdout, "otel-stdout", false, "Export OpenTelemetry spans to stderr")

	// InfluxDB sink
	runCmd.Flags().StringVar(&influxURL, "influx-url", "", "InfluxDB v2 URL; statistics are written when set")
	runCmd.Flags().StringVar(&influxToken, "influx-token", os.Getenv("INFLUXDB_TOKEN"), "InfluxDB API token")
	runCmd.Flags().StringVar(&influxOrg, "influx-org", "", "InfluxDB organization")
	runCmd.Flags().StringVar(&influxBucket, "influx-bucket", "", "InfluxDB bucket")

	rootCmd.AddCommand(runCmd, validateCmd)
}
