// Package ensemble runs every iteration of every demand scenario and
// aggregates the results.
//
// Iterations of a scenario are dispatched to a bounded worker pool. They share
// only read-only inputs, so no locking happens inside an iteration; the
// aggregator merge is the only synchronized step. All iterations of a scenario
// finish before its statistics are computed.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/minesim/minesim/sim"
	"github.com/minesim/minesim/sim/stats"
	"github.com/minesim/minesim/sim/trace"
)

// ScenarioReport is the result of all iterations of one scenario.
type ScenarioReport struct {
	Scenario string
	// Outcomes holds one entry per dispatched iteration, ordered by iteration.
	// Cancelled iterations that never started are absent.
	Outcomes  []sim.IterationOutcome
	Traces    map[int]*trace.SimulationTrace // by iteration; nil unless decision tracing is on
	Completed int
	Failed    int
	Cancelled int
	Table     stats.Table
}

// Report is the result of a full run.
type Report struct {
	RunID     string
	Scenarios []ScenarioReport
	Table     stats.Table // every scenario
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds the number of concurrently running iterations.
// Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithPercentiles sets the reported percentiles.
func WithPercentiles(ps ...float64) Option {
	return func(r *Runner) { r.percentiles = ps }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithScenarios restricts the run to the named scenarios, in the given order.
func WithScenarios(names ...string) Option {
	return func(r *Runner) { r.scenarios = names }
}

// Runner orchestrates scenario × iteration runs.
type Runner struct {
	in          *sim.Inputs
	cfg         sim.RunConfig
	workers     int
	percentiles []float64
	runID       string
	scenarios   []string
}

// NewRunner validates inputs and configuration. Configuration errors are
// returned here, before any iteration executes.
func NewRunner(in *sim.Inputs, cfg sim.RunConfig, opts ...Option) (*Runner, error) {
	if err := sim.Validate(in, cfg); err != nil {
		return nil, err
	}
	r := &Runner{in: in, cfg: cfg, workers: cfg.Workers}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	for _, name := range r.scenarios {
		if _, ok := in.Scenario(name); !ok {
			return nil, &sim.ConfigError{Field: "scenario", Msg: fmt.Sprintf("unknown scenario %q", name)}
		}
	}
	if len(r.scenarios) == 0 {
		for _, s := range in.Scenarios {
			r.scenarios = append(r.scenarios, s.Name)
		}
	}
	return r, nil
}

// RunID returns the run's identifier.
func (r *Runner) RunID() string { return r.runID }

// Run executes every selected scenario in order. On cancellation it stops
// dispatching, waits for in-flight iterations and returns the partial report
// together with the context error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	ctx, span := StartSpan(ctx, "ensemble.run",
		attribute.String("run_id", r.runID),
		attribute.Int("iterations", r.cfg.Iterations),
		attribute.Int("workers", r.workers),
	)
	defer span.End()

	agg := stats.NewAggregator(r.percentiles...)
	report := &Report{RunID: r.runID}
	var err error
	for _, name := range r.scenarios {
		scenario, _ := r.in.Scenario(name)
		report.Scenarios = append(report.Scenarios, r.runScenario(ctx, scenario, agg))
		if err = ctx.Err(); err != nil {
			logrus.Warnf("run %s cancelled during scenario %q", r.runID, name)
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			break
		}
	}
	report.Table = agg.Table()
	for i := range report.Scenarios {
		report.Scenarios[i].Table = report.Table.Scenario(report.Scenarios[i].Scenario)
	}
	return report, err
}

func (r *Runner) runScenario(ctx context.Context, scenario *sim.DemandScenario, agg *stats.Aggregator) ScenarioReport {
	ctx, span := StartSpan(ctx, "ensemble.scenario", attribute.String("scenario", scenario.Name))
	defer span.End()
	logrus.Infof("scenario %q: %d iterations on %d workers", scenario.Name, r.cfg.Iterations, r.workers)

	outcomes := make([]sim.IterationOutcome, r.cfg.Iterations)
	dispatched := make([]bool, r.cfg.Iterations)
	cancelled := make([]bool, r.cfg.Iterations)
	var traces []*trace.SimulationTrace
	tracing := trace.TraceLevel(r.cfg.TraceLevel) == trace.TraceLevelDecisions
	if tracing {
		traces = make([]*trace.SimulationTrace, r.cfg.Iterations)
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := 0; i < r.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		dispatched[i] = true
		g.Go(func() error {
			var tr *trace.SimulationTrace
			if tracing {
				tr = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
				traces[i] = tr
			}
			o := r.runIteration(ctx, scenario, i, tr)
			outcomes[i] = o
			if o.Failed() && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded)) {
				cancelled[i] = true
				return nil
			}
			agg.Add(o)
			return nil
		})
	}
	_ = g.Wait() // iterations record errors in their outcomes

	sr := ScenarioReport{Scenario: scenario.Name}
	if tracing {
		sr.Traces = make(map[int]*trace.SimulationTrace)
	}
	for i := range outcomes {
		if !dispatched[i] {
			sr.Cancelled++
			continue
		}
		sr.Outcomes = append(sr.Outcomes, outcomes[i])
		switch {
		case cancelled[i]:
			sr.Cancelled++
		case outcomes[i].Failed():
			sr.Failed++
		default:
			sr.Completed++
		}
		if tracing && traces[i] != nil {
			sr.Traces[i] = traces[i]
		}
	}

	span.SetAttributes(
		attribute.Int("iterations.completed", sr.Completed),
		attribute.Int("iterations.failed", sr.Failed),
		attribute.Int("iterations.cancelled", sr.Cancelled),
	)
	if sr.Failed > 0 {
		logrus.Warnf("scenario %q: %d of %d iterations failed", scenario.Name, sr.Failed, r.cfg.Iterations)
	}
	logrus.Infof("scenario %q: %d completed, %d failed, %d cancelled", scenario.Name, sr.Completed, sr.Failed, sr.Cancelled)
	return sr
}

func (r *Runner) runIteration(ctx context.Context, scenario *sim.DemandScenario, i int, tr *trace.SimulationTrace) sim.IterationOutcome {
	ctx, span := StartSpan(ctx, "ensemble.iteration",
		attribute.String("scenario", scenario.Name),
		attribute.Int("iteration", i),
	)
	defer span.End()

	o, err := sim.RunIteration(ctx, r.in, r.cfg, scenario, i, tr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logrus.Warnf("scenario %q iteration %d failed: %v", scenario.Name, i, err)
		}
	}
	return o
}
