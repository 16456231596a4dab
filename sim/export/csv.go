// Package export writes simulation reports to files and time-series stores.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/minesim/minesim/sim"
	"github.com/minesim/minesim/sim/ensemble"
	"github.com/minesim/minesim/sim/stats"
)

// File names written by WriteReport.
const (
	RunHeaderFile   = "run.yaml"
	StatisticsFile  = "statistics.csv"
	YearResultsFile = "year_results.csv"
	TransitionsFile = "transitions.csv"
)

var yearResultColumns = []string{
	"scenario", "iteration", "year", "commodity",
	"demand", "supply", "unmet", "oversupply",
}

var transitionColumns = []string{
	"scenario", "iteration", "year", "mine", "from", "to", "reason",
}

// RunHeader summarizes a run alongside its CSV files.
type RunHeader struct {
	RunID     string           `yaml:"run_id"`
	Run       sim.RunConfig    `yaml:"run"`
	Scenarios []ScenarioHeader `yaml:"scenarios"`
}

// ScenarioHeader records iteration counts of one scenario.
type ScenarioHeader struct {
	Name      string `yaml:"name"`
	Completed int    `yaml:"completed"`
	Failed    int    `yaml:"failed"`
	Cancelled int    `yaml:"cancelled"`
}

// NewRunHeader builds the header for report.
func NewRunHeader(report *ensemble.Report, cfg sim.RunConfig) RunHeader {
	h := RunHeader{RunID: report.RunID, Run: cfg}
	for _, sr := range report.Scenarios {
		h.Scenarios = append(h.Scenarios, ScenarioHeader{
			Name: sr.Scenario, Completed: sr.Completed, Failed: sr.Failed, Cancelled: sr.Cancelled,
		})
	}
	return h
}

// WriteReport writes the run header (YAML) and the statistics, year result
// and transition tables (CSV) into dir, creating it if needed.
func WriteReport(dir string, report *ensemble.Report, cfg sim.RunConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	headerData, err := yaml.Marshal(NewRunHeader(report, cfg))
	if err != nil {
		return fmt.Errorf("marshaling run header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RunHeaderFile), headerData, 0644); err != nil {
		return fmt.Errorf("writing run header: %w", err)
	}

	var outcomes []sim.IterationOutcome
	for _, sr := range report.Scenarios {
		outcomes = append(outcomes, sr.Outcomes...)
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{StatisticsFile, func(w io.Writer) error { return WriteStatisticsCSV(w, report.Table) }},
		{YearResultsFile, func(w io.Writer) error { return WriteYearResultsCSV(w, outcomes) }},
		{TransitionsFile, func(w io.Writer) error { return WriteTransitionsCSV(w, outcomes) }},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

// StatisticsColumns returns the statistics header for the given percentiles.
func StatisticsColumns(percentiles []float64) []string {
	cols := []string{"scenario", "metric", "commodity", "year", "count", "mean", "std_dev", "min", "max"}
	for _, p := range percentiles {
		cols = append(cols, PercentileField(p))
	}
	return cols
}

// PercentileField names the column or field holding percentile p, e.g. "p95".
func PercentileField(p float64) string {
	return "p" + strconv.FormatFloat(p, 'f', -1, 64)
}

// WriteStatisticsCSV writes one row per table summary.
func WriteStatisticsCSV(w io.Writer, table stats.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(StatisticsColumns(table.Percentiles)); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range table.Rows {
		row := []string{
			r.Scenario,
			string(r.Metric),
			r.Commodity,
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Count),
			formatFloat(r.Mean),
			formatFloat(r.StdDev),
			formatFloat(r.Min),
			formatFloat(r.Max),
		}
		for _, v := range r.Percentiles {
			row = append(row, formatFloat(v))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %s/%s/%d: %w", r.Scenario, r.Metric, r.Year, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteYearResultsCSV writes one row per (outcome, year, commodity) balance.
// Failed outcomes contribute no rows. Decimal balances are written exactly.
func WriteYearResultsCSV(w io.Writer, outcomes []sim.IterationOutcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(yearResultColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, o := range sortedOutcomes(outcomes) {
		for _, r := range o.Years {
			for _, b := range r.Balances {
				row := []string{
					r.Scenario,
					strconv.Itoa(r.Iteration),
					strconv.Itoa(r.Year),
					b.Commodity,
					b.Demand.String(),
					b.Supply.String(),
					b.Unmet.String(),
					b.Oversupply.String(),
				}
				if err := writer.Write(row); err != nil {
					return fmt.Errorf("writing CSV row %s/%d/%d: %w", r.Scenario, r.Iteration, r.Year, err)
				}
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTransitionsCSV writes every recorded stage transition.
func WriteTransitionsCSV(w io.Writer, outcomes []sim.IterationOutcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(transitionColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, o := range sortedOutcomes(outcomes) {
		for _, r := range o.Years {
			for _, t := range r.Transitions {
				row := []string{
					o.Scenario,
					strconv.Itoa(o.Iteration),
					strconv.Itoa(t.Year),
					t.MineKey,
					string(t.From),
					string(t.To),
					t.Reason,
				}
				if err := writer.Write(row); err != nil {
					return fmt.Errorf("writing CSV row %s: %w", t, err)
				}
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// sortedOutcomes returns successful outcomes ordered by scenario then iteration.
func sortedOutcomes(outcomes []sim.IterationOutcome) []sim.IterationOutcome {
	out := make([]sim.IterationOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Failed() {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scenario != out[j].Scenario {
			return out[i].Scenario < out[j].Scenario
		}
		return out[i].Iteration < out[j].Iteration
	})
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
