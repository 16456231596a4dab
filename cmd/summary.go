package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"

	"github.com/minesim/minesim/sim"
	"github.com/minesim/minesim/sim/ensemble"
	"github.com/minesim/minesim/sim/inputs"
	"github.com/minesim/minesim/sim/stats"
	"github.com/minesim/minesim/sim/trace"
)

// RunSummary is the JSON summary printed after a run.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	FirstYear int               `json:"first_year"`
	LastYear  int               `json:"last_year"`
	Scenarios []ScenarioSummary `json:"scenarios"`
}

// ScenarioSummary condenses one scenario's report.
type ScenarioSummary struct {
	Scenario    string                `json:"scenario"`
	Completed   int                   `json:"completed"`
	Failed      int                   `json:"failed"`
	Cancelled   int                   `json:"cancelled"`
	Commodities []CommoditySummary    `json:"commodities"`
	Trace       []*trace.TraceSummary `json:"trace,omitempty"`
}

// CommoditySummary reports mean cumulative and final-year balances.
type CommoditySummary struct {
	Commodity            string  `json:"commodity"`
	MeanCumulativeSupply float64 `json:"mean_cumulative_supply"`
	MeanCumulativeUnmet  float64 `json:"mean_cumulative_unmet"`
	FinalYearSupplyMean  float64 `json:"final_year_supply_mean"`
	FinalYearUnmetMean   float64 `json:"final_year_unmet_mean"`
}

func buildSummary(doc *inputs.Document, report *ensemble.Report) RunSummary {
	s := RunSummary{RunID: report.RunID, FirstYear: doc.Run.FirstYear, LastYear: doc.Run.LastYear}
	for _, sr := range report.Scenarios {
		ss := ScenarioSummary{Scenario: sr.Scenario, Completed: sr.Completed, Failed: sr.Failed, Cancelled: sr.Cancelled}
		scenario, _ := doc.Scenario(sr.Scenario)
		for _, c := range scenario.CommodityNames() {
			var supply, unmet []float64
			for _, o := range sr.Outcomes {
				if o.Failed() {
					continue
				}
				supply = append(supply, o.Totals.Produced[c])
				unmet = append(unmet, o.Totals.Unmet[c])
			}
			cs := CommoditySummary{Commodity: c}
			if len(supply) > 0 {
				cs.MeanCumulativeSupply = stat.Mean(supply, nil)
				cs.MeanCumulativeUnmet = stat.Mean(unmet, nil)
			}
			key := stats.Key{Scenario: sr.Scenario, Year: doc.Run.LastYear, Commodity: c}
			key.Metric = stats.MetricSupply
			if row, ok := sr.Table.Lookup(key); ok {
				cs.FinalYearSupplyMean = row.Mean
			}
			key.Metric = stats.MetricUnmet
			if row, ok := sr.Table.Lookup(key); ok {
				cs.FinalYearUnmetMean = row.Mean
			}
			ss.Commodities = append(ss.Commodities, cs)
		}
		for i := 0; i < len(sr.Outcomes); i++ {
			if tr, ok := sr.Traces[i]; ok {
				ss.Trace = append(ss.Trace, trace.Summarize(tr))
			}
		}
		s.Scenarios = append(s.Scenarios, ss)
	}
	return s
}

// printSummary writes the run summary as indented JSON under a header.
func printSummary(w io.Writer, doc *inputs.Document, report *ensemble.Report) error {
	data, err := json.MarshalIndent(buildSummary(doc, report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if _, err := fmt.Fprintf(w, "=== Simulation Summary ===\n%s\n", data); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// printValidation reports the size of a valid document.
func printValidation(w io.Writer, doc *inputs.Document) {
	stages := make(map[sim.Stage]int)
	for _, d := range doc.Deposits {
		stage := d.Stage
		if stage == "" {
			stage = sim.StageExplored
		}
		stages[stage]++
	}
	fmt.Fprintf(w, "OK: %d deposits, %d programs, %d scenarios, years %d-%d, %d iterations\n",
		len(doc.Deposits), len(doc.Programs), len(doc.Scenarios), doc.Run.FirstYear, doc.Run.LastYear, doc.Run.Iterations)
	for _, st := range sim.AllStages {
		if n := stages[st]; n > 0 {
			fmt.Fprintf(w, "  %-22s %d\n", st, n)
		}
	}
}
