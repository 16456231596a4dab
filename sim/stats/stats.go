// Package stats computes cross-iteration statistics from iteration outcomes.
//
// Samples are keyed by (scenario, year, metric, commodity) and by iteration
// index. Statistics are computed over samples ordered by iteration index, so
// the result does not depend on the order in which outcomes arrive. A
// completed iteration with no row for a key (a co-product that was not mined
// that year) contributes a zero sample.
package stats

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/minesim/minesim/sim"
)

// Metric names a per-year quantity.
type Metric string

const (
	MetricDemand      Metric = "demand"
	MetricSupply      Metric = "supply"
	MetricUnmet       Metric = "unmet_demand"
	MetricOversupply  Metric = "oversupply"
	MetricOre         Metric = "ore_production"
	MetricOperating   Metric = "mines_operating"
	MetricCareMaint   Metric = "mines_care_maintenance"
	MetricDevelopment Metric = "mines_development"
	MetricDepleted    Metric = "mines_depleted"
	MetricDiscoveries Metric = "discoveries"
	MetricWarnings    Metric = "warnings"
)

// DefaultPercentiles are reported when none are configured.
var DefaultPercentiles = []float64{5, 25, 50, 75, 95}

// Key identifies one statistic. Commodity is empty for whole-system metrics.
type Key struct {
	Scenario  string
	Year      int
	Metric    Metric
	Commodity string
}

// Summary is the cross-iteration distribution of one Key.
type Summary struct {
	Key
	Count       int
	Mean        float64
	StdDev      float64
	Min         float64
	Max         float64
	Percentiles []float64 // aligned with Table.Percentiles
}

// Table is the statistics table for one or more scenarios, sorted by
// scenario, metric, commodity and year.
type Table struct {
	Percentiles []float64
	Rows        []Summary
}

// Lookup returns the row for k.
func (t Table) Lookup(k Key) (Summary, bool) {
	for _, r := range t.Rows {
		if r.Key == k {
			return r, true
		}
	}
	return Summary{}, false
}

// Scenario returns the rows of one scenario.
func (t Table) Scenario(name string) Table {
	out := Table{Percentiles: t.Percentiles}
	for _, r := range t.Rows {
		if r.Scenario == name {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Aggregator collects iteration outcomes. It is safe for concurrent use.
type Aggregator struct {
	mu          sync.Mutex
	percentiles []float64
	samples     map[Key]map[int]float64 // key → iteration → value
	completed   map[string]map[int]bool // scenario → completed iterations
	failed      map[string]int
}

// NewAggregator creates an aggregator reporting the given percentiles
// (DefaultPercentiles when none are given).
func NewAggregator(percentiles ...float64) *Aggregator {
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	ps := append([]float64(nil), percentiles...)
	sort.Float64s(ps)
	return &Aggregator{
		percentiles: ps,
		samples:     make(map[Key]map[int]float64),
		completed:   make(map[string]map[int]bool),
		failed:      make(map[string]int),
	}
}

// Add merges one outcome. Failed outcomes are counted and contribute no samples.
func (a *Aggregator) Add(o sim.IterationOutcome) {
	extracted := Samples(o)

	a.mu.Lock()
	defer a.mu.Unlock()
	if o.Failed() {
		a.failed[o.Scenario]++
		return
	}
	done, ok := a.completed[o.Scenario]
	if !ok {
		done = make(map[int]bool)
		a.completed[o.Scenario] = done
	}
	done[o.Iteration] = true
	for k, v := range extracted {
		byIter, ok := a.samples[k]
		if !ok {
			byIter = make(map[int]float64)
			a.samples[k] = byIter
		}
		byIter[o.Iteration] = v
	}
}

// Completed returns the number of successful iterations of scenario.
func (a *Aggregator) Completed(scenario string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.completed[scenario])
}

// Failed returns the number of failed iterations of scenario.
func (a *Aggregator) Failed(scenario string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failed[scenario]
}

// Table computes statistics for every collected key.
func (a *Aggregator) Table() Table {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := Table{Percentiles: append([]float64(nil), a.percentiles...)}
	for k, byIter := range a.samples {
		t.Rows = append(t.Rows, summarize(k, a.fill(k.Scenario, byIter), a.percentiles))
	}
	sort.Slice(t.Rows, func(i, j int) bool {
		x, y := t.Rows[i].Key, t.Rows[j].Key
		if x.Scenario != y.Scenario {
			return x.Scenario < y.Scenario
		}
		if x.Metric != y.Metric {
			return x.Metric < y.Metric
		}
		if x.Commodity != y.Commodity {
			return x.Commodity < y.Commodity
		}
		return x.Year < y.Year
	})
	return t
}

// fill returns byIter with a zero sample for every completed iteration of
// scenario that has none.
func (a *Aggregator) fill(scenario string, byIter map[int]float64) map[int]float64 {
	done := a.completed[scenario]
	if len(byIter) == len(done) {
		return byIter
	}
	filled := make(map[int]float64, len(done))
	for it := range done {
		filled[it] = byIter[it]
	}
	return filled
}

func summarize(k Key, byIter map[int]float64, percentiles []float64) Summary {
	iters := make([]int, 0, len(byIter))
	for it := range byIter {
		iters = append(iters, it)
	}
	sort.Ints(iters)
	values := make([]float64, len(iters))
	for i, it := range iters {
		values[i] = byIter[it]
	}

	s := Summary{Key: k, Count: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		s.StdDev = 0
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s.Percentiles = make([]float64, len(percentiles))
	for i, p := range percentiles {
		s.Percentiles[i] = Percentile(sorted, p)
	}
	return s
}

// Percentile returns the p-th percentile (0-100) of sorted data, linearly
// interpolating between closest ranks. Empty data yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := p / 100.0 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower < 0 {
		return sorted[0]
	}
	if upper >= n {
		return sorted[n-1]
	}
	if lower == upper {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[upper]-sorted[lower])*(rank-float64(lower))
}

// Samples extracts every metric of a successful outcome.
func Samples(o sim.IterationOutcome) map[Key]float64 {
	out := make(map[Key]float64)
	for i := range o.Years {
		r := &o.Years[i]
		key := func(m Metric, commodity string) Key {
			return Key{Scenario: o.Scenario, Year: r.Year, Metric: m, Commodity: commodity}
		}
		for _, b := range r.Balances {
			out[key(MetricDemand, b.Commodity)] = b.Demand.InexactFloat64()
			out[key(MetricSupply, b.Commodity)] = b.Supply.InexactFloat64()
			out[key(MetricUnmet, b.Commodity)] = b.Unmet.InexactFloat64()
			out[key(MetricOversupply, b.Commodity)] = b.Oversupply.InexactFloat64()
		}
		out[key(MetricOre, "")] = r.OreProduction
		out[key(MetricOperating, "")] = float64(r.StageCounts[sim.StageOperating])
		out[key(MetricCareMaint, "")] = float64(r.StageCounts[sim.StageCareAndMaintenance])
		out[key(MetricDevelopment, "")] = float64(r.StageCounts[sim.StageDevelopment])
		out[key(MetricDepleted, "")] = float64(r.StageCounts[sim.StageDepleted])
		out[key(MetricDiscoveries, "")] = float64(len(r.Discoveries))
		out[key(MetricWarnings, "")] = float64(len(r.Warnings))
	}
	return out
}
