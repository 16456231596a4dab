package sim

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/minesim/minesim/sim/trace"
)

// Allocation is the allocator's decision for one candidate mine.
type Allocation struct {
	Mine      *Mine
	Available float64
	Ore       float64
	Baseline  bool
	Yields    []Yield
	Trigger   string
}

// Output returns commodity tonnes recovered from the allocated ore.
func (a Allocation) Output() map[string]float64 {
	out := make(map[string]float64, len(a.Yields))
	for _, y := range a.Yields {
		out[y.Commodity] += a.Ore * y.PerOre()
	}
	return out
}

// Candidate is a producing mine and its available ore capacity for the year.
type Candidate struct {
	Mine      *Mine
	Available float64
}

// Prospector brings new capacity into supply when ranked candidates leave a
// balanced commodity's residual demand above its threshold.
type Prospector interface {
	// Prospect returns a new producing candidate whose primary commodity is
	// commodity, or false when none can be found this year.
	Prospect(year int, commodity string) (Candidate, bool)
}

// maxProspects bounds demanded discoveries per commodity and year.
const maxProspects = 1000

// Allocator balances candidate capacity against demand each year.
type Allocator struct {
	policy     PriorityPolicy
	scenario   *DemandScenario
	prospector Prospector
}

// NewAllocator creates an allocator ranking with policy against scenario.
func NewAllocator(policy PriorityPolicy, scenario *DemandScenario) *Allocator {
	return &Allocator{policy: policy, scenario: scenario}
}

// WithProspector makes the allocator close remaining gaps with demanded
// discoveries from p.
func (a *Allocator) WithProspector(p Prospector) *Allocator {
	a.prospector = p
	return a
}

// Allocate decides each candidate's ore production and settles per-commodity
// balances. demand holds this year's effective demand per commodity.
//
// Baseline mines produce their full available capacity first. Swing mines
// follow in priority order; each produces just enough ore to close the
// largest remaining gap among its triggering commodities, capped by its
// available capacity. Allocation never exceeds available capacity. With a
// prospector, a third pass adds demanded discoveries while a balanced
// commodity stays above its threshold. Mines the policy screens out are
// offered nothing.
func (a *Allocator) Allocate(year int, candidates []Candidate, demand map[string]float64, tracer *trace.SimulationTrace) ([]Allocation, []CommodityBalance) {
	ordered := make([]*Mine, 0, len(candidates))
	available := make(map[*Mine]float64, len(candidates))
	for _, c := range candidates {
		if c.Available <= 0 || !admits(a.policy, c.Mine) {
			continue
		}
		ordered = append(ordered, c.Mine)
		available[c.Mine] = c.Available
	}
	rankMines(a.policy, ordered)

	residual := make(map[string]float64, len(demand))
	for c, q := range demand {
		residual[c] = q
	}
	supply := make(map[string]decimal.Decimal)

	allocs := make([]Allocation, len(ordered))
	for i, m := range ordered {
		allocs[i] = Allocation{Mine: m, Available: available[m], Baseline: a.policy.Baseline(m), Yields: m.Yields()}
	}

	// Pass 1: baseline.
	for i := range allocs {
		if allocs[i].Baseline {
			allocs[i].Ore = allocs[i].Available
			a.book(&allocs[i], residual, supply)
		}
	}
	// Pass 2: swing capacity, greedy in priority order.
	for i := range allocs {
		if allocs[i].Baseline {
			continue
		}
		need, trigger := a.oreNeeded(allocs[i].Yields, residual)
		allocs[i].Ore = math.Min(allocs[i].Available, need)
		allocs[i].Trigger = trigger
		a.book(&allocs[i], residual, supply)
	}
	// Pass 3: demanded discoveries.
	if a.prospector != nil {
		allocs = a.prospect(year, allocs, residual, supply)
	}

	if tracer.Enabled() {
		for i, al := range allocs {
			tracer.RecordAllocation(trace.AllocationRecord{
				Year:      year,
				MineKey:   al.Mine.Key,
				Rank:      i,
				Tier:      a.policy.Tier(al.Mine),
				Score:     a.policy.Score(al.Mine),
				Baseline:  al.Baseline,
				Available: al.Available,
				Ore:       al.Ore,
				Trigger:   al.Trigger,
			})
		}
	}

	commodities := make(map[string]bool, len(demand)+len(supply))
	for c := range demand {
		commodities[c] = true
	}
	for c := range supply {
		commodities[c] = true
	}
	names := make([]string, 0, len(commodities))
	for c := range commodities {
		names = append(names, c)
	}
	sort.Strings(names)

	balances := make([]CommodityBalance, 0, len(names))
	for _, c := range names {
		s, ok := supply[c]
		if !ok {
			s = decimal.Zero
		}
		balances = append(balances, newBalance(c, decimal.NewFromFloat(demand[c]), s))
	}
	return allocs, balances
}

// oreNeeded returns the ore required to close the largest open gap among the
// yields' triggering commodities, and that commodity.
func (a *Allocator) oreNeeded(yields []Yield, residual map[string]float64) (float64, string) {
	need, trigger := 0.0, ""
	for _, y := range yields {
		if !y.Balancing {
			continue
		}
		d, ok := a.scenario.Lookup(y.Commodity)
		if !ok || !d.Balanced() {
			continue
		}
		r := residual[y.Commodity]
		if r <= d.Threshold {
			continue
		}
		perOre := y.PerOre() * d.IntermediateFactor()
		if perOre <= 0 {
			continue
		}
		if ore := r / perOre; ore > need {
			need, trigger = ore, y.Commodity
		}
	}
	return need, trigger
}

// prospect asks the prospector for new mines, commodity by commodity in
// scenario order, until each balanced residual is at or below its threshold.
func (a *Allocator) prospect(year int, allocs []Allocation, residual map[string]float64, supply map[string]decimal.Decimal) []Allocation {
	for i := range a.scenario.Commodities {
		d := &a.scenario.Commodities[i]
		if !d.Balanced() {
			continue
		}
		for n := 0; residual[d.Commodity] > d.Threshold; n++ {
			if n == maxProspects {
				logrus.Warnf("%d: %s residual %.1f still open after %d demanded discoveries", year, d.Commodity, residual[d.Commodity], n)
				break
			}
			c, ok := a.prospector.Prospect(year, d.Commodity)
			if !ok {
				break
			}
			al := Allocation{Mine: c.Mine, Available: c.Available, Yields: c.Mine.Yields(), Trigger: d.Commodity}
			if perOre := yieldOf(al.Yields, d.Commodity) * d.IntermediateFactor(); perOre > 0 {
				al.Ore = math.Min(al.Available, residual[d.Commodity]/perOre)
			}
			a.book(&al, residual, supply)
			allocs = append(allocs, al)
			if al.Ore <= 0 {
				break
			}
		}
	}
	return allocs
}

// yieldOf returns commodity tonnes per ore tonne of commodity in yields.
func yieldOf(yields []Yield, commodity string) float64 {
	for _, y := range yields {
		if y.Commodity == commodity {
			return y.PerOre()
		}
	}
	return 0
}

// book adds an allocation's output to residuals and the supply ledger. Supply
// counted against demand is output times intermediate recovery.
func (a *Allocator) book(al *Allocation, residual map[string]float64, supply map[string]decimal.Decimal) {
	if al.Ore <= 0 {
		return
	}
	for _, y := range al.Yields {
		counted := al.Ore * y.PerOre()
		if d, ok := a.scenario.Lookup(y.Commodity); ok {
			counted *= d.IntermediateFactor()
		}
		residual[y.Commodity] -= counted
		supply[y.Commodity] = supply[y.Commodity].Add(decimal.NewFromFloat(counted))
	}
}
