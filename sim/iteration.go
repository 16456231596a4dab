package sim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/minesim/minesim/sim/trace"
)

// IterationState is everything one iteration mutates. It is built fresh for
// each (scenario, iteration) pair and never shared.
type IterationState struct {
	Scenario  *DemandScenario
	Iteration int
	Mines     []*Mine // sorted by key
	Totals    IterationTotals
	Streams   *PartitionedRNG

	cfg          RunConfig
	index        map[string]*Mine
	programs     []*programRuntime
	discoverySeq map[string]int
	carried      map[string]float64 // commodity → carried signed gap
	pending      []StageTransition  // transitions taken at creation, reported in the first year
	allocator    *Allocator
	development  DevelopmentPolicy

	tracer      *trace.SimulationTrace // current year's trace, for Prospect
	prospected  prospected
	prospectErr error
}

// prospected collects one year's demanded discoveries.
type prospected struct {
	candidates  []Candidate
	transitions []StageTransition
	keys        []string
}

// NewIterationState deep-copies inputs into a fresh iteration state with
// streams derived from the master seed, scenario and iteration index.
func NewIterationState(in *Inputs, cfg RunConfig, scenario *DemandScenario, iteration int) (*IterationState, error) {
	s := &IterationState{
		Scenario:  scenario,
		Iteration: iteration,
		Totals: IterationTotals{
			Produced: make(map[string]float64),
			Unmet:    make(map[string]float64),
		},
		Streams:      NewPartitionedRNG(NewSimulationKey(cfg.Seed).ForIteration(scenario.Name, iteration)),
		cfg:          cfg,
		index:        make(map[string]*Mine, len(in.Deposits)),
		discoverySeq: make(map[string]int),
		carried:      make(map[string]float64),
		allocator:    NewAllocator(NewPriorityPolicy(cfg.Priority), scenario),
		development:  NewDevelopmentPolicy(cfg.Development, cfg.ReserveMargin),
	}

	for _, rec := range in.Deposits {
		m := NewMine(rec)
		if m.InitialResource <= 0 && m.Stage != StageDepleted {
			t, err := m.transition(StageDepleted, cfg.FirstYear, "zero initial resource")
			if err != nil {
				return nil, err
			}
			s.pending = append(s.pending, t)
		}
		s.addMine(m)
	}

	for i := range in.Programs {
		rt, err := newProgramRuntime(&in.Programs[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		s.programs = append(s.programs, rt)
		if rt.program.DemandedDiscovery {
			s.allocator.WithProspector(s)
		}
	}
	sortPrograms(s.programs)
	return s, nil
}

// addMine inserts m keeping Mines sorted by key.
func (s *IterationState) addMine(m *Mine) {
	i := sort.Search(len(s.Mines), func(i int) bool { return s.Mines[i].Key >= m.Key })
	s.Mines = append(s.Mines, nil)
	copy(s.Mines[i+1:], s.Mines[i:])
	s.Mines[i] = m
	s.index[m.Key] = m
}

// Mine returns the mine with key.
func (s *IterationState) Mine(key string) (*Mine, bool) {
	m, ok := s.index[key]
	return m, ok
}

// effectiveDemand returns this year's demand per scenario commodity: base
// demand plus the carried gap, floored at zero.
func (s *IterationState) effectiveDemand(year int) map[string]float64 {
	demand := make(map[string]float64, len(s.Scenario.Commodities))
	for i := range s.Scenario.Commodities {
		d := &s.Scenario.Commodities[i]
		base, _ := d.Base(year)
		demand[d.Commodity] = math.Max(0, base+s.carried[d.Commodity])
	}
	return demand
}

// Step advances the iteration by one year and returns its snapshot.
// Order: discovery, development, allocation, reactivation, production,
// idle and closure transitions, then demand carry.
func (s *IterationState) Step(year int, tracer *trace.SimulationTrace) (YearResult, error) {
	result := YearResult{Scenario: s.Scenario.Name, Iteration: s.Iteration, Year: year}
	if len(s.pending) > 0 {
		result.Transitions = append(result.Transitions, s.pending...)
		s.pending = nil
	}

	ts, discovered, err := s.explore(year, tracer)
	if err != nil {
		return result, err
	}
	result.Transitions = append(result.Transitions, ts...)
	result.Discoveries = discovered

	ts, err = s.develop(year)
	if err != nil {
		return result, err
	}
	result.Transitions = append(result.Transitions, ts...)

	var candidates []Candidate
	for _, m := range s.Mines {
		if !m.Stage.Producing() {
			continue
		}
		c, err := m.AvailableCapacity(year)
		if err != nil {
			return result, err
		}
		candidates = append(candidates, Candidate{Mine: m, Available: c})
	}

	demand := s.effectiveDemand(year)
	s.tracer, s.prospected = tracer, prospected{}
	allocs, balances := s.allocator.Allocate(year, candidates, demand, tracer)
	s.tracer = nil
	if s.prospectErr != nil {
		return result, s.prospectErr
	}
	result.Balances = balances
	result.Transitions = append(result.Transitions, s.prospected.transitions...)
	result.Discoveries = append(result.Discoveries, s.prospected.keys...)
	candidates = append(candidates, s.prospected.candidates...)

	allocated := make(map[*Mine]float64, len(allocs))
	for _, al := range allocs {
		allocated[al.Mine] = al.Ore
	}

	for _, al := range allocs {
		m := al.Mine
		if al.Ore > 0 && m.Stage == StageCareAndMaintenance {
			t, err := m.transition(StageOperating, year, "reactivated by demand")
			if err != nil {
				return result, err
			}
			m.IdleYears = 0
			result.Transitions = append(result.Transitions, t)
		}
		warnings := m.produce(al.Ore, year)
		for _, w := range warnings {
			logrus.Warnf("[%s/%d] %d: %s %s (%v), clamped", s.Scenario.Name, s.Iteration, year, w.MineKey, w.Kind, w.Value)
		}
		result.Warnings = append(result.Warnings, warnings...)
		result.OreProduction += math.Max(0, al.Ore)
	}

	ts, err = s.settle(year, allocated)
	if err != nil {
		return result, err
	}
	result.Transitions = append(result.Transitions, ts...)

	for _, c := range candidates {
		m := c.Mine
		row := MineProduction{
			Key:       m.Key,
			Stage:     m.Stage,
			Available: c.Available,
			Ore:       allocated[m],
			Output:    make(map[string]float64),
			Grade:     make(map[string]float64),
		}
		result.Production = append(result.Production, row)
	}
	sort.Slice(result.Production, func(i, j int) bool { return result.Production[i].Key < result.Production[j].Key })
	for _, al := range allocs {
		row, _ := result.MineProduction(al.Mine.Key)
		for c, v := range al.Output() {
			row.Output[c] += v
		}
		for _, y := range al.Yields {
			row.Grade[y.Commodity] = y.Grade
		}
	}

	for _, m := range s.Mines {
		if m.Stage == StageOperating {
			m.OperatingYears++
		}
		if m.Stage != StageDepleted {
			m.YearsInStage++
		}
	}

	for _, b := range balances {
		d, ok := s.Scenario.Lookup(b.Commodity)
		if ok && d.Carry > 0 {
			s.carried[b.Commodity] = b.Gap().InexactFloat64() * d.Carry
		}
		s.Totals.Produced[b.Commodity] += b.Supply.InexactFloat64()
		s.Totals.Unmet[b.Commodity] += b.Unmet.InexactFloat64()
	}
	s.Totals.OreProduced += result.OreProduction
	s.Totals.Warnings += len(result.Warnings)

	result.StageCounts = make(map[Stage]int, len(AllStages))
	for _, m := range s.Mines {
		result.StageCounts[m.Stage]++
	}

	if !decimalIdentityHolds(balances) {
		return result, fmt.Errorf("%w: supply ledger out of balance in %d", ErrNumericState, year)
	}
	return result, nil
}

// decimalIdentityHolds checks supply + unmet - oversupply == demand.
func decimalIdentityHolds(balances []CommodityBalance) bool {
	for _, b := range balances {
		if !b.Supply.Add(b.Unmet).Sub(b.Oversupply).Equal(b.Demand) {
			return false
		}
	}
	return true
}

// RunIteration simulates every year of cfg for one (scenario, iteration) pair.
// ctx is checked at each year boundary; cancellation returns ctx.Err() wrapped.
// The returned results are ordered by year. tracer may be nil.
func RunIteration(ctx context.Context, in *Inputs, cfg RunConfig, scenario *DemandScenario, iteration int, tracer *trace.SimulationTrace) (IterationOutcome, error) {
	outcome := IterationOutcome{Scenario: scenario.Name, Iteration: iteration}
	s, err := NewIterationState(in, cfg, scenario, iteration)
	if err != nil {
		outcome.Err = err
		return outcome, err
	}

	years := make([]YearResult, 0, cfg.Years())
	for year := cfg.FirstYear; year <= cfg.LastYear; year++ {
		if err := ctx.Err(); err != nil {
			outcome.Err = fmt.Errorf("iteration %d cancelled before %d: %w", iteration, year, err)
			return outcome, outcome.Err
		}
		r, err := s.Step(year, tracer)
		if err != nil {
			outcome.Err = fmt.Errorf("scenario %q iteration %d year %d: %w", scenario.Name, iteration, year, err)
			return outcome, outcome.Err
		}
		logrus.Debugf("[%s/%d] %d: ore %.1f, %d transitions, %d discoveries",
			scenario.Name, iteration, year, r.OreProduction, len(r.Transitions), len(r.Discoveries))
		years = append(years, r)
	}
	outcome.Years = years
	outcome.Totals = s.Totals
	return outcome, nil
}
