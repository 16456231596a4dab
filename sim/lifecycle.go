package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// DevelopmentPolicy selects explored deposits to move into development.
// Deposits with a DevelopmentYear are handled by the committed queue and
// never offered to a policy.
type DevelopmentPolicy interface {
	Select(year int, s *IterationState, eligible []*Mine) []*Mine
}

// ImmediateDevelopment develops every eligible deposit.
type ImmediateDevelopment struct{}

func (ImmediateDevelopment) Select(_ int, _ *IterationState, eligible []*Mine) []*Mine {
	return eligible
}

// NoDevelopment develops only the committed queue.
type NoDevelopment struct{}

func (NoDevelopment) Select(_ int, _ *IterationState, _ []*Mine) []*Mine {
	return nil
}

// ReserveShortfall develops deposits, cheapest first, while the pipeline's
// nameplate supply of a balanced commodity falls short of demand × (1 + Margin).
// The pipeline counts development, operating and care-and-maintenance mines.
type ReserveShortfall struct {
	Margin float64
}

func (p ReserveShortfall) Select(year int, s *IterationState, eligible []*Mine) []*Mine {
	pipeline := make(map[string]float64)
	for _, m := range s.Mines {
		if m.Stage == StageDevelopment || m.Stage.Producing() {
			addNameplate(pipeline, m, s.Scenario)
		}
	}

	candidates := append([]*Mine(nil), eligible...)
	rankMines(LowestCost{}, candidates)

	var selected []*Mine
	for _, m := range candidates {
		d, ok := s.Scenario.Lookup(m.Primary)
		if !ok || !d.Balanced() {
			continue
		}
		target, _ := d.Base(year)
		target *= 1 + p.Margin
		if pipeline[m.Primary] >= target {
			continue
		}
		selected = append(selected, m)
		addNameplate(pipeline, m, s.Scenario)
	}
	return selected
}

// addNameplate adds a mine's nameplate commodity supply to totals.
func addNameplate(totals map[string]float64, m *Mine, scenario *DemandScenario) {
	for _, y := range m.Yields() {
		v := m.Capacity * y.PerOre()
		if d, ok := scenario.Lookup(y.Commodity); ok {
			v *= d.IntermediateFactor()
		}
		totals[y.Commodity] += v
	}
}

// validDevelopmentPolicies is the set of recognized development policy names.
// Empty selects immediate.
var validDevelopmentPolicies = map[string]bool{
	"":                  true,
	"immediate":         true,
	"reserve-shortfall": true,
	"none":              true,
}

// IsValidDevelopmentPolicy returns true if name is a recognized development policy.
func IsValidDevelopmentPolicy(name string) bool {
	return validDevelopmentPolicies[name]
}

// ValidDevelopmentPolicyNames returns sorted non-empty policy names.
func ValidDevelopmentPolicyNames() []string {
	return validNames(validDevelopmentPolicies)
}

// NewDevelopmentPolicy creates a development policy by name.
// Panics on unrecognized names; callers validate first.
func NewDevelopmentPolicy(name string, reserveMargin float64) DevelopmentPolicy {
	switch name {
	case "", "immediate":
		return ImmediateDevelopment{}
	case "reserve-shortfall":
		return ReserveShortfall{Margin: reserveMargin}
	case "none":
		return NoDevelopment{}
	default:
		panic(fmt.Sprintf("unknown development policy %q", name))
	}
}

// develop runs lifecycle steps 1 and 2 for year: committed queue and policy
// selections enter development, then every development mine counts down its
// lead time and commissions at zero.
func (s *IterationState) develop(year int) ([]StageTransition, error) {
	var transitions []StageTransition

	var queued, eligible []*Mine
	for _, m := range s.Mines {
		if m.Stage != StageExplored || (m.DiscoveredIn != 0 && m.DiscoveredIn >= year) {
			continue
		}
		switch {
		case m.DevelopmentYear != 0 && m.DevelopmentYear <= year:
			queued = append(queued, m)
		case m.DevelopmentYear == 0:
			eligible = append(eligible, m)
		}
	}
	selected := append(queued, s.development.Select(year, s, s.passDevelopmentTest(year, eligible))...)
	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Key < selected[j].Key })

	for _, m := range selected {
		reason := "development policy"
		if m.DevelopmentYear != 0 {
			reason = "committed development"
		}
		t, err := m.transition(StageDevelopment, year, reason)
		if err != nil {
			return nil, err
		}
		m.LeadTimeRemaining = m.LeadTime
		transitions = append(transitions, t)
	}

	for _, m := range s.Mines {
		if m.Stage != StageDevelopment {
			continue
		}
		m.LeadTimeRemaining--
		if m.LeadTimeRemaining > 0 {
			continue
		}
		m.LeadTimeRemaining = 0
		t, err := m.transition(StageOperating, year, "lead time elapsed")
		if err != nil {
			return nil, err
		}
		m.OperatingYears = 0
		transitions = append(transitions, t)
	}
	return transitions, nil
}

// passDevelopmentTest returns the eligible deposits whose development
// probability test succeeds this year. Each deposit draws from its own stream,
// and only when its probability is below 1. Failed deposits stay explored and
// are tested again next year.
func (s *IterationState) passDevelopmentTest(year int, eligible []*Mine) []*Mine {
	passed := make([]*Mine, 0, len(eligible))
	for _, m := range eligible {
		p := m.DevelopmentChance()
		if p < 1 && s.Streams.ForSubsystem(SubsystemDeposit(SubsystemDevelopment, m.Key)).Float64() >= p {
			logrus.Debugf("[%s/%d] %d: %s failed development test (p=%.2f)", s.Scenario.Name, s.Iteration, year, m.Key, p)
			continue
		}
		passed = append(passed, m)
	}
	return passed
}

// settle applies post-allocation transitions: care-and-maintenance toggling
// and closure. allocated maps producing mines to this year's ore.
func (s *IterationState) settle(year int, allocated map[*Mine]float64) ([]StageTransition, error) {
	var transitions []StageTransition
	for _, m := range s.Mines {
		if !m.Stage.Producing() {
			continue
		}
		if m.Stage == StageOperating && s.cfg.IdleYearsToCareAndMaintenance > 0 {
			if allocated[m] > 0 {
				m.IdleYears = 0
			} else {
				m.IdleYears++
			}
			if m.IdleYears >= s.cfg.IdleYearsToCareAndMaintenance {
				t, err := m.transition(StageCareAndMaintenance, year, fmt.Sprintf("idle %d years", m.IdleYears))
				if err != nil {
					return nil, err
				}
				transitions = append(transitions, t)
			}
		}

		reason := ""
		switch {
		case m.exhausted():
			m.RemainingResource = 0
			reason = "resource exhausted"
		case m.ClosureYear != 0 && year >= m.ClosureYear:
			reason = "closure year reached"
		}
		if reason != "" {
			t, err := m.transition(StageDepleted, year, reason)
			if err != nil {
				return nil, err
			}
			transitions = append(transitions, t)
		}
	}
	return transitions, nil
}
