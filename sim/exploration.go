package sim

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/minesim/minesim/sim/trace"
)

// ProgramID identifies an exploration program as "region/commodity/deposit_type".
type ProgramID string

// CapacityRule sizes a discovered mine from its tonnage with Taylor's rule:
// capacity = A * tonnage^B, clamped to [Min, Max] (Max 0 = unbounded).
type CapacityRule struct {
	A   float64 `yaml:"a"`
	B   float64 `yaml:"b"`
	Min float64 `yaml:"min,omitempty"`
	Max float64 `yaml:"max,omitempty"`
}

// Capacity returns the nameplate ore capacity for a deposit of tonnage t.
func (r CapacityRule) Capacity(t float64) float64 {
	c := r.A * math.Pow(t, r.B)
	if c < r.Min {
		c = r.Min
	}
	if r.Max > 0 && c > r.Max {
		c = r.Max
	}
	return c
}

// CoProductSpec describes a co-product of deposits found by a program.
type CoProductSpec struct {
	Commodity string   `yaml:"commodity"`
	Grade     DistSpec `yaml:"grade"`
	Recovery  float64  `yaml:"recovery"`
	Balancing bool     `yaml:"balancing,omitempty"`
}

// ExplorationProgram converts undiscovered resource into new deposits for one
// region, commodity and deposit type.
type ExplorationProgram struct {
	Region      string `yaml:"region"`
	Commodity   string `yaml:"commodity"`
	DepositType string `yaml:"deposit_type,omitempty"`

	// Intensity is the number of independent discovery draws per year (default 1).
	Intensity          int     `yaml:"intensity,omitempty"`
	SuccessProbability float64 `yaml:"success_probability"`

	Tonnage  DistSpec `yaml:"tonnage"`
	Grade    DistSpec `yaml:"grade"`
	LeadTime DistSpec `yaml:"lead_time"`
	Recovery float64  `yaml:"recovery"`

	Capacity        CapacityRule    `yaml:"capacity"`
	RampUp          []float64       `yaml:"ramp_up,omitempty"`
	MinEconomicLife float64         `yaml:"min_economic_life,omitempty"`
	CashCost        float64         `yaml:"cash_cost,omitempty"`
	Value           float64         `yaml:"value,omitempty"`
	GradeDecline    GradeDecline    `yaml:"grade_decline,omitempty"`
	CoProducts      []CoProductSpec `yaml:"co_products,omitempty"`

	DevelopmentProbability *float64 `yaml:"development_probability,omitempty"`

	// DemandedDiscovery lets the program sample deposits straight into
	// production when ranked supply leaves its commodity short of demand.
	DemandedDiscovery bool `yaml:"demanded_discovery,omitempty"`

	// Endowment caps total discovered tonnage (0 = unlimited).
	Endowment float64 `yaml:"endowment,omitempty"`
	FirstYear int     `yaml:"first_year,omitempty"`
	LastYear  int     `yaml:"last_year,omitempty"`
}

// ID returns the program's identity.
func (p *ExplorationProgram) ID() ProgramID {
	return ProgramID(p.Region + "/" + p.Commodity + "/" + p.DepositType)
}

// Active reports whether the program draws in year.
func (p *ExplorationProgram) Active(year int) bool {
	if p.FirstYear != 0 && year < p.FirstYear {
		return false
	}
	if p.LastYear != 0 && year > p.LastYear {
		return false
	}
	return true
}

func (p *ExplorationProgram) draws() int {
	if p.Intensity <= 0 {
		return 1
	}
	return p.Intensity
}

// matches reports whether an input deposit belongs to this program's pool.
func (p *ExplorationProgram) matches(m *Mine) bool {
	return m.Region == p.Region && m.Primary == p.Commodity && m.DepositType == p.DepositType
}

// programRuntime is a program's per-iteration state: compiled samplers and
// remaining endowment.
type programRuntime struct {
	program   *ExplorationProgram
	id        ProgramID
	tonnage   Sampler
	grade     Sampler
	leadTime  Sampler
	coGrades  []Sampler
	remaining float64 // +Inf when the endowment is unlimited
}

func newProgramRuntime(p *ExplorationProgram) (*programRuntime, error) {
	rt := &programRuntime{program: p, id: p.ID(), remaining: math.Inf(1)}
	if p.Endowment > 0 {
		rt.remaining = p.Endowment
	}
	var err error
	if rt.tonnage, err = NewSampler(p.Tonnage); err != nil {
		return nil, fmt.Errorf("program %s tonnage: %w", rt.id, err)
	}
	if rt.grade, err = NewSampler(p.Grade); err != nil {
		return nil, fmt.Errorf("program %s grade: %w", rt.id, err)
	}
	if rt.leadTime, err = NewSampler(p.LeadTime); err != nil {
		return nil, fmt.Errorf("program %s lead time: %w", rt.id, err)
	}
	for _, cp := range p.CoProducts {
		s, err := NewSampler(cp.Grade)
		if err != nil {
			return nil, fmt.Errorf("program %s co-product %s grade: %w", rt.id, cp.Commodity, err)
		}
		rt.coGrades = append(rt.coGrades, s)
	}
	return rt, nil
}

// sortPrograms orders programs by (region, commodity, deposit type).
func sortPrograms(rts []*programRuntime) {
	sort.Slice(rts, func(i, j int) bool {
		a, b := rts[i].program, rts[j].program
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		return a.DepositType < b.DepositType
	})
}

// explore runs one year of the discovery engine: scheduled reveals of input
// deposits, then each active program's draws. New and revealed deposits enter
// explored with DiscoveredIn = year.
func (s *IterationState) explore(year int, tracer *trace.SimulationTrace) ([]StageTransition, []string, error) {
	var transitions []StageTransition
	var discovered []string

	for _, m := range s.Mines {
		if m.Stage != StageUndiscovered || m.DiscoveryYear == 0 || m.DiscoveryYear != year {
			continue
		}
		t, err := s.reveal(m, year, "scheduled discovery")
		if err != nil {
			return nil, nil, err
		}
		transitions = append(transitions, t)
		discovered = append(discovered, m.Key)
	}

	for _, rt := range s.programs {
		if !rt.program.Active(year) {
			continue
		}
		rng := s.Streams.ForSubsystem(SubsystemProgram(SubsystemDiscovery, rt.id))
		for i := 0; i < rt.program.draws(); i++ {
			u := rng.Float64()
			rec := trace.DiscoveryRecord{Year: year, Program: string(rt.id), Draw: u}
			if u >= rt.program.SuccessProbability {
				rec.Reason = "draw above success probability"
				if tracer.Enabled() {
					tracer.RecordDiscovery(rec)
				}
				continue
			}

			if m := s.hiddenDeposit(rt.program); m != nil {
				t, err := s.reveal(m, year, fmt.Sprintf("found by %s", rt.id))
				if err != nil {
					return nil, nil, err
				}
				m.Program = rt.id
				transitions = append(transitions, t)
				discovered = append(discovered, m.Key)
				rec.Success, rec.MineKey, rec.Reason = true, m.Key, "revealed input deposit"
				if tracer.Enabled() {
					tracer.RecordDiscovery(rec)
				}
				continue
			}

			m, reason, err := s.sampleDeposit(rt, year)
			if err != nil {
				return nil, nil, err
			}
			rec.Reason = reason
			if m != nil {
				discovered = append(discovered, m.Key)
				rec.Success, rec.MineKey, rec.Tonnage = true, m.Key, m.Resource
			}
			if tracer.Enabled() {
				tracer.RecordDiscovery(rec)
			}
		}
	}
	return transitions, discovered, nil
}

// hiddenDeposit returns the lowest-key undiscovered input deposit in the
// program's pool that is not scheduled for a fixed discovery year.
func (s *IterationState) hiddenDeposit(p *ExplorationProgram) *Mine {
	for _, m := range s.Mines {
		if m.Stage == StageUndiscovered && m.DiscoveryYear == 0 && m.Origin == OriginInput && p.matches(m) {
			return m
		}
	}
	return nil
}

func (s *IterationState) reveal(m *Mine, year int, reason string) (StageTransition, error) {
	t, err := m.transition(StageExplored, year, reason)
	if err != nil {
		return t, err
	}
	m.DiscoveredIn = year
	s.Totals.Discovered++
	s.Totals.DiscoveredTonnage += m.InitialResource
	return t, nil
}

// sampleDeposit creates a new explored deposit from the program's
// distributions. A nil mine means the draw yielded nothing (exhausted
// endowment or zero tonnage); reason says which.
func (s *IterationState) sampleDeposit(rt *programRuntime, year int) (*Mine, string, error) {
	if rt.remaining <= 0 {
		return nil, "endowment exhausted", nil
	}
	p := rt.program
	discoveryRng := s.Streams.ForSubsystem(SubsystemProgram(SubsystemDiscovery, rt.id))
	gradeRng := s.Streams.ForSubsystem(SubsystemProgram(SubsystemGrade, rt.id))
	leadRng := s.Streams.ForSubsystem(SubsystemProgram(SubsystemLeadTime, rt.id))

	tonnage := math.Min(rt.tonnage.Sample(discoveryRng), rt.remaining)
	if tonnage <= 0 {
		return nil, "dry hole", nil
	}
	rt.remaining -= tonnage

	capacity := p.Capacity.Capacity(tonnage)
	if math.IsNaN(capacity) || math.IsInf(capacity, 0) {
		return nil, "", fmt.Errorf("%w: program %s capacity %v for tonnage %v", ErrNumericState, rt.id, capacity, tonnage)
	}

	rec := DepositRecord{
		Key:             s.nextDiscoveryKey(p),
		Region:          p.Region,
		DepositType:     p.DepositType,
		Primary:         p.Commodity,
		Grade:           rt.grade.Sample(gradeRng),
		Recovery:        p.Recovery,
		Resource:        tonnage,
		GradeDecline:    p.GradeDecline,
		Capacity:        capacity,
		RampUp:          p.RampUp,
		MinEconomicLife: p.MinEconomicLife,
		CashCost:        p.CashCost,
		Value:           p.Value,
		Stage:           StageExplored,
		LeadTime:        int(math.Round(rt.leadTime.Sample(leadRng))),
	}
	if p.DevelopmentProbability != nil {
		v := *p.DevelopmentProbability
		rec.DevelopmentProbability = &v
	}
	for i, cp := range p.CoProducts {
		rec.CoProducts = append(rec.CoProducts, CoProduct{
			Commodity: cp.Commodity,
			Grade:     rt.coGrades[i].Sample(gradeRng),
			Recovery:  cp.Recovery,
			Balancing: cp.Balancing,
		})
	}

	m := NewMine(rec)
	m.Origin = OriginDiscovered
	m.Program = rt.id
	m.DiscoveredIn = year
	s.addMine(m)
	s.Totals.Discovered++
	s.Totals.DiscoveredTonnage += tonnage

	logrus.Debugf("[%s/%d] %d: %s discovered %s (%.0f t, capacity %.0f t/yr, lead %d)",
		s.Scenario.Name, s.Iteration, year, rt.id, m.Key, tonnage, capacity, m.LeadTime)
	return m, "sampled new deposit", nil
}

// nextDiscoveryKey returns "<region>-<commodity>-D<seq>", skipping keys that
// already exist in the iteration.
func (s *IterationState) nextDiscoveryKey(p *ExplorationProgram) string {
	prefix := p.Region + "-" + p.Commodity
	for {
		s.discoverySeq[prefix]++
		key := fmt.Sprintf("%s-D%d", prefix, s.discoverySeq[prefix])
		if _, taken := s.index[key]; !taken {
			return key
		}
	}
}

// Prospect samples a new deposit for commodity from the first active
// demanded-discovery program with endowment left and commissions it at once:
// explored, development and operating in the same year. Lead time is skipped.
func (s *IterationState) Prospect(year int, commodity string) (Candidate, bool) {
	if s.prospectErr != nil {
		return Candidate{}, false
	}
	for _, rt := range s.programs {
		p := rt.program
		if !p.DemandedDiscovery || p.Commodity != commodity || !p.Active(year) || rt.remaining <= 0 {
			continue
		}
		m, reason, err := s.sampleDeposit(rt, year)
		if err != nil {
			s.prospectErr = err
			return Candidate{}, false
		}
		if s.tracer.Enabled() {
			rec := trace.DiscoveryRecord{Year: year, Program: string(rt.id), Demanded: true, Reason: reason}
			if m != nil {
				rec.Success, rec.MineKey, rec.Tonnage = true, m.Key, m.Resource
			}
			s.tracer.RecordDiscovery(rec)
		}
		if m == nil {
			continue
		}
		m.Origin = OriginDemanded
		for _, to := range []Stage{StageDevelopment, StageOperating} {
			t, err := m.transition(to, year, "demanded discovery")
			if err != nil {
				s.prospectErr = err
				return Candidate{}, false
			}
			s.prospected.transitions = append(s.prospected.transitions, t)
		}
		m.LeadTimeRemaining = 0
		m.OperatingYears = 0
		available, err := m.AvailableCapacity(year)
		if err != nil {
			s.prospectErr = err
			return Candidate{}, false
		}
		c := Candidate{Mine: m, Available: available}
		s.prospected.candidates = append(s.prospected.candidates, c)
		s.prospected.keys = append(s.prospected.keys, m.Key)
		return c, true
	}
	return Candidate{}, false
}
