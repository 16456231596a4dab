package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrIllegalTransition is returned when a mine is asked to take an edge the
// transition table does not permit. It aborts the iteration.
var ErrIllegalTransition = errors.New("illegal stage transition")

// ErrNumericState is returned when a capacity, grade or resource value is NaN
// or infinite. It aborts the iteration.
var ErrNumericState = errors.New("invalid numeric state")

// depletionEpsilon is the remaining-resource level treated as exhausted.
const depletionEpsilon = 1e-9

// CoProduct is a secondary commodity recovered in fixed proportion to ore throughput.
type CoProduct struct {
	Commodity string  `yaml:"commodity"`
	Grade     float64 `yaml:"grade"`
	Recovery  float64 `yaml:"recovery"`
	// Balancing lets demand for this commodity trigger production at the host mine.
	Balancing bool `yaml:"balancing,omitempty"`
}

// DeclineModel names a grade-decline functional form.
type DeclineModel string

const (
	DeclineConstant    DeclineModel = "constant"
	DeclineLinear      DeclineModel = "linear"
	DeclineExponential DeclineModel = "exponential"
)

var validDeclineModels = map[DeclineModel]bool{"": true, DeclineConstant: true, DeclineLinear: true, DeclineExponential: true}

// GradeDecline maps cumulative depletion to a grade multiplier.
//
//	constant:    1
//	linear:      1 - rate*f
//	exponential: exp(-rate*f)
//
// where f is the depleted fraction of the initial resource. The result is
// clamped to [floor, 1].
type GradeDecline struct {
	Model DeclineModel `yaml:"model,omitempty"`
	Rate  float64      `yaml:"rate,omitempty"`
	Floor float64      `yaml:"floor,omitempty"`
}

// Factor returns the grade multiplier at depletion fraction f.
func (g GradeDecline) Factor(f float64) float64 {
	f = math.Max(0, math.Min(1, f))
	var v float64
	switch g.Model {
	case DeclineLinear:
		v = 1 - g.Rate*f
	case DeclineExponential:
		v = math.Exp(-g.Rate * f)
	default:
		return 1
	}
	return math.Max(math.Max(0, g.Floor), math.Min(1, v))
}

// DepositRecord is the immutable input description of one site.
type DepositRecord struct {
	Key         string      `yaml:"key"`
	Name        string      `yaml:"name,omitempty"`
	Region      string      `yaml:"region"`
	DepositType string      `yaml:"deposit_type,omitempty"`
	Primary     string      `yaml:"primary"`
	Grade       float64     `yaml:"grade"`
	Recovery    float64     `yaml:"recovery"`
	CoProducts  []CoProduct `yaml:"co_products,omitempty"`

	Resource     float64      `yaml:"resource"`
	GradeDecline GradeDecline `yaml:"grade_decline,omitempty"`

	Capacity        float64   `yaml:"capacity"`
	RampUp          []float64 `yaml:"ramp_up,omitempty"`
	ClosureYear     int       `yaml:"closure_year,omitempty"`
	RampDown        []float64 `yaml:"ramp_down,omitempty"`
	MinEconomicLife float64   `yaml:"min_economic_life,omitempty"`

	CashCost  float64 `yaml:"cash_cost,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
	Committed bool    `yaml:"committed,omitempty"`

	// DevelopmentProbability is the chance a development policy's selection
	// goes ahead in a year (nil = always). Committed deposits skip the test.
	DevelopmentProbability *float64 `yaml:"development_probability,omitempty"`

	Stage           Stage `yaml:"stage"`
	DiscoveryYear   int   `yaml:"discovery_year,omitempty"`
	DevelopmentYear int   `yaml:"development_year,omitempty"`
	LeadTime        int   `yaml:"lead_time,omitempty"`
}

// Origin records where a mine came from.
type Origin string

const (
	OriginInput      Origin = "input"
	OriginDiscovered Origin = "discovered"
	// OriginDemanded marks deposits found because supply fell short of demand.
	OriginDemanded Origin = "demanded"
)

// Yield is the per-commodity output ratio of one tonne of ore in a given year.
type Yield struct {
	Commodity string
	Grade     float64
	Recovery  float64
	Balancing bool
}

// PerOre returns commodity tonnes produced per ore tonne.
func (y Yield) PerOre() float64 {
	return y.Grade * y.Recovery
}

// Mine is the mutable per-iteration state of a deposit. Each iteration owns
// its own Mine values; they are never shared.
type Mine struct {
	DepositRecord

	Origin       Origin
	Program      ProgramID // discovering program, empty for input records
	DiscoveredIn int       // year revealed inside the iteration, 0 if known at load

	YearsInStage      int
	LeadTimeRemaining int
	OperatingYears    int
	IdleYears         int

	InitialResource      float64
	RemainingResource    float64
	CumulativeProduction float64
}

// NewMine builds fresh iteration state from a record. Slices are copied so the
// record is never aliased. Mines loaded as operating are treated as past
// ramp-up; mines loaded in development start the full lead time. An empty
// stage defaults to explored.
func NewMine(rec DepositRecord) *Mine {
	m := &Mine{
		DepositRecord:     rec,
		Origin:            OriginInput,
		InitialResource:   rec.Resource,
		RemainingResource: rec.Resource,
	}
	m.CoProducts = append([]CoProduct(nil), rec.CoProducts...)
	m.RampUp = append([]float64(nil), rec.RampUp...)
	m.RampDown = append([]float64(nil), rec.RampDown...)
	if m.Stage == "" {
		m.Stage = StageExplored
	}
	switch {
	case m.Stage.Producing():
		m.OperatingYears = len(m.RampUp)
	case m.Stage == StageDevelopment:
		m.LeadTimeRemaining = m.LeadTime
	}
	return m
}

// DevelopmentChance returns the development probability, 1 when unset.
func (r *DepositRecord) DevelopmentChance() float64 {
	if r.DevelopmentProbability == nil {
		return 1
	}
	return *r.DevelopmentProbability
}

// ReserveLife returns remaining resource divided by nameplate capacity.
func (m *Mine) ReserveLife() float64 {
	if m.Capacity <= 0 {
		return 0
	}
	return m.RemainingResource / m.Capacity
}

// DepletionFraction returns cumulative production over initial resource.
func (m *Mine) DepletionFraction() float64 {
	if m.InitialResource <= 0 {
		return 1
	}
	return m.CumulativeProduction / m.InitialResource
}

func (m *Mine) rampUpFactor() float64 {
	if m.OperatingYears < len(m.RampUp) {
		return m.RampUp[m.OperatingYears]
	}
	return 1
}

func (m *Mine) rampDownFactor(year int) float64 {
	if m.ClosureYear == 0 || len(m.RampDown) == 0 {
		return 1
	}
	start := m.ClosureYear - len(m.RampDown) + 1
	if year < start || year > m.ClosureYear {
		return 1
	}
	return m.RampDown[year-start]
}

// AvailableCapacity returns the ore tonnes the mine can produce in year: the
// minimum of ramp-limited capacity, nameplate, remaining resource and the
// minimum-economic-life limit. Non-producing stages return 0.
func (m *Mine) AvailableCapacity(year int) (float64, error) {
	if !m.Stage.Producing() {
		return 0, nil
	}
	c := m.Capacity * m.rampUpFactor() * m.rampDownFactor(year)
	c = math.Min(c, m.Capacity)
	c = math.Min(c, m.RemainingResource)
	if m.MinEconomicLife > 1 {
		c = math.Min(c, m.InitialResource/m.MinEconomicLife)
	}
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, fmt.Errorf("%w: mine %s capacity %v in %d", ErrNumericState, m.Key, c, year)
	}
	return math.Max(0, c), nil
}

// Yields returns this year's output ratios: the primary commodity first, then
// co-products in record order. Grades are scaled by the decline factor at the
// start-of-year depletion fraction.
func (m *Mine) Yields() []Yield {
	factor := m.GradeDecline.Factor(m.DepletionFraction())
	out := make([]Yield, 0, 1+len(m.CoProducts))
	out = append(out, Yield{Commodity: m.Primary, Grade: m.Grade * factor, Recovery: m.Recovery, Balancing: true})
	for _, cp := range m.CoProducts {
		out = append(out, Yield{Commodity: cp.Commodity, Grade: cp.Grade * factor, Recovery: cp.Recovery, Balancing: cp.Balancing})
	}
	return out
}

// transition moves the mine to stage to, returning the recorded edge.
func (m *Mine) transition(to Stage, year int, reason string) (StageTransition, error) {
	if !CanTransition(m.Stage, to) {
		return StageTransition{}, fmt.Errorf("%w: %s %s -> %s in %d", ErrIllegalTransition, m.Key, m.Stage, to, year)
	}
	t := StageTransition{MineKey: m.Key, Year: year, From: m.Stage, To: to, Reason: reason}
	m.Stage = to
	m.YearsInStage = 0
	return t, nil
}

// produce removes ore from the remaining resource. Negative inputs and
// negative remaining resource are clamped and reported as warnings.
func (m *Mine) produce(ore float64, year int) []Warning {
	var warnings []Warning
	if ore < 0 {
		warnings = append(warnings, Warning{Year: year, MineKey: m.Key, Kind: WarningNegativeProduction, Value: ore})
		ore = 0
	}
	m.RemainingResource -= ore
	m.CumulativeProduction += ore
	if m.RemainingResource < 0 {
		warnings = append(warnings, Warning{Year: year, MineKey: m.Key, Kind: WarningNegativeResource, Value: m.RemainingResource})
		m.RemainingResource = 0
	}
	if m.CumulativeProduction > m.InitialResource {
		m.CumulativeProduction = m.InitialResource
	}
	return warnings
}

// exhausted reports whether the remaining resource is at or below the depletion
// threshold.
func (m *Mine) exhausted() bool {
	return m.RemainingResource <= depletionEpsilon
}
