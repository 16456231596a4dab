package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/minesim/minesim/sim/trace"
)

// ErrConfig is the sentinel wrapped by every ConfigError.
var ErrConfig = errors.New("invalid configuration")

// ConfigError is a structural input problem detected before any iteration runs.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// RunConfig groups run-wide settings.
type RunConfig struct {
	Iterations int   `yaml:"iterations"`
	FirstYear  int   `yaml:"first_year"`
	LastYear   int   `yaml:"last_year"`
	Seed       int64 `yaml:"seed"`

	Priority      string  `yaml:"priority,omitempty"`    // allocation ranking, see ValidPriorityPolicyNames
	Development   string  `yaml:"development,omitempty"` // see ValidDevelopmentPolicyNames
	ReserveMargin float64 `yaml:"reserve_margin,omitempty"`

	// IdleYearsToCareAndMaintenance is the number of consecutive zero-allocation
	// years after which an operating mine enters care-and-maintenance (0 disables).
	IdleYearsToCareAndMaintenance int `yaml:"idle_years_to_care_and_maintenance,omitempty"`

	TraceLevel string `yaml:"trace_level,omitempty"`
	Workers    int    `yaml:"workers,omitempty"`
}

// Years returns the number of simulated years.
func (c RunConfig) Years() int {
	return c.LastYear - c.FirstYear + 1
}

// Inputs are the validated, read-only records shared by all iterations.
type Inputs struct {
	Deposits  []DepositRecord      `yaml:"deposits"`
	Programs  []ExplorationProgram `yaml:"programs,omitempty"`
	Scenarios []DemandScenario     `yaml:"scenarios"`
}

// Scenario returns the named scenario.
func (in *Inputs) Scenario(name string) (*DemandScenario, bool) {
	for i := range in.Scenarios {
		if in.Scenarios[i].Name == name {
			return &in.Scenarios[i], true
		}
	}
	return nil, false
}

// Validate checks inputs and run settings. It returns every problem found,
// joined; each one wraps ErrConfig.
func Validate(in *Inputs, cfg RunConfig) error {
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	if cfg.Iterations <= 0 {
		add(configErrorf("iterations", "must be positive, got %d", cfg.Iterations))
	}
	if cfg.LastYear < cfg.FirstYear {
		add(configErrorf("last_year", "%d before first_year %d", cfg.LastYear, cfg.FirstYear))
	}
	if !IsValidPriorityPolicy(cfg.Priority) {
		add(configErrorf("priority", "unknown policy %q%s", cfg.Priority, suggest(cfg.Priority, ValidPriorityPolicyNames())))
	}
	if !IsValidDevelopmentPolicy(cfg.Development) {
		add(configErrorf("development", "unknown policy %q%s", cfg.Development, suggest(cfg.Development, ValidDevelopmentPolicyNames())))
	}
	if cfg.ReserveMargin < 0 || math.IsNaN(cfg.ReserveMargin) {
		add(configErrorf("reserve_margin", "must be non-negative, got %v", cfg.ReserveMargin))
	}
	if cfg.IdleYearsToCareAndMaintenance < 0 {
		add(configErrorf("idle_years_to_care_and_maintenance", "must be non-negative, got %d", cfg.IdleYearsToCareAndMaintenance))
	}
	if !trace.IsValidTraceLevel(cfg.TraceLevel) {
		add(configErrorf("trace_level", "unknown level %q", cfg.TraceLevel))
	}
	if cfg.Workers < 0 {
		add(configErrorf("workers", "must be non-negative, got %d", cfg.Workers))
	}

	keys := make(map[string]bool, len(in.Deposits))
	for i := range in.Deposits {
		d := &in.Deposits[i]
		field := fmt.Sprintf("deposits[%d]", i)
		if d.Key == "" {
			add(configErrorf(field, "key is required"))
		} else if keys[d.Key] {
			add(configErrorf(field, "duplicate key %q", d.Key))
		}
		keys[d.Key] = true
		errs = append(errs, validateDeposit(field, d)...)
	}

	ids := make(map[ProgramID]bool, len(in.Programs))
	for i := range in.Programs {
		p := &in.Programs[i]
		field := fmt.Sprintf("programs[%d]", i)
		if ids[p.ID()] {
			add(configErrorf(field, "duplicate program %s", p.ID()))
		}
		ids[p.ID()] = true
		errs = append(errs, validateProgram(field, p)...)
	}

	if len(in.Scenarios) == 0 {
		add(configErrorf("scenarios", "at least one demand scenario is required"))
	}
	names := make(map[string]bool, len(in.Scenarios))
	for i := range in.Scenarios {
		s := &in.Scenarios[i]
		field := fmt.Sprintf("scenarios[%d]", i)
		if s.Name == "" {
			add(configErrorf(field, "name is required"))
		} else if names[s.Name] {
			add(configErrorf(field, "duplicate scenario %q", s.Name))
		}
		names[s.Name] = true
		errs = append(errs, validateScenario(field, s, cfg)...)
	}
	return errors.Join(errs...)
}

func validateDeposit(field string, d *DepositRecord) []error {
	var errs []error
	if !IsValidStage(d.Stage) && d.Stage != "" {
		errs = append(errs, configErrorf(field+".stage", "unknown stage %q", d.Stage))
	}
	if d.Primary == "" {
		errs = append(errs, configErrorf(field+".primary", "primary commodity is required"))
	}
	errs = append(errs, nonNegative(field, map[string]float64{
		"resource": d.Resource, "capacity": d.Capacity, "grade": d.Grade,
		"cash_cost": d.CashCost, "min_economic_life": d.MinEconomicLife,
	})...)
	errs = append(errs, fraction(field+".recovery", d.Recovery)...)
	if d.DevelopmentProbability != nil {
		errs = append(errs, fraction(field+".development_probability", *d.DevelopmentProbability)...)
	}
	if d.LeadTime < 0 {
		errs = append(errs, configErrorf(field+".lead_time", "must be non-negative, got %d", d.LeadTime))
	}
	errs = append(errs, profile(field+".ramp_up", d.RampUp)...)
	errs = append(errs, profile(field+".ramp_down", d.RampDown)...)
	if len(d.RampDown) > 0 && d.ClosureYear == 0 {
		errs = append(errs, configErrorf(field+".ramp_down", "requires closure_year"))
	}
	errs = append(errs, validateDecline(field+".grade_decline", d.GradeDecline)...)
	for j, cp := range d.CoProducts {
		cf := fmt.Sprintf("%s.co_products[%d]", field, j)
		if cp.Commodity == "" || cp.Commodity == d.Primary {
			errs = append(errs, configErrorf(cf, "commodity must be set and differ from the primary"))
		}
		errs = append(errs, nonNegative(cf, map[string]float64{"grade": cp.Grade})...)
		errs = append(errs, fraction(cf+".recovery", cp.Recovery)...)
	}
	return errs
}

func validateProgram(field string, p *ExplorationProgram) []error {
	var errs []error
	if p.Region == "" || p.Commodity == "" {
		errs = append(errs, configErrorf(field, "region and commodity are required"))
	}
	if p.Intensity < 0 {
		errs = append(errs, configErrorf(field+".intensity", "must be non-negative, got %d", p.Intensity))
	}
	errs = append(errs, fraction(field+".success_probability", p.SuccessProbability)...)
	errs = append(errs, fraction(field+".recovery", p.Recovery)...)
	if p.DevelopmentProbability != nil {
		errs = append(errs, fraction(field+".development_probability", *p.DevelopmentProbability)...)
	}
	for name, spec := range map[string]DistSpec{"tonnage": p.Tonnage, "grade": p.Grade, "lead_time": p.LeadTime} {
		if _, err := NewSampler(spec); err != nil {
			errs = append(errs, configErrorf(field+"."+name, "%v", err))
		}
	}
	for j, cp := range p.CoProducts {
		cf := fmt.Sprintf("%s.co_products[%d]", field, j)
		if cp.Commodity == "" || cp.Commodity == p.Commodity {
			errs = append(errs, configErrorf(cf, "commodity must be set and differ from the primary"))
		}
		if _, err := NewSampler(cp.Grade); err != nil {
			errs = append(errs, configErrorf(cf+".grade", "%v", err))
		}
		errs = append(errs, fraction(cf+".recovery", cp.Recovery)...)
	}
	if p.Capacity.A <= 0 {
		errs = append(errs, configErrorf(field+".capacity.a", "must be positive, got %v", p.Capacity.A))
	}
	if p.Capacity.Max > 0 && p.Capacity.Max < p.Capacity.Min {
		errs = append(errs, configErrorf(field+".capacity", "max %v below min %v", p.Capacity.Max, p.Capacity.Min))
	}
	errs = append(errs, nonNegative(field, map[string]float64{
		"endowment": p.Endowment, "cash_cost": p.CashCost, "min_economic_life": p.MinEconomicLife,
	})...)
	errs = append(errs, profile(field+".ramp_up", p.RampUp)...)
	errs = append(errs, validateDecline(field+".grade_decline", p.GradeDecline)...)
	if p.FirstYear != 0 && p.LastYear != 0 && p.LastYear < p.FirstYear {
		errs = append(errs, configErrorf(field+".last_year", "%d before first_year %d", p.LastYear, p.FirstYear))
	}
	return errs
}

// validateScenario requires a demand value for every simulated year of every
// balanced commodity.
func validateScenario(field string, s *DemandScenario, cfg RunConfig) []error {
	var errs []error
	seen := make(map[string]bool, len(s.Commodities))
	for j := range s.Commodities {
		d := &s.Commodities[j]
		cf := fmt.Sprintf("%s.commodities[%d]", field, j)
		if d.Commodity == "" {
			errs = append(errs, configErrorf(cf, "commodity is required"))
		} else if seen[d.Commodity] {
			errs = append(errs, configErrorf(cf, "duplicate commodity %q", d.Commodity))
		}
		seen[d.Commodity] = true
		if d.IntermediateRecovery != nil {
			errs = append(errs, fraction(cf+".intermediate_recovery", *d.IntermediateRecovery)...)
		}
		errs = append(errs, nonNegative(cf, map[string]float64{"threshold": d.Threshold, "carry": d.Carry})...)
		for year, q := range d.Series {
			if q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
				errs = append(errs, configErrorf(cf, "demand in %d must be a finite non-negative number, got %v", year, q))
			}
		}
		if !d.Balanced() {
			continue
		}
		for year := cfg.FirstYear; year <= cfg.LastYear; year++ {
			if _, ok := d.Series[year]; !ok {
				errs = append(errs, configErrorf(cf, "missing demand for %s in %d (scenario %q)", d.Commodity, year, s.Name))
				break
			}
		}
	}
	return errs
}

func validateDecline(field string, g GradeDecline) []error {
	var errs []error
	if !validDeclineModels[g.Model] {
		errs = append(errs, configErrorf(field+".model", "unknown model %q", g.Model))
	}
	if g.Rate < 0 {
		errs = append(errs, configErrorf(field+".rate", "must be non-negative, got %v", g.Rate))
	}
	errs = append(errs, fraction(field+".floor", g.Floor)...)
	return errs
}

func nonNegative(field string, values map[string]float64) []error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		v := values[k]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, configErrorf(field+"."+k, "must be a finite non-negative number, got %v", v))
		}
	}
	return errs
}

func fraction(field string, v float64) []error {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return []error{configErrorf(field, "must be in [0, 1], got %v", v)}
	}
	return nil
}

func profile(field string, factors []float64) []error {
	for i, f := range factors {
		if f < 0 || f > 1 || math.IsNaN(f) {
			return []error{configErrorf(fmt.Sprintf("%s[%d]", field, i), "must be in [0, 1], got %v", f)}
		}
	}
	return nil
}

// suggest returns a "did you mean" hint for the closest valid name, or "".
func suggest(name string, valid []string) string {
	best, bestDist := "", -1
	for _, cand := range valid {
		d := levenshtein.ComputeDistance(name, cand)
		if d > suggestionLimit(len(cand)) {
			continue
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = cand, d
		}
	}
	if best == "" {
		return fmt.Sprintf(" (valid: %v)", valid)
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

// suggestionLimit scales the allowed edit distance with the candidate length.
func suggestionLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
