package sim

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsWellFormedInputs(t *testing.T) {
	assert.NoError(t, Validate(singleMineInputs(1000, 100, 100, 5), testConfig(5)))
	assert.NoError(t, Validate(explorationInputs(2, 5), testConfig(5)))
}

func TestValidate_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *Inputs, cfg *RunConfig)
		wantMsg string
	}{
		{"zero iterations", func(_ *Inputs, c *RunConfig) { c.Iterations = 0 }, "iterations"},
		{"inverted years", func(_ *Inputs, c *RunConfig) { c.LastYear = 0 }, "before first_year"},
		{"unknown priority with suggestion", func(_ *Inputs, c *RunConfig) { c.Priority = "lowest-cots" }, `did you mean "lowest-cost"`},
		{"unknown priority without suggestion", func(_ *Inputs, c *RunConfig) { c.Priority = "xyz" }, "valid: [active-first"},
		{"unknown development policy", func(_ *Inputs, c *RunConfig) { c.Development = "imediate" }, `did you mean "immediate"`},
		{"unknown trace level", func(_ *Inputs, c *RunConfig) { c.TraceLevel = "verbose" }, "trace_level"},
		{"missing demand year", func(in *Inputs, c *RunConfig) { c.LastYear = 6 }, "missing demand for Cu in 6"},
		{"duplicate deposit key", func(in *Inputs, _ *RunConfig) { in.Deposits = append(in.Deposits, in.Deposits[0]) }, "duplicate key"},
		{"unknown stage", func(in *Inputs, _ *RunConfig) { in.Deposits[0].Stage = "closed" }, "unknown stage"},
		{"recovery above one", func(in *Inputs, _ *RunConfig) { in.Deposits[0].Recovery = 1.2 }, "recovery"},
		{"negative resource", func(in *Inputs, _ *RunConfig) { in.Deposits[0].Resource = -1 }, "resource"},
		{"development probability above one", func(in *Inputs, _ *RunConfig) { in.Deposits[0].DevelopmentProbability = floatPtr(1.5) }, "development_probability"},
		{"ramp-down without closure", func(in *Inputs, _ *RunConfig) { in.Deposits[0].RampDown = []float64{0.5} }, "requires closure_year"},
		{"unknown decline model", func(in *Inputs, _ *RunConfig) { in.Deposits[0].GradeDecline.Model = "cubic" }, "unknown model"},
		{"no scenarios", func(in *Inputs, _ *RunConfig) { in.Scenarios = nil }, "at least one"},
		{"negative demand", func(in *Inputs, _ *RunConfig) { in.Scenarios[0].Commodities[0].Series[2] = -5 }, "finite non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := singleMineInputs(1000, 100, 100, 5)
			cfg := testConfig(5)
			tt.mutate(in, &cfg)

			err := Validate(in, cfg)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			var ce *ConfigError
			assert.True(t, errors.As(err, &ce))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_ProgramErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *ExplorationProgram)
		wantMsg string
	}{
		{"bad distribution", func(p *ExplorationProgram) { p.Tonnage = DistSpec{Type: "pareto"} }, "tonnage"},
		{"probability above one", func(p *ExplorationProgram) { p.SuccessProbability = 2 }, "success_probability"},
		{"negative development probability", func(p *ExplorationProgram) { p.DevelopmentProbability = floatPtr(-0.1) }, "development_probability"},
		{"non-positive taylor coefficient", func(p *ExplorationProgram) { p.Capacity.A = 0 }, "capacity.a"},
		{"co-product same as primary", func(p *ExplorationProgram) {
			p.CoProducts = []CoProductSpec{{Commodity: "Cu", Grade: DistSpec{Type: "constant", Params: map[string]float64{"value": 1}}}}
		}, "differ from the primary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := explorationInputs(2, 5)
			tt.mutate(&in.Programs[0])
			err := Validate(in, testConfig(5))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_UnbalancedCommodityMayOmitYears(t *testing.T) {
	in := singleMineInputs(1000, 100, 100, 5)
	in.Scenarios[0].Commodities = append(in.Scenarios[0].Commodities, CommodityDemand{
		Commodity: "Au", BalanceSupply: boolPtr(false), Series: map[int]float64{1: 3},
	})
	assert.NoError(t, Validate(in, testConfig(5)))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	in := singleMineInputs(1000, 100, 100, 5)
	cfg := testConfig(5)
	cfg.Iterations = -1
	cfg.Priority = "nope"

	err := Validate(in, cfg)

	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "\n")+1)
}

func TestSuggest_LimitScalesWithLength(t *testing.T) {
	assert.Equal(t, 1, suggestionLimit(4))
	assert.Equal(t, 2, suggestionLimit(8))
	assert.Equal(t, 3, suggestionLimit(15))
	assert.Contains(t, suggest("key-ordr", ValidPriorityPolicyNames()), "key-order")
}
