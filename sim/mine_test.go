package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeDecline_Factor(t *testing.T) {
	tests := []struct {
		name    string
		decline GradeDecline
		f       float64
		want    float64
	}{
		{"empty model is constant", GradeDecline{}, 0.7, 1},
		{"constant", GradeDecline{Model: DeclineConstant, Rate: 5}, 0.5, 1},
		{"linear half depleted", GradeDecline{Model: DeclineLinear, Rate: 0.4}, 0.5, 0.8},
		{"linear floored", GradeDecline{Model: DeclineLinear, Rate: 2, Floor: 0.3}, 0.9, 0.3},
		{"exponential", GradeDecline{Model: DeclineExponential, Rate: 1}, 1, math.Exp(-1)},
		{"fraction clamped above 1", GradeDecline{Model: DeclineLinear, Rate: 0.5}, 3, 0.5},
		{"never negative", GradeDecline{Model: DeclineLinear, Rate: 5}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.decline.Factor(tt.f), 1e-12)
		})
	}
}

func TestNewMine_CopiesRecordSlices(t *testing.T) {
	// GIVEN a record with ramp and co-product slices
	rec := DepositRecord{
		Key: "M", Primary: "Cu", Resource: 10, Capacity: 1,
		RampUp:     []float64{0.5},
		CoProducts: []CoProduct{{Commodity: "Au", Grade: 1, Recovery: 1}},
	}

	// WHEN a mine is built and its slices mutated
	m := NewMine(rec)
	m.RampUp[0] = 0.9
	m.CoProducts[0].Grade = 2

	// THEN the record is untouched
	assert.Equal(t, 0.5, rec.RampUp[0])
	assert.Equal(t, 1.0, rec.CoProducts[0].Grade)
	assert.Equal(t, StageExplored, m.Stage)
	assert.Equal(t, 10.0, m.InitialResource)
}

func TestMine_AvailableCapacity(t *testing.T) {
	base := DepositRecord{Key: "M", Primary: "Cu", Grade: 1, Recovery: 1, Resource: 1000, Capacity: 100, Stage: StageOperating}
	tests := []struct {
		name  string
		setup func(m *Mine)
		year  int
		want  float64
	}{
		{"nameplate", func(m *Mine) {}, 2030, 100},
		{"ramp-up first year", func(m *Mine) { m.RampUp = []float64{0.25, 0.5}; m.OperatingYears = 0 }, 2030, 25},
		{"ramp-up second year", func(m *Mine) { m.RampUp = []float64{0.25, 0.5}; m.OperatingYears = 1 }, 2030, 50},
		{"ramp-up complete", func(m *Mine) { m.RampUp = []float64{0.25, 0.5}; m.OperatingYears = 2 }, 2030, 100},
		{"ramp-down before window", func(m *Mine) { m.ClosureYear = 2035; m.RampDown = []float64{0.6, 0.3} }, 2033, 100},
		{"ramp-down first year", func(m *Mine) { m.ClosureYear = 2035; m.RampDown = []float64{0.6, 0.3} }, 2034, 60},
		{"ramp-down closure year", func(m *Mine) { m.ClosureYear = 2035; m.RampDown = []float64{0.6, 0.3} }, 2035, 30},
		{"remaining resource", func(m *Mine) { m.RemainingResource = 40 }, 2030, 40},
		{"min economic life", func(m *Mine) { m.MinEconomicLife = 20 }, 2030, 50},
		{"min economic life of 1 ignored", func(m *Mine) { m.MinEconomicLife = 1 }, 2030, 100},
		{"care and maintenance still offers capacity", func(m *Mine) { m.Stage = StageCareAndMaintenance }, 2030, 100},
		{"development offers none", func(m *Mine) { m.Stage = StageDevelopment }, 2030, 0},
		{"depleted offers none", func(m *Mine) { m.Stage = StageDepleted }, 2030, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMine(base)
			tt.setup(m)
			got, err := m.AvailableCapacity(tt.year)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestMine_AvailableCapacity_NaNIsNumericError(t *testing.T) {
	m := NewMine(DepositRecord{Key: "M", Resource: 10, Capacity: math.NaN(), Stage: StageOperating})
	_, err := m.AvailableCapacity(1)
	assert.True(t, errors.Is(err, ErrNumericState))
}

func TestMine_Yields_ApplyDeclineToAllCommodities(t *testing.T) {
	// GIVEN a half-depleted mine with linear decline and a co-product
	m := NewMine(DepositRecord{
		Key: "M", Primary: "Ni", Grade: 0.02, Recovery: 0.8, Resource: 100, Capacity: 10, Stage: StageOperating,
		GradeDecline: GradeDecline{Model: DeclineLinear, Rate: 0.5},
		CoProducts:   []CoProduct{{Commodity: "Co", Grade: 0.001, Recovery: 0.5, Balancing: true}},
	})
	m.CumulativeProduction = 50

	// WHEN yields are computed
	ys := m.Yields()

	// THEN the primary comes first and both grades carry the 0.75 factor
	require.Len(t, ys, 2)
	assert.Equal(t, "Ni", ys[0].Commodity)
	assert.True(t, ys[0].Balancing)
	assert.InDelta(t, 0.015, ys[0].Grade, 1e-12)
	assert.InDelta(t, 0.012, ys[0].PerOre(), 1e-12)
	assert.InDelta(t, 0.00075, ys[1].Grade, 1e-12)
	assert.True(t, ys[1].Balancing)
}

func TestMine_Transition(t *testing.T) {
	m := NewMine(DepositRecord{Key: "M", Resource: 1, Stage: StageExplored})
	m.YearsInStage = 3

	tr, err := m.transition(StageDevelopment, 2030, "policy")
	require.NoError(t, err)
	assert.Equal(t, StageTransition{MineKey: "M", Year: 2030, From: StageExplored, To: StageDevelopment, Reason: "policy"}, tr)
	assert.Equal(t, 0, m.YearsInStage)

	_, err = m.transition(StageExplored, 2031, "backwards")
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, StageDevelopment, m.Stage, "failed transition must not change stage")
}

func TestMine_Produce_ClampsAndWarns(t *testing.T) {
	// GIVEN a mine with 10 t left
	m := NewMine(DepositRecord{Key: "M", Resource: 10, Stage: StageOperating})

	// WHEN negative production is applied
	ws := m.produce(-1, 2030)

	// THEN it is clamped and reported
	require.Len(t, ws, 1)
	assert.Equal(t, WarningNegativeProduction, ws[0].Kind)
	assert.Equal(t, 10.0, m.RemainingResource)

	// WHEN production overshoots the resource
	ws = m.produce(10.5, 2031)

	// THEN the resource is clamped at zero and cumulative at initial
	require.Len(t, ws, 1)
	assert.Equal(t, WarningNegativeResource, ws[0].Kind)
	assert.Equal(t, 0.0, m.RemainingResource)
	assert.Equal(t, 10.0, m.CumulativeProduction)
	assert.True(t, m.exhausted())
}

func TestMine_ReserveLife(t *testing.T) {
	m := NewMine(DepositRecord{Key: "M", Resource: 1000, Capacity: 100})
	assert.Equal(t, 10.0, m.ReserveLife())
	m.Capacity = 0
	assert.Equal(t, 0.0, m.ReserveLife())
}
