package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// singleMineInputs builds one operating mine (grade 1, recovery 1) and a flat
// demand scenario for years 1..years.
func singleMineInputs(resource, capacity, demand float64, years int) *Inputs {
	series := make(map[int]float64, years)
	for y := 1; y <= years; y++ {
		series[y] = demand
	}
	return &Inputs{
		Deposits: []DepositRecord{{
			Key:      "M1",
			Region:   "AU",
			Primary:  "Cu",
			Grade:    1,
			Recovery: 1,
			Resource: resource,
			Capacity: capacity,
			Stage:    StageOperating,
		}},
		Scenarios: []DemandScenario{{
			Name:        "flat",
			Commodities: []CommodityDemand{{Commodity: "Cu", Series: series}},
		}},
	}
}

func testConfig(years int) RunConfig {
	return RunConfig{Iterations: 1, FirstYear: 1, LastYear: years, Seed: 42}
}

// explorationInputs builds a single always-successful program with constant
// tonnage and lead time, and no input deposits.
func explorationInputs(leadTime float64, years int) *Inputs {
	series := make(map[int]float64, years)
	for y := 1; y <= years; y++ {
		series[y] = 1e6
	}
	return &Inputs{
		Programs: []ExplorationProgram{{
			Region:             "AU",
			Commodity:          "Cu",
			DepositType:        "porphyry",
			SuccessProbability: 1.0,
			Tonnage:            DistSpec{Type: "constant", Params: map[string]float64{"value": 1000}},
			Grade:              DistSpec{Type: "uniform", Params: map[string]float64{"min": 0.005, "max": 0.01}},
			LeadTime:           DistSpec{Type: "constant", Params: map[string]float64{"value": leadTime}},
			Recovery:           0.9,
			Capacity:           CapacityRule{A: 10, B: 0.5},
		}},
		Scenarios: []DemandScenario{{
			Name:        "growth",
			Commodities: []CommodityDemand{{Commodity: "Cu", Series: series}},
		}},
	}
}

func runOne(t *testing.T, in *Inputs, cfg RunConfig) []YearResult {
	t.Helper()
	require.NoError(t, Validate(in, cfg))
	outcome, err := RunIteration(context.Background(), in, cfg, &in.Scenarios[0], 0, nil)
	require.NoError(t, err)
	return outcome.Years
}

// cumulativeSupply sums a commodity's counted supply across years.
func cumulativeSupply(years []YearResult, commodity string) decimal.Decimal {
	total := decimal.Zero
	for i := range years {
		if b, ok := years[i].Balance(commodity); ok {
			total = total.Add(b.Supply)
		}
	}
	return total
}

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }
