package sim

import "sort"

// CommodityDemand is one commodity's demand trajectory within a scenario.
type CommodityDemand struct {
	Commodity string `yaml:"commodity"`
	// BalanceSupply defaults to true: demand for this commodity drives allocation.
	BalanceSupply *bool `yaml:"balance_supply,omitempty"`
	// IntermediateRecovery defaults to 1: the fraction of mine output that
	// becomes demanded product.
	IntermediateRecovery *float64 `yaml:"intermediate_recovery,omitempty"`
	// Threshold is the residual demand at or below which allocation stops.
	Threshold float64 `yaml:"threshold,omitempty"`
	// Carry is the fraction of the signed year gap added to next year's demand.
	Carry  float64         `yaml:"carry,omitempty"`
	Series map[int]float64 `yaml:"series"`
}

// Balanced reports whether this commodity's demand drives allocation.
func (d *CommodityDemand) Balanced() bool {
	return d.BalanceSupply == nil || *d.BalanceSupply
}

// IntermediateFactor returns the intermediate recovery, defaulting to 1.
func (d *CommodityDemand) IntermediateFactor() float64 {
	if d.IntermediateRecovery == nil {
		return 1
	}
	return *d.IntermediateRecovery
}

// Base returns the scenario demand for year before any carried gap.
func (d *CommodityDemand) Base(year int) (float64, bool) {
	v, ok := d.Series[year]
	return v, ok
}

// DemandScenario is one demand trajectory under evaluation. Read-only for the core.
type DemandScenario struct {
	Name        string            `yaml:"name"`
	Commodities []CommodityDemand `yaml:"commodities"`
}

// Lookup returns the demand entry for commodity.
func (s *DemandScenario) Lookup(commodity string) (*CommodityDemand, bool) {
	for i := range s.Commodities {
		if s.Commodities[i].Commodity == commodity {
			return &s.Commodities[i], true
		}
	}
	return nil, false
}

// CommodityNames returns the scenario's commodities sorted by name.
func (s *DemandScenario) CommodityNames() []string {
	names := make([]string, 0, len(s.Commodities))
	for _, c := range s.Commodities {
		names = append(names, c.Commodity)
	}
	sort.Strings(names)
	return names
}
