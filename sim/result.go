package sim

import (
	"sort"

	"github.com/shopspring/decimal"
)

// WarningKind classifies a data-quality condition.
type WarningKind string

const (
	WarningNegativeProduction WarningKind = "negative_production"
	WarningNegativeResource   WarningKind = "negative_resource"
)

// Warning is a repaired data-quality condition attached to a YearResult.
type Warning struct {
	Year    int
	MineKey string
	Kind    WarningKind
	Value   float64 // offending value before clamping
}

// CommodityBalance is one commodity's supply/demand ledger for a year.
// Supply + Unmet - Oversupply == Demand holds exactly.
type CommodityBalance struct {
	Commodity  string
	Demand     decimal.Decimal
	Supply     decimal.Decimal
	Unmet      decimal.Decimal
	Oversupply decimal.Decimal
}

// Gap returns demand minus supply: positive when short, negative when over.
func (b CommodityBalance) Gap() decimal.Decimal {
	return b.Demand.Sub(b.Supply)
}

// newBalance settles demand against supply.
func newBalance(commodity string, demand, supply decimal.Decimal) CommodityBalance {
	gap := demand.Sub(supply)
	b := CommodityBalance{Commodity: commodity, Demand: demand, Supply: supply, Unmet: decimal.Zero, Oversupply: decimal.Zero}
	if gap.IsPositive() {
		b.Unmet = gap
	} else if gap.IsNegative() {
		b.Oversupply = gap.Neg()
	}
	return b
}

// MineProduction is one allocation candidate's result for a year.
type MineProduction struct {
	Key       string
	Stage     Stage // stage at the end of the year
	Available float64
	Ore       float64
	Output    map[string]float64 // commodity → tonnes recovered
	Grade     map[string]float64 // commodity → grade applied this year
}

// YearResult is the immutable snapshot of one (scenario, iteration, year).
// It holds copies only; nothing in it points into iteration state.
type YearResult struct {
	Scenario  string
	Iteration int
	Year      int

	Balances    []CommodityBalance // sorted by commodity
	Production  []MineProduction   // sorted by mine key
	Transitions []StageTransition
	Discoveries []string
	StageCounts map[Stage]int
	Warnings    []Warning

	OreProduction float64
}

// Balance returns the ledger for commodity.
func (r *YearResult) Balance(commodity string) (CommodityBalance, bool) {
	i := sort.Search(len(r.Balances), func(i int) bool { return r.Balances[i].Commodity >= commodity })
	if i < len(r.Balances) && r.Balances[i].Commodity == commodity {
		return r.Balances[i], true
	}
	return CommodityBalance{}, false
}

// MineProduction returns the production row for key.
func (r *YearResult) MineProduction(key string) (MineProduction, bool) {
	i := sort.Search(len(r.Production), func(i int) bool { return r.Production[i].Key >= key })
	if i < len(r.Production) && r.Production[i].Key == key {
		return r.Production[i], true
	}
	return MineProduction{}, false
}

// IterationTotals are the cumulative counters of one iteration.
type IterationTotals struct {
	Discovered        int
	DiscoveredTonnage float64
	Produced          map[string]float64 // commodity → cumulative supply
	Unmet             map[string]float64 // commodity → cumulative unmet demand
	OreProduced       float64
	Warnings          int
}

// IterationOutcome is the result of one iteration handed to the aggregator.
// Err is non-nil for failed iterations; Years is then nil.
type IterationOutcome struct {
	Scenario  string
	Iteration int
	Years     []YearResult
	Totals    IterationTotals
	Err       error
}

// Failed reports whether the iteration aborted.
func (o *IterationOutcome) Failed() bool {
	return o.Err != nil
}
