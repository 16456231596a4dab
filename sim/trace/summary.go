package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalAllocations    int
	BaselineCount       int
	CurtailedCount      int // swing mines allocated less than their available capacity
	MeanUtilization     float64
	DiscoveryDraws      int
	DiscoverySuccesses  int
	DiscoveredTonnage   float64
	UniqueMines         int
	ProgramDistribution map[string]int // program → count of successful draws
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ProgramDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	mines := make(map[string]bool)
	summary.TotalAllocations = len(st.Allocations)
	utilization := 0.0
	counted := 0
	for _, a := range st.Allocations {
		mines[a.MineKey] = true
		if a.Baseline {
			summary.BaselineCount++
		} else if a.Headroom() > 0 {
			summary.CurtailedCount++
		}
		if a.Available > 0 {
			utilization += a.Ore / a.Available
			counted++
		}
	}
	if counted > 0 {
		summary.MeanUtilization = utilization / float64(counted)
	}

	summary.DiscoveryDraws = len(st.Discoveries)
	for _, d := range st.Discoveries {
		if !d.Success {
			continue
		}
		summary.DiscoverySuccesses++
		summary.DiscoveredTonnage += d.Tonnage
		summary.ProgramDistribution[d.Program]++
	}

	summary.UniqueMines = len(mines)

	return summary
}
