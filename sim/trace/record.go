// Package trace provides decision-trace recording for allocation and discovery analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// AllocationRecord captures the allocator's decision for one mine in one year.
type AllocationRecord struct {
	Year      int
	MineKey   string
	Rank      int     // position in priority order, 0-based
	Tier      int     // policy tier; lower tiers allocate first
	Score     float64 // policy score within the tier
	Baseline  bool    // produced full capacity regardless of demand
	Available float64 // ore capacity available this year
	Ore       float64 // ore allocated
	Trigger   string  // commodity whose residual demand set the allocation ("" if none)
}

// Headroom returns unallocated capacity.
func (r AllocationRecord) Headroom() float64 {
	return r.Available - r.Ore
}

// DiscoveryRecord captures one exploration draw.
type DiscoveryRecord struct {
	Year     int
	Program  string
	Draw     float64 // uniform draw compared against the success probability
	Demanded bool    // sampled to close a supply gap, no draw taken
	Success  bool
	MineKey  string  // created or revealed deposit ("" on failure)
	Tonnage  float64 // ore tonnes added (0 when an existing deposit was revealed)
	Reason   string
}
