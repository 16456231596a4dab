// Package sim provides the core Monte-Carlo engine for mine supply simulation.
//
// # Reading Guide
//
// Start with these files to understand one iteration:
//   - stage.go, mine.go: deposit records, mutable mine state and the lifecycle transition table
//   - iteration.go: IterationState and the per-year Step (discovery → development → allocation → closure)
//   - allocator.go: baseline then swing allocation against demand, with the exact decimal ledger
//
// # Architecture
//
// The sim package owns everything that happens inside one iteration; the
// surrounding layers live in sub-packages:
//   - sim/ensemble/: scenario × iteration orchestration on a bounded worker pool
//   - sim/stats/: cross-iteration statistics (mean, min, max, percentiles)
//   - sim/inputs/: strict YAML loading of deposits, programs, scenarios and run settings
//   - sim/export/: CSV and InfluxDB writers for year results and statistics
//   - sim/trace/: allocation and discovery decision traces
//
// # Key Interfaces
//
//   - PriorityPolicy: rank producing mines for allocation (lowest-cost, committed-first, ...)
//   - DevelopmentPolicy: choose explored deposits to develop (immediate, reserve-shortfall, none)
//   - Sampler: draw tonnage, grade and lead time for discoveries
//
// Randomness is drawn only from PartitionedRNG streams derived from the master
// seed, the scenario name, the iteration index and the sub-process, so
// iterations can run in any order or in parallel with identical results.
package sim
