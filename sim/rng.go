package sim

import (
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible random stream family.
// Two runs with the same master SimulationKey and identical inputs MUST
// produce bit-for-bit identical year results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// ForIteration derives the key of one (scenario, iteration) pair from the
// master key. Derivation is positional, so iterations can be run in any order
// or in parallel and still receive the same streams.
func (k SimulationKey) ForIteration(scenario string, iteration int) SimulationKey {
	scenarioSeed := splitmix64(uint64(k) ^ uint64(fnv1a64(scenario)))
	return SimulationKey(splitmix64(scenarioSeed + uint64(iteration)))
}

// === Subsystem Constants ===

const (
	// SubsystemDiscovery drives discovery success draws and discovered tonnage.
	SubsystemDiscovery = "discovery"

	// SubsystemGrade drives sampled primary and co-product grades.
	SubsystemGrade = "grade"

	// SubsystemLeadTime drives sampled development lead times.
	SubsystemLeadTime = "leadtime"

	// SubsystemDevelopment drives per-deposit development probability tests.
	SubsystemDevelopment = "development"
)

// SubsystemProgram returns the subsystem name of one stochastic sub-process
// scoped to a single exploration program, e.g. "discovery/AU/Cu/porphyry".
func SubsystemProgram(subsystem string, program ProgramID) string {
	return subsystem + "/" + string(program)
}

// SubsystemDeposit returns the subsystem name of a sub-process scoped to one
// deposit, e.g. "development#AU-Cu-D3".
func SubsystemDeposit(subsystem, key string) string {
	return subsystem + "#" + key
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: subsystemSeed = key XOR fnv1a64(subsystemName).
// Drawing from one subsystem never shifts another subsystem's sequence.
//
// Thread-safety: NOT thread-safe. Each iteration owns its own PartitionedRNG.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// splitmix64 is the SplitMix64 finalizer; it decorrelates adjacent inputs.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
