package sim

import (
	"math"
	"testing"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

func TestSimulationKey_ForIteration_Deterministic(t *testing.T) {
	// GIVEN the same master key, scenario and iteration
	master := NewSimulationKey(42)

	// THEN the derived key is stable
	if master.ForIteration("baseline", 3) != master.ForIteration("baseline", 3) {
		t.Error("ForIteration not deterministic")
	}
}

func TestSimulationKey_ForIteration_DistinctStreams(t *testing.T) {
	// GIVEN one master key
	master := NewSimulationKey(42)

	// WHEN keys are derived for several iterations and scenarios
	seen := make(map[SimulationKey]string)
	for _, scenario := range []string{"baseline", "high"} {
		for i := 0; i < 50; i++ {
			k := master.ForIteration(scenario, i)
			if prev, ok := seen[k]; ok {
				t.Fatalf("key collision between %s and %s/%d", prev, scenario, i)
			}
			seen[k] = scenario
		}
	}

	// THEN neighbouring iterations do not share a first draw
	a := NewPartitionedRNG(master.ForIteration("baseline", 0)).ForSubsystem(SubsystemDiscovery).Float64()
	b := NewPartitionedRNG(master.ForIteration("baseline", 1)).ForSubsystem(SubsystemDiscovery).Float64()
	if a == b {
		t.Errorf("iterations 0 and 1 drew the same first value %v", a)
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	vals1 := make([]float64, 3)
	vals2 := make([]float64, 3)

	for i := 0; i < 3; i++ {
		vals1[i] = rng1.ForSubsystem(SubsystemGrade).Float64()
	}
	for i := 0; i < 3; i++ {
		vals2[i] = rng2.ForSubsystem(SubsystemGrade).Float64()
	}

	for i := 0; i < 3; i++ {
		if vals1[i] != vals2[i] {
			t.Errorf("Value %d: got %v and %v, want identical", i, vals1[i], vals2[i])
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from subsystem A doesn't affect subsystem B
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	rngB := NewPartitionedRNG(NewSimulationKey(42))

	// Draw 10 values from A's discovery subsystem (this should NOT affect lead time)
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemDiscovery).Float64()
	}

	// Draw 5 values from B's lead time subsystem
	for i := 0; i < 5; i++ {
		rngB.ForSubsystem(SubsystemLeadTime).Float64()
	}

	aFirst := rngA.ForSubsystem(SubsystemLeadTime).Float64()
	bSixth := rngB.ForSubsystem(SubsystemLeadTime).Float64()

	fresh := NewPartitionedRNG(NewSimulationKey(42))
	expectedFirst := fresh.ForSubsystem(SubsystemLeadTime).Float64()

	if aFirst != expectedFirst {
		t.Errorf("A's lead time first value = %v, want %v (isolation broken)", aFirst, expectedFirst)
	}
	if bSixth == expectedFirst {
		t.Error("B's 6th lead time value equals 1st value - unexpected")
	}
}

func TestPartitionedRNG_ProgramStreamsIndependent(t *testing.T) {
	// GIVEN two programs in the same iteration
	rng := NewPartitionedRNG(NewSimulationKey(7))
	cu := rng.ForSubsystem(SubsystemProgram(SubsystemDiscovery, "AU/Cu/porphyry"))
	ni := rng.ForSubsystem(SubsystemProgram(SubsystemDiscovery, "AU/Ni/sulphide"))

	// WHEN the copper program draws many values first
	for i := 0; i < 100; i++ {
		cu.Float64()
	}

	// THEN the nickel program still sees the head of its own sequence
	want := NewPartitionedRNG(NewSimulationKey(7)).
		ForSubsystem(SubsystemProgram(SubsystemDiscovery, "AU/Ni/sulphide")).Float64()
	if got := ni.Float64(); got != want {
		t.Errorf("nickel first draw = %v, want %v", got, want)
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	// BDD: Same name returns same *rand.Rand instance
	rng := NewPartitionedRNG(NewSimulationKey(42))

	rng1 := rng.ForSubsystem(SubsystemDiscovery)
	rng2 := rng.ForSubsystem(SubsystemDiscovery)

	if rng1 != rng2 {
		t.Error("ForSubsystem returned different instances for same name")
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	seed := int64(12345)
	rng := NewPartitionedRNG(NewSimulationKey(seed))

	if rng.Key() != SimulationKey(seed) {
		t.Errorf("Key() = %v, want %v", rng.Key(), seed)
	}
}

func TestPartitionedRNG_NegativeSeed(t *testing.T) {
	// BDD: MinInt64 seed works correctly
	rng := NewPartitionedRNG(NewSimulationKey(math.MinInt64))

	val := rng.ForSubsystem(SubsystemGrade).Float64()
	if val < 0 || val >= 1 {
		t.Errorf("Float64() returned %v, want [0, 1)", val)
	}
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	// BDD: Subsystems map is empty until ForSubsystem is called
	rng := NewPartitionedRNG(NewSimulationKey(42))

	if len(rng.subsystems) != 0 {
		t.Errorf("New PartitionedRNG has %d subsystems, want 0", len(rng.subsystems))
	}

	rng.ForSubsystem(SubsystemDiscovery)

	if len(rng.subsystems) != 1 {
		t.Errorf("After one ForSubsystem call, have %d subsystems, want 1", len(rng.subsystems))
	}
}

// === fnv1a64 Tests ===

func TestFnv1a64_Collision(t *testing.T) {
	names := []string{
		SubsystemDiscovery,
		SubsystemGrade,
		SubsystemLeadTime,
		SubsystemProgram(SubsystemDiscovery, "AU/Cu/porphyry"),
		SubsystemProgram(SubsystemGrade, "AU/Cu/porphyry"),
		"",
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

// === Benchmark ===

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemDiscovery)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemDiscovery)
	}
}
