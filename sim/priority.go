package sim

import (
	"fmt"
	"sort"
)

// PriorityPolicy ranks allocation candidates. Mines are ordered by Tier
// ascending, then Score descending, then key ascending.
// Implementations MUST NOT modify the mine.
type PriorityPolicy interface {
	// Tier groups mines; lower tiers are allocated first.
	Tier(m *Mine) int
	// Score orders mines within a tier; higher first.
	Score(m *Mine) float64
	// Baseline reports whether the mine produces its full available capacity
	// regardless of demand.
	Baseline(m *Mine) bool
}

// Screen is implemented by policies that refuse some mines outright. A
// refused mine is not offered capacity in the year.
type Screen interface {
	Eligible(m *Mine) bool
}

// admits reports whether policy lets m produce.
func admits(policy PriorityPolicy, m *Mine) bool {
	if sc, ok := policy.(Screen); ok {
		return sc.Eligible(m)
	}
	return true
}

// LowestCost ranks by cash cost, cheapest first. All capacity is discretionary.
type LowestCost struct{}

func (LowestCost) Tier(_ *Mine) int { return 0 }
func (LowestCost) Score(m *Mine) float64 { return -m.CashCost }
func (LowestCost) Baseline(_ *Mine) bool { return false }

// CommittedFirst treats committed mines as baseline producers and ranks the
// remaining swing capacity by cash cost.
type CommittedFirst struct{}

func (CommittedFirst) Tier(m *Mine) int {
	if m.Committed {
		return 0
	}
	return 1
}
func (CommittedFirst) Score(m *Mine) float64 { return -m.CashCost }
func (CommittedFirst) Baseline(m *Mine) bool { return m.Committed }

// HighestValue ranks by net value score, highest first. Mines with a
// negative value are not worth mining and never produce.
type HighestValue struct{}

func (HighestValue) Tier(_ *Mine) int { return 0 }
func (HighestValue) Score(m *Mine) float64 { return m.Value }
func (HighestValue) Baseline(_ *Mine) bool { return false }
func (HighestValue) Eligible(m *Mine) bool { return m.Value >= 0 }

// ActiveFirst allocates to operating mines before reactivating idle ones, then
// ranks by value. Negative-value mines never produce.
type ActiveFirst struct{}

func (ActiveFirst) Tier(m *Mine) int {
	if m.Stage == StageOperating {
		return 0
	}
	return 1
}
func (ActiveFirst) Score(m *Mine) float64 { return m.Value }
func (ActiveFirst) Baseline(_ *Mine) bool { return false }
func (ActiveFirst) Eligible(m *Mine) bool { return m.Value >= 0 }

// KeyOrder allocates in key order only.
type KeyOrder struct{}

func (KeyOrder) Tier(_ *Mine) int { return 0 }
func (KeyOrder) Score(_ *Mine) float64 { return 0 }
func (KeyOrder) Baseline(_ *Mine) bool { return false }

// validPriorityPolicies is the set of recognized priority policy names.
// Shared by Validate and NewPriorityPolicy. Empty selects lowest-cost.
var validPriorityPolicies = map[string]bool{
	"":                true,
	"lowest-cost":     true,
	"committed-first": true,
	"highest-value":   true,
	"active-first":    true,
	"key-order":       true,
}

// IsValidPriorityPolicy returns true if name is a recognized priority policy.
func IsValidPriorityPolicy(name string) bool {
	return validPriorityPolicies[name]
}

// ValidPriorityPolicyNames returns sorted non-empty policy names.
func ValidPriorityPolicyNames() []string {
	return validNames(validPriorityPolicies)
}

// NewPriorityPolicy creates a priority policy by name.
// Panics on unrecognized names; callers validate first.
func NewPriorityPolicy(name string) PriorityPolicy {
	switch name {
	case "", "lowest-cost":
		return LowestCost{}
	case "committed-first":
		return CommittedFirst{}
	case "highest-value":
		return HighestValue{}
	case "active-first":
		return ActiveFirst{}
	case "key-order":
		return KeyOrder{}
	default:
		panic(fmt.Sprintf("unknown priority policy %q", name))
	}
}

// rankMines sorts mines in allocation order. Equal tier and score fall back to
// key order so allocation is reproducible.
func rankMines(policy PriorityPolicy, mines []*Mine) {
	sort.SliceStable(mines, func(i, j int) bool {
		a, b := mines[i], mines[j]
		ta, tb := policy.Tier(a), policy.Tier(b)
		if ta != tb {
			return ta < tb
		}
		sa, sb := policy.Score(a), policy.Score(b)
		if sa != sb {
			return sa > sb
		}
		return a.Key < b.Key
	})
}

func validNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
