package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func keysOf(mines []*Mine) []string {
	out := make([]string, len(mines))
	for i, m := range mines {
		out[i] = m.Key
	}
	return out
}

func TestRankMines_Policies(t *testing.T) {
	build := func() []*Mine {
		a := opMine("a", 10, 30)
		a.Value = 1
		b := opMine("b", 10, 10)
		b.Value = 5
		b.Committed = true
		c := opMine("c", 10, 20)
		c.Value = 9
		c.Stage = StageCareAndMaintenance
		d := opMine("d", 10, 10)
		d.Value = 5
		return []*Mine{d, c, b, a}
	}
	tests := []struct {
		policy string
		want   []string
	}{
		{"lowest-cost", []string{"b", "d", "c", "a"}},
		{"committed-first", []string{"b", "d", "c", "a"}},
		{"highest-value", []string{"c", "b", "d", "a"}},
		{"active-first", []string{"b", "d", "a", "c"}},
		{"key-order", []string{"a", "b", "c", "d"}},
		{"", []string{"b", "d", "c", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			mines := build()
			rankMines(NewPriorityPolicy(tt.policy), mines)
			assert.Equal(t, tt.want, keysOf(mines))
		})
	}
}

func TestCommittedFirst_TierBeatsCost(t *testing.T) {
	// GIVEN an expensive committed mine and a cheap swing mine
	committed := opMine("z", 10, 99)
	committed.Committed = true
	swing := opMine("a", 10, 1)
	mines := []*Mine{swing, committed}

	// WHEN ranked
	rankMines(CommittedFirst{}, mines)

	// THEN the committed mine leads and is the only baseline
	assert.Equal(t, []string{"z", "a"}, keysOf(mines))
	assert.True(t, CommittedFirst{}.Baseline(committed))
	assert.False(t, CommittedFirst{}.Baseline(swing))
	assert.False(t, LowestCost{}.Baseline(committed))
}

func TestNewPriorityPolicy_UnknownPanics(t *testing.T) {
	assert.Panics(t, func() { NewPriorityPolicy("cheapest") })
}

func TestValidPriorityPolicyNames_SortedWithoutEmpty(t *testing.T) {
	assert.Equal(t, []string{"active-first", "committed-first", "highest-value", "key-order", "lowest-cost"}, ValidPriorityPolicyNames())
	for _, n := range ValidPriorityPolicyNames() {
		assert.True(t, IsValidPriorityPolicy(n))
	}
}
