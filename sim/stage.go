package sim

import "fmt"

// Stage is the lifecycle stage of a deposit or mine.
type Stage string

const (
	StageUndiscovered       Stage = "undiscovered"
	StageExplored           Stage = "explored"
	StageDevelopment        Stage = "development"
	StageOperating          Stage = "operating"
	StageCareAndMaintenance Stage = "care_and_maintenance"
	StageDepleted           Stage = "depleted"
)

// AllStages lists every stage in lifecycle order.
var AllStages = []Stage{
	StageUndiscovered,
	StageExplored,
	StageDevelopment,
	StageOperating,
	StageCareAndMaintenance,
	StageDepleted,
}

// transitions is the exhaustive transition table. A stage absent from a row's
// set cannot be reached from that row. Depleted has no outgoing transitions.
var transitions = map[Stage]map[Stage]bool{
	StageUndiscovered:       {StageExplored: true, StageDepleted: true},
	StageExplored:           {StageDevelopment: true, StageDepleted: true},
	StageDevelopment:        {StageOperating: true, StageDepleted: true},
	StageOperating:          {StageCareAndMaintenance: true, StageDepleted: true},
	StageCareAndMaintenance: {StageOperating: true, StageDepleted: true},
	StageDepleted:           {},
}

// IsValidStage reports whether s is a recognized stage.
func IsValidStage(s Stage) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to Stage) bool {
	return transitions[from][to]
}

// Rank orders stages for monotonicity checks. Operating and care-and-maintenance
// share a rank because the toggle between them is the only permitted reversal.
func (s Stage) Rank() int {
	switch s {
	case StageUndiscovered:
		return 0
	case StageExplored:
		return 1
	case StageDevelopment:
		return 2
	case StageOperating, StageCareAndMaintenance:
		return 3
	case StageDepleted:
		return 4
	default:
		return -1
	}
}

// Producing reports whether a mine in this stage is a candidate for allocation.
func (s Stage) Producing() bool {
	return s == StageOperating || s == StageCareAndMaintenance
}

// StageTransition records one edge taken by a mine during a year.
type StageTransition struct {
	MineKey string
	Year    int
	From    Stage
	To      Stage
	Reason  string
}

func (t StageTransition) String() string {
	return fmt.Sprintf("%s %d: %s -> %s (%s)", t.MineKey, t.Year, t.From, t.To, t.Reason)
}
