package model

// Stage is the position of a run in the relocation state machine.
type Stage string

// Stages in the order a successful run passes through them.
const (
	StageUnscanned  Stage = "unscanned"
	StageScanned    Stage = "scanned"
	StageClassified Stage = "classified"
	StagePlanned    Stage = "planned"
	StageCopied     Stage = "copied"
	StageRewritten  Stage = "rewritten"
	StageFinalized  Stage = "finalized"
	StageAborted    Stage = "aborted"
)

var stageOrder = map[Stage]int{
	StageUnscanned:  0,
	StageScanned:    1,
	StageClassified: 2,
	StagePlanned:    3,
	StageCopied:     4,
	StageRewritten:  5,
	StageFinalized:  6,
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageFinalized || s == StageAborted
}

// CanAdvanceTo reports whether next is a legal successor of s. Any
// non-terminal stage may abort.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}

	if next == StageAborted {
		return true
	}

	return stageOrder[next] == stageOrder[s]+1
}
