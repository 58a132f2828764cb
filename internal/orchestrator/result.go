package orchestrator

import (
	"errors"

	"github.com/temirov/foldmerge/internal/divergence"
	"github.com/temirov/foldmerge/internal/merge"
	"github.com/temirov/foldmerge/internal/notify"
	"github.com/temirov/foldmerge/internal/quarantine"
)

// State is a position in the run state machine.
type State string

// Run states in order. Archived and Errored are terminal.
const (
	StatePending     State = "pending"
	StateStaged      State = "staged"
	StateClassified  State = "classified"
	StateQuarantined State = "quarantined"
	StateHeadChecked State = "head-checked"
	StateMerged      State = "merged"
	StatePushed      State = "pushed"
	StateVerified    State = "verified"
	StateArchived    State = "archived"
	StateErrored     State = "errored"
)

// RunResult summarizes one run.
type RunResult struct {
	Project         string
	Repository      string
	State           State
	Reached         State
	Reason          string
	Error           error
	Merge           merge.Outcome
	Divergence      divergence.Report
	Quarantines     []quarantine.Report
	RemovedBranches []string
	Notifications   []notify.Status
	Destination     string
}

// Errored reports whether the run ended in the error area.
func (result RunResult) Errored() bool {
	return result.State == StateErrored
}

// Failed reports whether the run errored or could not be routed cleanly.
func (result RunResult) Failed() bool {
	return result.Errored() || result.Error != nil
}

// Kind returns the error kind of an Errored run and an empty kind otherwise.
func (result RunResult) Kind() ErrorKind {
	var runError RunError
	if errors.As(result.Error, &runError) {
		return runError.Kind
	}
	return ""
}

func (result *RunResult) advance(state State) {
	result.State = state
	result.Reached = state
}
