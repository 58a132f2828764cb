package merge

import "fmt"

const outcomeDescriptionTemplateConstant = "%s at %s after %d attempt(s): %s"

// Stage names a step of the merge sequence.
type Stage string

// Merge sequence stages in execution order.
const (
	StageFetch         Stage = "fetch"
	StageStagingBranch Stage = "staging-branch"
	StageCheckout      Stage = "checkout"
	StageMerge         Stage = "merge"
	StagePush          Stage = "push"
	StagePushTags      Stage = "push-tags"
)

// IsPublishing reports whether the stage talks to the remote after the merge was made locally.
func (stage Stage) IsPublishing() bool {
	return stage == StagePush || stage == StagePushTags
}

// OutcomeKind tags an Outcome.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeTransientFailure OutcomeKind = "transient-failure"
	OutcomePermanentFailure OutcomeKind = "permanent-failure"
)

// Outcome is the immutable result of Engine.Run. Stage, Attempts, and Detail describe the failing
// stage and are empty on success.
type Outcome struct {
	Kind     OutcomeKind
	Stage    Stage
	Attempts int
	Detail   string
	Cause    error
}

// Succeeded reports whether the whole sequence completed.
func (outcome Outcome) Succeeded() bool {
	return outcome.Kind == OutcomeSuccess
}

// Description renders a one-line summary for failed outcomes.
func (outcome Outcome) Description() string {
	if outcome.Succeeded() {
		return string(OutcomeSuccess)
	}
	return fmt.Sprintf(outcomeDescriptionTemplateConstant, outcome.Kind, outcome.Stage, outcome.Attempts, outcome.Detail)
}
