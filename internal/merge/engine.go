package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/execshell"
	"github.com/temirov/foldmerge/internal/gitrepo"
)

const (
	mergeMessageTemplateConstant     = "Fold priority content from %s into %s"
	loggerMissingMessageConstant     = "merge engine logger not configured"
	priorityBranchRequiredMessage    = "priority branch must be provided"
	stageStartedMessageConstant      = "Merge stage started"
	stageRetryMessageConstant        = "Merge stage failed transiently, retrying"
	stageFailedMessageConstant       = "Merge stage failed"
	sequenceCompletedMessageConstant = "Merge sequence completed"
	logFieldRepositoryConstant       = "repository"
	logFieldStageConstant            = "stage"
	logFieldAttemptConstant          = "attempt"
	logFieldDelayConstant            = "delay"
	logFieldOutcomeConstant          = "outcome"
	logFieldTargetBranchConstant     = "target_branch"
)

var (
	// ErrLoggerNotConfigured indicates a nil logger was supplied.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrPriorityBranchRequired indicates Run was called without a priority branch.
	ErrPriorityBranchRequired = errors.New(priorityBranchRequiredMessage)
)

// Repository is the slice of a repository handle the engine drives.
type Repository interface {
	Name() string
	TargetBranch() string
	StagingBranch() string
	RemoteTrackingBranch() string
	Fetch(executionContext context.Context) error
	CreateBranch(executionContext context.Context, name string, startPoint string) error
	CheckoutReset(executionContext context.Context, branch string, startPoint string) error
	MergePreferIncoming(executionContext context.Context, request gitrepo.MergeRequest) error
	Push(executionContext context.Context, branch string) error
	PushTags(executionContext context.Context) error
}

// Dependencies configures an Engine.
type Dependencies struct {
	Logger  *zap.Logger
	Sleeper Sleeper
	Policy  RetryPolicy
}

// Engine runs the merge sequence.
type Engine struct {
	logger  *zap.Logger
	sleeper Sleeper
	policy  RetryPolicy
}

// NewEngine validates dependencies and constructs an Engine. A zero Policy means DefaultRetryPolicy.
func NewEngine(dependencies Dependencies) (*Engine, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	sleeper := dependencies.Sleeper
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return &Engine{logger: dependencies.Logger, sleeper: sleeper, policy: dependencies.Policy.normalized()}, nil
}

type stageStep struct {
	stage     Stage
	retryable bool
	operation func(context.Context) error
}

// Run folds priorityBranch into the repository's target branch and publishes it. The staging
// branch is created from priorityBranch, the target branch is reset to its remote-tracking tip,
// and the staging branch is merged with every conflict resolved in favor of the staging side.
// Local edits to the target branch that conflict with the priority content are lost.
func (engine *Engine) Run(executionContext context.Context, repository Repository, priorityBranch string) Outcome {
	trimmedPriority := strings.TrimSpace(priorityBranch)
	if len(trimmedPriority) == 0 {
		return Outcome{Kind: OutcomePermanentFailure, Stage: StageStagingBranch, Attempts: 1, Detail: ErrPriorityBranchRequired.Error(), Cause: ErrPriorityBranchRequired}
	}

	targetBranch := repository.TargetBranch()
	stagingBranch := repository.StagingBranch()
	steps := []stageStep{
		{stage: StageFetch, retryable: true, operation: repository.Fetch},
		{stage: StageStagingBranch, operation: func(stepContext context.Context) error {
			return repository.CreateBranch(stepContext, stagingBranch, trimmedPriority)
		}},
		{stage: StageCheckout, operation: func(stepContext context.Context) error {
			return repository.CheckoutReset(stepContext, targetBranch, repository.RemoteTrackingBranch())
		}},
		{stage: StageMerge, operation: func(stepContext context.Context) error {
			return repository.MergePreferIncoming(stepContext, gitrepo.MergeRequest{
				Branch:  stagingBranch,
				Message: fmt.Sprintf(mergeMessageTemplateConstant, trimmedPriority, targetBranch),
			})
		}},
		{stage: StagePush, retryable: true, operation: func(stepContext context.Context) error {
			return repository.Push(stepContext, targetBranch)
		}},
		{stage: StagePushTags, retryable: true, operation: repository.PushTags},
	}

	for _, step := range steps {
		engine.logger.Debug(stageStartedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Name()), zap.String(logFieldStageConstant, string(step.stage)))
		outcome := engine.runStep(executionContext, repository.Name(), step)
		if !outcome.Succeeded() {
			engine.logger.Warn(
				stageFailedMessageConstant,
				zap.String(logFieldRepositoryConstant, repository.Name()),
				zap.String(logFieldStageConstant, string(outcome.Stage)),
				zap.Int(logFieldAttemptConstant, outcome.Attempts),
				zap.String(logFieldOutcomeConstant, string(outcome.Kind)),
				zap.Error(outcome.Cause),
			)
			return outcome
		}
	}

	engine.logger.Info(sequenceCompletedMessageConstant, zap.String(logFieldRepositoryConstant, repository.Name()), zap.String(logFieldTargetBranchConstant, targetBranch))
	return Outcome{Kind: OutcomeSuccess}
}

// runStep executes one stage. Retryable stages loop until success, a non-transient failure, or the
// attempt budget is spent.
func (engine *Engine) runStep(executionContext context.Context, repositoryName string, step stageStep) Outcome {
	attempt := 0
	for {
		attempt++
		stepError := step.operation(executionContext)
		if stepError == nil {
			return Outcome{Kind: OutcomeSuccess}
		}

		if !step.retryable || !engine.isTransient(stepError) {
			return Outcome{Kind: OutcomePermanentFailure, Stage: step.stage, Attempts: attempt, Detail: describeFailure(stepError), Cause: stepError}
		}
		if attempt >= engine.policy.MaximumAttempts {
			return Outcome{Kind: OutcomeTransientFailure, Stage: step.stage, Attempts: attempt, Detail: describeFailure(stepError), Cause: stepError}
		}

		engine.logger.Info(
			stageRetryMessageConstant,
			zap.String(logFieldRepositoryConstant, repositoryName),
			zap.String(logFieldStageConstant, string(step.stage)),
			zap.Int(logFieldAttemptConstant, attempt),
			zap.Duration(logFieldDelayConstant, engine.policy.Delay),
		)
		if sleepError := engine.sleeper.Sleep(executionContext, engine.policy.Delay); sleepError != nil {
			return Outcome{Kind: OutcomeTransientFailure, Stage: step.stage, Attempts: attempt, Detail: describeFailure(sleepError), Cause: errors.Join(stepError, sleepError)}
		}
	}
}

func (engine *Engine) isTransient(stepError error) bool {
	exitCode, failed := execshell.ExitCode(stepError)
	return failed && exitCode == engine.policy.TransientExitCode
}

func describeFailure(failure error) string {
	var commandFailure execshell.CommandFailedError
	if errors.As(failure, &commandFailure) {
		standardError := strings.TrimSpace(commandFailure.Result.StandardError)
		if len(standardError) > 0 {
			return strings.TrimSpace(strings.SplitN(standardError, "\n", 2)[0])
		}
	}
	return failure.Error()
}
