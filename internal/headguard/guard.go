package headguard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/gitrepo"
)

const (
	headReferenceConstant            = "HEAD"
	branchListSeparatorConstant      = ", "
	multipleBranchesTemplateConstant = "Multiple branches detected: %s"
	cleanupFailedTemplateConstant    = "Message detected: %s"
	branchListErrorTemplateConstant  = "unable to list branches: %w"
	loggerMissingMessageConstant     = "head guard logger not configured"
	expectedBranchMissingMessage     = "expected branch must be provided"
	strayCleanedMessageConstant      = "Cleaned up stray branch"
	headUnsafeMessageConstant        = "Branch topology is not safe to merge"
	logFieldRepositoryConstant       = "repository"
	logFieldStrayConstant            = "stray"
	logFieldReasonConstant           = "reason"
	logFieldExpectedBranchConstant   = "expected_branch"
)

var (
	// ErrLoggerNotConfigured indicates a nil logger was supplied.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrExpectedBranchRequired indicates Guard was called without an expected branch.
	ErrExpectedBranchRequired = errors.New(expectedBranchMissingMessage)
)

// BranchInspector is the slice of a repository handle the guard needs.
type BranchInspector interface {
	Name() string
	ListBranches(executionContext context.Context) ([]gitrepo.BranchEntry, error)
	DeleteBranch(executionContext context.Context, name string) error
	CheckoutReset(executionContext context.Context, branch string, startPoint string) error
}

// Verdict is the outcome of a guard check. Reason is set only when Safe is false.
type Verdict struct {
	Safe    bool
	Reason  string
	Removed []string
}

// Guard inspects and, for a single stray, repairs branch topology.
type Guard struct {
	logger *zap.Logger
}

// NewGuard constructs a Guard.
func NewGuard(logger *zap.Logger) (*Guard, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Guard{logger: logger}, nil
}

// Check lists branches and treats every entry other than expectedBranch, a detached HEAD included,
// as a stray. No strays is safe. One stray is cleaned up and the tree is safe when cleanup succeeds.
// Two or more strays are unsafe and left untouched. Only a failure to list branches is an error.
func (guard *Guard) Check(executionContext context.Context, repository BranchInspector, expectedBranch string) (Verdict, error) {
	trimmedExpected := strings.TrimSpace(expectedBranch)
	if len(trimmedExpected) == 0 {
		return Verdict{}, ErrExpectedBranchRequired
	}

	entries, listError := repository.ListBranches(executionContext)
	if listError != nil {
		return Verdict{}, fmt.Errorf(branchListErrorTemplateConstant, listError)
	}

	strays := make([]gitrepo.BranchEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Detached && entry.Name == trimmedExpected {
			continue
		}
		strays = append(strays, entry)
	}

	switch len(strays) {
	case 0:
		return Verdict{Safe: true, Removed: []string{}}, nil
	case 1:
		return guard.cleanup(executionContext, repository, trimmedExpected, strays[0]), nil
	default:
		names := make([]string, 0, len(strays))
		for _, stray := range strays {
			names = append(names, stray.Name)
		}
		return guard.unsafe(repository, trimmedExpected, fmt.Sprintf(multipleBranchesTemplateConstant, strings.Join(names, branchListSeparatorConstant))), nil
	}
}

func (guard *Guard) cleanup(executionContext context.Context, repository BranchInspector, expectedBranch string, stray gitrepo.BranchEntry) Verdict {
	if stray.Detached || stray.Current {
		if attachError := repository.CheckoutReset(executionContext, expectedBranch, headReferenceConstant); attachError != nil {
			return guard.unsafe(repository, expectedBranch, fmt.Sprintf(cleanupFailedTemplateConstant, attachError.Error()))
		}
	}
	if !stray.Detached {
		if deleteError := repository.DeleteBranch(executionContext, stray.Name); deleteError != nil {
			return guard.unsafe(repository, expectedBranch, fmt.Sprintf(cleanupFailedTemplateConstant, deleteError.Error()))
		}
	}

	guard.logger.Info(
		strayCleanedMessageConstant,
		zap.String(logFieldRepositoryConstant, repository.Name()),
		zap.String(logFieldStrayConstant, stray.Name),
		zap.String(logFieldExpectedBranchConstant, expectedBranch),
	)
	return Verdict{Safe: true, Removed: []string{stray.Name}}
}

func (guard *Guard) unsafe(repository BranchInspector, expectedBranch string, reason string) Verdict {
	guard.logger.Warn(
		headUnsafeMessageConstant,
		zap.String(logFieldRepositoryConstant, repository.Name()),
		zap.String(logFieldExpectedBranchConstant, expectedBranch),
		zap.String(logFieldReasonConstant, reason),
	)
	return Verdict{Safe: false, Reason: reason, Removed: []string{}}
}
