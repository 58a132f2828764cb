package divergence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	rangeTemplateConstant            = "%s..%s"
	countErrorTemplateConstant       = "unable to count %s commits: %w"
	unknownDirectionTemplateConstant = "unknown divergence direction %d"
	loggerMissingMessageConstant     = "divergence checker logger not configured"
	reportTemplateConstant           = "%d ahead, %d behind"
	divergenceCheckedMessageConstant = "Checked divergence"
	logFieldRepositoryConstant       = "repository"
	logFieldAheadConstant            = "ahead"
	logFieldBehindConstant           = "behind"
)

// ErrLoggerNotConfigured indicates a nil logger was supplied.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// Direction selects which side's exclusive commits are counted.
type Direction int

// Directions.
const (
	// LocalAhead counts commits on the local target branch missing from the remote-tracking branch.
	LocalAhead Direction = iota + 1
	// RemoteAhead counts commits on the remote-tracking branch missing from the local target branch.
	RemoteAhead
)

// String names the direction.
func (direction Direction) String() string {
	switch direction {
	case LocalAhead:
		return "local-ahead"
	case RemoteAhead:
		return "remote-ahead"
	default:
		return fmt.Sprintf(unknownDirectionTemplateConstant, int(direction))
	}
}

// Report holds both directional counts.
type Report struct {
	Ahead  int
	Behind int
}

// Reconciled reports whether neither side has exclusive commits.
func (report Report) Reconciled() bool {
	return report.Ahead == 0 && report.Behind == 0
}

// String renders the counts.
func (report Report) String() string {
	return fmt.Sprintf(reportTemplateConstant, report.Ahead, report.Behind)
}

// Repository is the slice of a repository handle the checker needs.
type Repository interface {
	Name() string
	TargetBranch() string
	RemoteTrackingBranch() string
	CountCommits(executionContext context.Context, rangeExpression string) (int, error)
}

// Checker counts commits in each direction.
type Checker struct {
	logger *zap.Logger
}

// NewChecker constructs a Checker.
func NewChecker(logger *zap.Logger) (*Checker, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Checker{logger: logger}, nil
}

// Count returns the number of commits exclusive to the side named by direction.
func (checker *Checker) Count(executionContext context.Context, repository Repository, direction Direction) (int, error) {
	var rangeExpression string
	switch direction {
	case LocalAhead:
		rangeExpression = fmt.Sprintf(rangeTemplateConstant, repository.RemoteTrackingBranch(), repository.TargetBranch())
	case RemoteAhead:
		rangeExpression = fmt.Sprintf(rangeTemplateConstant, repository.TargetBranch(), repository.RemoteTrackingBranch())
	default:
		return 0, errors.New(direction.String())
	}

	count, countError := repository.CountCommits(executionContext, rangeExpression)
	if countError != nil {
		return 0, fmt.Errorf(countErrorTemplateConstant, direction, countError)
	}
	return count, nil
}

// Check counts both directions independently.
func (checker *Checker) Check(executionContext context.Context, repository Repository) (Report, error) {
	ahead, aheadError := checker.Count(executionContext, repository, LocalAhead)
	if aheadError != nil {
		return Report{}, aheadError
	}
	behind, behindError := checker.Count(executionContext, repository, RemoteAhead)
	if behindError != nil {
		return Report{}, behindError
	}

	report := Report{Ahead: ahead, Behind: behind}
	checker.logger.Info(
		divergenceCheckedMessageConstant,
		zap.String(logFieldRepositoryConstant, repository.Name()),
		zap.Int(logFieldAheadConstant, report.Ahead),
		zap.Int(logFieldBehindConstant, report.Behind),
	)
	return report, nil
}
