package orchestrator

import (
	"errors"
	"fmt"
)

const runErrorTemplateConstant = "%s: %s"

// ErrorKind classifies why a run ended in the error area.
type ErrorKind string

// Error kinds.
const (
	KindConfigError               ErrorKind = "config-error"
	KindNotAVersionControlledTree ErrorKind = "not-a-version-controlled-tree"
	KindRemoteUnreachable         ErrorKind = "remote-unreachable"
	KindTransientBackendError     ErrorKind = "transient-backend-error"
	KindPermanentBackendError     ErrorKind = "permanent-backend-error"
	KindAmbiguousHeadState        ErrorKind = "ambiguous-head-state"
	KindDivergenceUnresolved      ErrorKind = "divergence-unresolved"
	KindRunInProgress             ErrorKind = "run-in-progress"
	KindQuarantineFailure         ErrorKind = "quarantine-failure"
	KindFilesystemFailure         ErrorKind = "filesystem-failure"
)

var (
	// ErrConfiguration matches RunError values of kind KindConfigError.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotAVersionControlledTree matches RunError values of kind KindNotAVersionControlledTree.
	ErrNotAVersionControlledTree = errors.New("not a version-controlled tree")
	// ErrRemoteUnreachable matches RunError values of kind KindRemoteUnreachable.
	ErrRemoteUnreachable = errors.New("remote unreachable")
	// ErrTransientBackend matches RunError values of kind KindTransientBackendError.
	ErrTransientBackend = errors.New("transient backend error")
	// ErrPermanentBackend matches RunError values of kind KindPermanentBackendError.
	ErrPermanentBackend = errors.New("permanent backend error")
	// ErrAmbiguousHeadState matches RunError values of kind KindAmbiguousHeadState.
	ErrAmbiguousHeadState = errors.New("ambiguous head state")
	// ErrDivergenceUnresolved matches RunError values of kind KindDivergenceUnresolved.
	ErrDivergenceUnresolved = errors.New("divergence unresolved")
	// ErrRunInProgress matches RunError values of kind KindRunInProgress.
	ErrRunInProgress = errors.New("run in progress")
	// ErrQuarantineFailure matches RunError values of kind KindQuarantineFailure.
	ErrQuarantineFailure = errors.New("quarantine failure")
	// ErrFilesystemFailure matches RunError values of kind KindFilesystemFailure.
	ErrFilesystemFailure = errors.New("filesystem failure")
)

var kindSentinels = map[ErrorKind]error{
	KindConfigError:               ErrConfiguration,
	KindNotAVersionControlledTree: ErrNotAVersionControlledTree,
	KindRemoteUnreachable:         ErrRemoteUnreachable,
	KindTransientBackendError:     ErrTransientBackend,
	KindPermanentBackendError:     ErrPermanentBackend,
	KindAmbiguousHeadState:        ErrAmbiguousHeadState,
	KindDivergenceUnresolved:      ErrDivergenceUnresolved,
	KindRunInProgress:             ErrRunInProgress,
	KindQuarantineFailure:         ErrQuarantineFailure,
	KindFilesystemFailure:         ErrFilesystemFailure,
}

// RunError is the primary cause of an Errored run. Detail, when set, replaces the cause text in
// reports.
type RunError struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func newRunError(kind ErrorKind, cause error) RunError {
	return RunError{Kind: kind, Cause: cause}
}

// Error describes the failure.
func (runError RunError) Error() string {
	return fmt.Sprintf(runErrorTemplateConstant, runError.Kind, runError.Reason())
}

// Unwrap exposes the underlying cause.
func (runError RunError) Unwrap() error {
	return runError.Cause
}

// Is matches the sentinel of the error's kind.
func (runError RunError) Is(target error) bool {
	sentinel, known := kindSentinels[runError.Kind]
	return known && sentinel == target
}

// Reason returns the cause text without the kind prefix.
func (runError RunError) Reason() string {
	if len(runError.Detail) > 0 {
		return runError.Detail
	}
	if runError.Cause == nil {
		return string(runError.Kind)
	}
	return runError.Cause.Error()
}
