package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/temirov/foldmerge/internal/execshell"
)

const (
	gitRevParseCommandConstant          = "rev-parse"
	gitRevListCommandConstant           = "rev-list"
	gitRemoteCommandConstant            = "remote"
	gitRemoteSetURLCommandConstant      = "set-url"
	gitRemoteAddCommandConstant         = "add"
	gitLSRemoteCommandConstant          = "ls-remote"
	gitFetchCommandConstant             = "fetch"
	gitPushCommandConstant              = "push"
	gitBranchCommandConstant            = "branch"
	gitCheckoutCommandConstant          = "checkout"
	gitMergeCommandConstant             = "merge"
	gitStatusCommandConstant            = "status"
	gitLSFilesCommandConstant           = "ls-files"
	gitAddCommandConstant               = "add"
	gitRemoveCommandConstant            = "rm"
	gitCommitCommandConstant            = "commit"
	gitShowTopLevelFlagConstant         = "--show-toplevel"
	gitCeilingEnvironmentNameConstant   = "GIT_CEILING_DIRECTORIES"
	gitQuietFlagConstant                = "--quiet"
	gitCountFlagConstant                = "--count"
	gitHeadsFlagConstant                = "--heads"
	gitPruneFlagConstant                = "--prune"
	gitTagsFlagConstant                 = "--tags"
	gitListFlagConstant                 = "--list"
	gitForceDeleteFlagConstant          = "-D"
	gitResetBranchFlagConstant          = "-B"
	gitMessageFlagConstant              = "-m"
	gitAllFlagConstant                  = "-A"
	gitCachedFlagConstant               = "--cached"
	gitRecursiveFlagConstant            = "-r"
	gitIgnoreUnmatchFlagConstant        = "--ignore-unmatch"
	gitPorcelainFlagConstant            = "--porcelain=v1"
	gitNullTerminatedFlagConstant       = "-z"
	gitNoUntrackedFlagConstant          = "--untracked-files=no"
	gitOthersFlagConstant               = "--others"
	gitExcludeStandardFlagConstant      = "--exclude-standard"
	gitNoFastForwardFlagConstant        = "--no-ff"
	gitStrategyFlagConstant             = "-s"
	gitRecursiveStrategyConstant        = "recursive"
	gitStrategyOptionFlagConstant       = "-X"
	gitTheirsStrategyOptionConstant     = "theirs"
	gitAllowUnrelatedFlagConstant       = "--allow-unrelated-histories"
	gitPathSeparatorArgumentConstant    = "--"
	gitHeadReferenceConstant            = "HEAD"
	defaultRemoteNameConstant           = "origin"
	remoteTrackingTemplateConstant      = "%s/%s"
	noSuchRemoteFragmentConstant        = "no such remote"
	notAWorkTreeExitCodeConstant        = 128
	branchDetachedPrefixConstant        = "("
	branchCurrentMarkerConstant         = "*"
	commitCountParseErrorTemplate       = "unable to parse commit count %q: %w"
	workingPathRequiredMessageConstant  = "repository working path must be provided"
	targetBranchRequiredMessageConstant = "repository target branch must be provided"
	stagingBranchRequiredMessageConst   = "repository staging branch must be provided"
	executorMissingMessageConstant      = "repository git executor not configured"
)

// GitExecutor runs git on behalf of a repository handle.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

var (
	// ErrWorkingPathRequired indicates the handle was created without a working tree location.
	ErrWorkingPathRequired = errors.New(workingPathRequiredMessageConstant)
	// ErrTargetBranchRequired indicates the handle was created without a target branch.
	ErrTargetBranchRequired = errors.New(targetBranchRequiredMessageConstant)
	// ErrStagingBranchRequired indicates the handle was created without a staging branch name.
	ErrStagingBranchRequired = errors.New(stagingBranchRequiredMessageConst)
	// ErrGitExecutorNotConfigured indicates the handle has no git executor.
	ErrGitExecutorNotConfigured = errors.New(executorMissingMessageConstant)
)

// HandleOptions describes the repository a handle operates on.
type HandleOptions struct {
	WorkingPath   string
	RemoteName    string
	RemoteURL     string
	TargetBranch  string
	StagingBranch string
}

// RepositoryHandle exposes primitive git operations against one working tree. It owns no policy:
// callers decide ordering, retries, and what a failure means.
type RepositoryHandle struct {
	executor      GitExecutor
	workingPath   string
	remoteName    string
	remoteURL     string
	targetBranch  string
	stagingBranch string
}

// BranchEntry describes one line of the local branch list.
type BranchEntry struct {
	Name     string
	Current  bool
	Detached bool
}

// PathStatusKind classifies a tracked change reported by the backend.
type PathStatusKind string

// Tracked change kinds.
const (
	PathStatusModified PathStatusKind = "modified"
	PathStatusDeleted  PathStatusKind = "deleted"
	PathStatusAdded    PathStatusKind = "added"
)

// PathStatus pairs a repository-relative path with its tracked change kind.
type PathStatus struct {
	Path string
	Kind PathStatusKind
}

// RemoteStatus reports the outcome of the remote existence probe.
type RemoteStatus struct {
	Reachable bool
	Detail    string
}

// MergeRequest describes a priority merge of Branch into the checked out branch.
type MergeRequest struct {
	Branch  string
	Message string
}

// NewRepositoryHandle validates options and constructs a handle.
func NewRepositoryHandle(executor GitExecutor, options HandleOptions) (*RepositoryHandle, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	workingPath := strings.TrimSpace(options.WorkingPath)
	if len(workingPath) == 0 {
		return nil, ErrWorkingPathRequired
	}
	targetBranch := strings.TrimSpace(options.TargetBranch)
	if len(targetBranch) == 0 {
		return nil, ErrTargetBranchRequired
	}
	stagingBranch := strings.TrimSpace(options.StagingBranch)
	if len(stagingBranch) == 0 {
		return nil, ErrStagingBranchRequired
	}
	remoteName := strings.TrimSpace(options.RemoteName)
	if len(remoteName) == 0 {
		remoteName = defaultRemoteNameConstant
	}

	return &RepositoryHandle{
		executor:      executor,
		workingPath:   workingPath,
		remoteName:    remoteName,
		remoteURL:     strings.TrimSpace(options.RemoteURL),
		targetBranch:  targetBranch,
		stagingBranch: stagingBranch,
	}, nil
}

// IsRepositoryRoot reports whether path is the top level of its own git working tree.
// A plain directory nested inside another repository is not a root.
func IsRepositoryRoot(executionContext context.Context, executor GitExecutor, path string) (bool, error) {
	result, executionError := executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitRevParseCommandConstant, gitShowTopLevelFlagConstant},
		WorkingDirectory:     path,
		EnvironmentVariables: ceilingEnvironment(path),
	})
	if executionError != nil {
		if exitCode, failed := execshell.ExitCode(executionError); failed && exitCode == notAWorkTreeExitCodeConstant {
			return false, nil
		}
		return false, executionError
	}
	topLevel := strings.TrimSpace(result.StandardOutput)
	if len(topLevel) == 0 {
		return false, nil
	}
	return canonicalPath(topLevel) == canonicalPath(path), nil
}

// ceilingEnvironment stops git discovery from climbing above the parent of path.
func ceilingEnvironment(path string) map[string]string {
	return map[string]string{gitCeilingEnvironmentNameConstant: filepath.Dir(canonicalPath(path))}
}

func canonicalPath(path string) string {
	absolutePath, absoluteError := filepath.Abs(filepath.Clean(path))
	if absoluteError != nil {
		absolutePath = filepath.Clean(path)
	}
	resolvedPath, resolveError := filepath.EvalSymlinks(absolutePath)
	if resolveError != nil {
		return absolutePath
	}
	return resolvedPath
}

// WorkingPath returns the working tree location.
func (handle *RepositoryHandle) WorkingPath() string {
	return handle.workingPath
}

// Name returns the repository name derived from the working tree directory.
func (handle *RepositoryHandle) Name() string {
	return filepath.Base(handle.workingPath)
}

// RemoteName returns the configured remote.
func (handle *RepositoryHandle) RemoteName() string {
	return handle.remoteName
}

// TargetBranch returns the long-lived branch receiving priority content.
func (handle *RepositoryHandle) TargetBranch() string {
	return handle.targetBranch
}

// StagingBranch returns the local branch name holding priority content during the merge.
func (handle *RepositoryHandle) StagingBranch() string {
	return handle.stagingBranch
}

// RemoteTrackingBranch returns the remote-tracking reference of the target branch.
func (handle *RepositoryHandle) RemoteTrackingBranch() string {
	return fmt.Sprintf(remoteTrackingTemplateConstant, handle.remoteName, handle.targetBranch)
}

// SetRemoteURL points the handle's remote at its URL, adding the remote when it does not exist yet.
func (handle *RepositoryHandle) SetRemoteURL(executionContext context.Context) error {
	_, setError := handle.run(executionContext, gitRemoteCommandConstant, gitRemoteSetURLCommandConstant, handle.remoteName, handle.remoteURL)
	if setError == nil {
		return nil
	}
	var commandFailure execshell.CommandFailedError
	if !errors.As(setError, &commandFailure) || !strings.Contains(strings.ToLower(commandFailure.Result.StandardError), noSuchRemoteFragmentConstant) {
		return setError
	}
	_, addError := handle.run(executionContext, gitRemoteCommandConstant, gitRemoteAddCommandConstant, handle.remoteName, handle.remoteURL)
	return addError
}

// ProbeRemote lists the remote heads to decide whether the remote repository exists and answers.
func (handle *RepositoryHandle) ProbeRemote(executionContext context.Context) (RemoteStatus, error) {
	_, probeError := handle.run(executionContext, gitLSRemoteCommandConstant, gitHeadsFlagConstant, handle.remoteURL)
	if probeError == nil {
		return RemoteStatus{Reachable: true}, nil
	}
	var commandFailure execshell.CommandFailedError
	if errors.As(probeError, &commandFailure) {
		return RemoteStatus{Reachable: false, Detail: describeRemoteFailure(commandFailure.Result.StandardError)}, nil
	}
	return RemoteStatus{}, probeError
}

// ListBranches returns local branches in the order git reports them. A detached HEAD is reported as
// an entry with Detached set.
func (handle *RepositoryHandle) ListBranches(executionContext context.Context) ([]BranchEntry, error) {
	result, executionError := handle.run(executionContext, gitBranchCommandConstant, gitListFlagConstant)
	if executionError != nil {
		return nil, executionError
	}
	return parseBranchList(result.StandardOutput), nil
}

// CreateBranch creates name at startPoint without checking it out. An existing branch is an error.
func (handle *RepositoryHandle) CreateBranch(executionContext context.Context, name string, startPoint string) error {
	_, executionError := handle.run(executionContext, gitBranchCommandConstant, name, startPoint)
	return executionError
}

// DeleteBranch force-deletes a local branch.
func (handle *RepositoryHandle) DeleteBranch(executionContext context.Context, name string) error {
	_, executionError := handle.run(executionContext, gitBranchCommandConstant, gitForceDeleteFlagConstant, name)
	return executionError
}

// CheckoutReset checks out branch, creating or resetting it to startPoint.
func (handle *RepositoryHandle) CheckoutReset(executionContext context.Context, branch string, startPoint string) error {
	_, executionError := handle.run(executionContext, gitCheckoutCommandConstant, gitResetBranchFlagConstant, branch, startPoint)
	return executionError
}

// Fetch updates remote-tracking references from the handle's remote.
func (handle *RepositoryHandle) Fetch(executionContext context.Context) error {
	_, executionError := handle.run(executionContext, gitFetchCommandConstant, handle.remoteName, gitPruneFlagConstant)
	return executionError
}

// Push publishes branch to the handle's remote.
func (handle *RepositoryHandle) Push(executionContext context.Context, branch string) error {
	_, executionError := handle.run(executionContext, gitPushCommandConstant, handle.remoteName, branch)
	return executionError
}

// PushTags publishes all local tags to the handle's remote.
func (handle *RepositoryHandle) PushTags(executionContext context.Context) error {
	_, executionError := handle.run(executionContext, gitPushCommandConstant, handle.remoteName, gitTagsFlagConstant)
	return executionError
}

// MergePreferIncoming merges request.Branch into the checked out branch with a non-fast-forward
// recursive merge that resolves every textual conflict in favor of the incoming branch.
// Local-only edits on conflicting hunks are discarded.
func (handle *RepositoryHandle) MergePreferIncoming(executionContext context.Context, request MergeRequest) error {
	_, executionError := handle.run(
		executionContext,
		gitMergeCommandConstant,
		gitNoFastForwardFlagConstant,
		gitStrategyFlagConstant, gitRecursiveStrategyConstant,
		gitStrategyOptionFlagConstant, gitTheirsStrategyOptionConstant,
		gitAllowUnrelatedFlagConstant,
		gitMessageFlagConstant, request.Message,
		request.Branch,
	)
	return executionError
}

// CountCommits counts commits reachable from the right side of rangeExpression and not from the left.
func (handle *RepositoryHandle) CountCommits(executionContext context.Context, rangeExpression string) (int, error) {
	result, executionError := handle.run(executionContext, gitRevListCommandConstant, gitCountFlagConstant, rangeExpression)
	if executionError != nil {
		return 0, executionError
	}
	trimmed := strings.TrimSpace(result.StandardOutput)
	count, parseError := strconv.Atoi(trimmed)
	if parseError != nil {
		return 0, fmt.Errorf(commitCountParseErrorTemplate, trimmed, parseError)
	}
	return count, nil
}

// IsDirty reports whether the working tree differs from HEAD, optionally counting untracked files.
func (handle *RepositoryHandle) IsDirty(executionContext context.Context, includeUntracked bool) (bool, error) {
	arguments := []string{gitStatusCommandConstant, gitPorcelainFlagConstant}
	if !includeUntracked {
		arguments = append(arguments, gitNoUntrackedFlagConstant)
	}
	result, executionError := handle.run(executionContext, arguments...)
	if executionError != nil {
		return false, executionError
	}
	return len(strings.TrimSpace(result.StandardOutput)) > 0, nil
}

// TrackedChanges returns per-path status of tracked changes between HEAD, the index, and the tree.
func (handle *RepositoryHandle) TrackedChanges(executionContext context.Context) ([]PathStatus, error) {
	result, executionError := handle.run(executionContext, gitStatusCommandConstant, gitPorcelainFlagConstant, gitNullTerminatedFlagConstant, gitNoUntrackedFlagConstant)
	if executionError != nil {
		return nil, executionError
	}
	return parsePorcelainStatus(result.StandardOutput), nil
}

// UntrackedFiles lists files git does not track and does not ignore.
func (handle *RepositoryHandle) UntrackedFiles(executionContext context.Context) ([]string, error) {
	result, executionError := handle.run(executionContext, gitLSFilesCommandConstant, gitOthersFlagConstant, gitExcludeStandardFlagConstant, gitNullTerminatedFlagConstant)
	if executionError != nil {
		return nil, executionError
	}
	return splitNullTerminated(result.StandardOutput), nil
}

// StageAll adds every pending change to the index.
func (handle *RepositoryHandle) StageAll(executionContext context.Context) error {
	_, executionError := handle.run(executionContext, gitAddCommandConstant, gitAllFlagConstant)
	return executionError
}

// RestorePaths resets paths in both the index and the tree to their HEAD content.
func (handle *RepositoryHandle) RestorePaths(executionContext context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	arguments := append([]string{gitCheckoutCommandConstant, gitHeadReferenceConstant, gitPathSeparatorArgumentConstant}, paths...)
	_, executionError := handle.run(executionContext, arguments...)
	return executionError
}

// UnstagePaths removes paths from the index, leaving the tree untouched. Paths unknown to the index
// are ignored.
func (handle *RepositoryHandle) UnstagePaths(executionContext context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	arguments := append([]string{gitRemoveCommandConstant, gitRecursiveFlagConstant, gitCachedFlagConstant, gitQuietFlagConstant, gitIgnoreUnmatchFlagConstant, gitPathSeparatorArgumentConstant}, paths...)
	_, executionError := handle.run(executionContext, arguments...)
	return executionError
}

// Commit records the index as a new commit.
func (handle *RepositoryHandle) Commit(executionContext context.Context, message string) error {
	_, executionError := handle.run(executionContext, gitCommitCommandConstant, gitMessageFlagConstant, message)
	return executionError
}

func (handle *RepositoryHandle) run(executionContext context.Context, arguments ...string) (execshell.ExecutionResult, error) {
	return handle.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     handle.workingPath,
		EnvironmentVariables: ceilingEnvironment(handle.workingPath),
	})
}

func parseBranchList(output string) []BranchEntry {
	entries := make([]BranchEntry, 0)
	for _, line := range strings.Split(output, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}
		current := strings.HasPrefix(trimmedLine, branchCurrentMarkerConstant)
		name := strings.TrimSpace(strings.TrimPrefix(trimmedLine, branchCurrentMarkerConstant))
		entries = append(entries, BranchEntry{
			Name:     name,
			Current:  current,
			Detached: strings.HasPrefix(name, branchDetachedPrefixConstant),
		})
	}
	return entries
}

// parsePorcelainStatus decodes `git status --porcelain=v1 -z` output. Rename and copy records carry
// the source path as an extra NUL-terminated field.
func parsePorcelainStatus(output string) []PathStatus {
	fields := splitNullTerminated(output)
	statuses := make([]PathStatus, 0, len(fields))
	for index := 0; index < len(fields); index++ {
		record := fields[index]
		if len(record) < 4 {
			continue
		}
		indexStatus := record[0]
		treeStatus := record[1]
		path := record[3:]

		switch {
		case indexStatus == 'R' || indexStatus == 'C':
			statuses = append(statuses, PathStatus{Path: path, Kind: PathStatusAdded})
			if index+1 < len(fields) {
				index++
				if indexStatus == 'R' {
					statuses = append(statuses, PathStatus{Path: fields[index], Kind: PathStatusDeleted})
				}
			}
		case indexStatus == 'A':
			if treeStatus == 'D' {
				continue
			}
			statuses = append(statuses, PathStatus{Path: path, Kind: PathStatusAdded})
		case indexStatus == 'D' || treeStatus == 'D':
			statuses = append(statuses, PathStatus{Path: path, Kind: PathStatusDeleted})
		default:
			statuses = append(statuses, PathStatus{Path: path, Kind: PathStatusModified})
		}
	}
	return statuses
}

func splitNullTerminated(output string) []string {
	parts := strings.Split(output, "\x00")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		values = append(values, part)
	}
	return values
}
