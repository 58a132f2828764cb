package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/changes"
	"github.com/temirov/foldmerge/internal/divergence"
	"github.com/temirov/foldmerge/internal/gitrepo"
	"github.com/temirov/foldmerge/internal/headguard"
	"github.com/temirov/foldmerge/internal/merge"
	"github.com/temirov/foldmerge/internal/notify"
	"github.com/temirov/foldmerge/internal/quarantine"
	"github.com/temirov/foldmerge/internal/runlock"
)

const (
	routedDirectoryTemplateConstant    = "%s-%s"
	timestampLayoutConstant            = "20060102T150405Z"
	commitMessageTemplateConstant      = "Fold local content of %s"
	notAWorkTreeTemplateConstant       = "%s is not the root of its own git repository"
	repositoryInspectionTemplate       = "unable to inspect %s: %w"
	stagingErrorTemplateConstant       = "unable to stage %s into %s: %w"
	remoteConfigurationTemplate        = "unable to configure remote %s: %w"
	remoteProbeErrorTemplateConstant   = "unable to probe remote %s: %w"
	remoteMissingTemplateConstant      = "%s: %s"
	classificationErrorTemplate        = "unable to classify changes: %w"
	headCheckErrorTemplateConstant     = "unable to inspect branches: %w"
	commitErrorTemplateConstant        = "unable to commit pending changes: %w"
	divergenceErrorTemplateConstant    = "unable to verify divergence: %w"
	divergenceUnresolvedTemplate       = "local and remote %s diverge: %s"
	routingErrorTemplateConstant       = "unable to move %s to %s: %w"
	lockReleaseMessageConstant         = "Unable to release run lock"
	runStartedMessageConstant          = "Starting fold run"
	stateReachedMessageConstant        = "Run state reached"
	runArchivedMessageConstant         = "Run archived"
	runErroredMessageConstant          = "Run errored"
	routingFailedMessageConstant       = "Unable to route working tree"
	notificationFailedMessageConstant  = "Unable to dispatch notification"
	loggerMissingMessageConstant       = "orchestrator logger not configured"
	executorMissingMessageConstant     = "orchestrator git executor not configured"
	fileSystemMissingMessageConstant   = "orchestrator file system not configured"
	mailerMissingMessageConstant       = "orchestrator mailer not configured"
	directoryMissingTemplateConstant   = "orchestrator %s directory must be provided"
	remotePrefixMissingMessageConstant = "orchestrator remote URL prefix must be provided"
	workingDirectoryLabelConstant      = "working"
	errorDirectoryLabelConstant        = "error"
	archiveDirectoryLabelConstant      = "archive"
	quarantineDirectoryLabelConstant   = "quarantine"
	logFieldRepositoryConstant         = "repository"
	logFieldProjectConstant            = "project"
	logFieldStateConstant              = "state"
	logFieldKindConstant               = "kind"
	logFieldDestinationConstant        = "destination"
	logFieldSubjectConstant            = "subject"
)

var (
	// ErrLoggerNotConfigured indicates a nil logger was supplied.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrGitExecutorNotConfigured indicates a nil git executor was supplied.
	ErrGitExecutorNotConfigured = errors.New(executorMissingMessageConstant)
	// ErrFileSystemNotConfigured indicates a nil file system was supplied.
	ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)
	// ErrMailerNotConfigured indicates a nil mailer was supplied.
	ErrMailerNotConfigured = errors.New(mailerMissingMessageConstant)
	// ErrRemotePrefixRequired indicates settings without a remote URL prefix.
	ErrRemotePrefixRequired = errors.New(remotePrefixMissingMessageConstant)
)

// FileSystem moves trees between areas and backs quarantine copies.
type FileSystem interface {
	Exists(path string) (bool, error)
	Move(source string, destination string) error
	Copy(source string, destination string) error
	Remove(path string) error
}

// Settings carries the run configuration.
type Settings struct {
	RemoteURLPrefix      string
	RemoteName           string
	TargetBranch         string
	StagingBranch        string
	WorkingDirectory     string
	ErrorDirectory       string
	ArchiveDirectory     string
	QuarantineDirectory  string
	Recipients           []string
	ModifiedDisposition  quarantine.Disposition
	UntrackedDisposition quarantine.Disposition
}

// Dependencies configures an Orchestrator. Clock, Sleeper, and RetryPolicy default when unset.
type Dependencies struct {
	GitExecutor gitrepo.GitExecutor
	FileSystem  FileSystem
	Mailer      notify.Mailer
	Logger      *zap.Logger
	Clock       func() time.Time
	Sleeper     merge.Sleeper
	RetryPolicy merge.RetryPolicy
}

// Orchestrator runs the fold state machine.
type Orchestrator struct {
	settings   Settings
	executor   gitrepo.GitExecutor
	fileSystem FileSystem
	mailer     notify.Mailer
	logger     *zap.Logger
	clock      func() time.Time
	composer   notify.Composer
	classifier *changes.Classifier
	quarantine *quarantine.Manager
	guard      *headguard.Guard
	engine     *merge.Engine
	checker    *divergence.Checker
	locker     *runlock.Locker
}

// NewOrchestrator validates dependencies and assembles the run components.
func NewOrchestrator(settings Settings, dependencies Dependencies) (*Orchestrator, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if dependencies.Mailer == nil {
		return nil, ErrMailerNotConfigured
	}
	if len(strings.TrimSpace(settings.RemoteURLPrefix)) == 0 {
		return nil, ErrRemotePrefixRequired
	}
	for _, area := range []struct {
		label     string
		directory string
	}{
		{label: workingDirectoryLabelConstant, directory: settings.WorkingDirectory},
		{label: errorDirectoryLabelConstant, directory: settings.ErrorDirectory},
		{label: archiveDirectoryLabelConstant, directory: settings.ArchiveDirectory},
		{label: quarantineDirectoryLabelConstant, directory: settings.QuarantineDirectory},
	} {
		if len(strings.TrimSpace(area.directory)) == 0 {
			return nil, fmt.Errorf(directoryMissingTemplateConstant, area.label)
		}
	}

	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}

	classifier, classifierError := changes.NewClassifier(dependencies.Logger)
	if classifierError != nil {
		return nil, classifierError
	}
	quarantineManager, quarantineError := quarantine.NewManager(quarantine.Dependencies{
		FileSystem: dependencies.FileSystem,
		Logger:     dependencies.Logger,
		Directory:  settings.QuarantineDirectory,
		Clock:      clock,
	})
	if quarantineError != nil {
		return nil, quarantineError
	}
	guard, guardError := headguard.NewGuard(dependencies.Logger)
	if guardError != nil {
		return nil, guardError
	}
	engine, engineError := merge.NewEngine(merge.Dependencies{
		Logger:  dependencies.Logger,
		Sleeper: dependencies.Sleeper,
		Policy:  dependencies.RetryPolicy,
	})
	if engineError != nil {
		return nil, engineError
	}
	checker, checkerError := divergence.NewChecker(dependencies.Logger)
	if checkerError != nil {
		return nil, checkerError
	}
	locker, lockerError := runlock.NewLocker(settings.WorkingDirectory)
	if lockerError != nil {
		return nil, lockerError
	}

	return &Orchestrator{
		settings:   settings,
		executor:   dependencies.GitExecutor,
		fileSystem: dependencies.FileSystem,
		mailer:     dependencies.Mailer,
		logger:     dependencies.Logger,
		clock:      clock,
		composer:   notify.NewComposer(settings.Recipients, clock),
		classifier: classifier,
		quarantine: quarantineManager,
		guard:      guard,
		engine:     engine,
		checker:    checker,
		locker:     locker,
	}, nil
}

// run carries the per-project state of one Run call.
type run struct {
	result    RunResult
	treePath  string
	remoteURL string
	handle    *gitrepo.RepositoryHandle
}

// Run folds one project directory. Every path through Run ends Archived or Errored, moves the tree
// to the matching area, and dispatches exactly one terminal notification.
func (orchestrator *Orchestrator) Run(executionContext context.Context, projectPath string) RunResult {
	repositoryName := filepath.Base(filepath.Clean(projectPath))
	current := &run{
		result:   RunResult{Project: projectPath, Repository: repositoryName, State: StatePending, Reached: StatePending},
		treePath: projectPath,
	}
	if remoteURL, buildError := gitrepo.BuildRemoteURL(orchestrator.settings.RemoteURLPrefix, repositoryName); buildError == nil {
		current.remoteURL = remoteURL
	}
	orchestrator.logger.Info(runStartedMessageConstant, zap.String(logFieldRepositoryConstant, repositoryName), zap.String(logFieldProjectConstant, projectPath))

	if runError := orchestrator.requireRepositoryRoot(executionContext, projectPath); runError != nil {
		orchestrator.fail(executionContext, current, *runError)
		return current.result
	}

	lockError := runlock.WithLock(orchestrator.locker, repositoryName, func() error {
		orchestrator.process(executionContext, current)
		return nil
	})
	if errors.Is(lockError, runlock.ErrRunInProgress) {
		orchestrator.fail(executionContext, current, newRunError(KindRunInProgress, lockError))
		return current.result
	}
	if lockError != nil {
		orchestrator.logger.Warn(lockReleaseMessageConstant, zap.String(logFieldRepositoryConstant, repositoryName), zap.Error(lockError))
		current.result.Error = multierr.Append(current.result.Error, lockError)
	}
	return current.result
}

func (orchestrator *Orchestrator) process(executionContext context.Context, current *run) {
	if runError := orchestrator.stage(executionContext, current); runError != nil {
		orchestrator.fail(executionContext, current, *runError)
		return
	}
	if runError := orchestrator.classifyAndQuarantine(executionContext, current); runError != nil {
		orchestrator.fail(executionContext, current, *runError)
		return
	}
	if runError := orchestrator.checkHead(executionContext, current); runError != nil {
		orchestrator.fail(executionContext, current, *runError)
		return
	}
	if runError := orchestrator.mergeAndPush(executionContext, current); runError != nil {
		orchestrator.fail(executionContext, current, *runError)
		return
	}
	if runError := orchestrator.verify(executionContext, current); runError != nil {
		orchestrator.fail(executionContext, current, *runError)
		return
	}
	orchestrator.archive(executionContext, current)
}

// stage moves the candidate into the working area, points its remote at the computed URL, and
// probes the remote.
func (orchestrator *Orchestrator) stage(executionContext context.Context, current *run) *RunError {
	stagedPath := filepath.Join(orchestrator.settings.WorkingDirectory, current.result.Repository)
	if moveError := orchestrator.fileSystem.Move(current.treePath, stagedPath); moveError != nil {
		return runErrorPointer(KindFilesystemFailure, fmt.Errorf(stagingErrorTemplateConstant, current.treePath, orchestrator.settings.WorkingDirectory, moveError))
	}
	current.treePath = stagedPath
	if runError := orchestrator.requireRepositoryRoot(executionContext, stagedPath); runError != nil {
		return runError
	}
	orchestrator.reach(current, StateStaged)

	remoteURL, buildError := gitrepo.BuildRemoteURL(orchestrator.settings.RemoteURLPrefix, current.result.Repository)
	if buildError != nil {
		return runErrorPointer(KindConfigError, buildError)
	}
	handle, handleError := gitrepo.NewRepositoryHandle(orchestrator.executor, gitrepo.HandleOptions{
		WorkingPath:   stagedPath,
		RemoteName:    orchestrator.settings.RemoteName,
		RemoteURL:     remoteURL,
		TargetBranch:  orchestrator.settings.TargetBranch,
		StagingBranch: orchestrator.settings.StagingBranch,
	})
	if handleError != nil {
		return runErrorPointer(KindConfigError, handleError)
	}
	current.handle = handle

	if setError := handle.SetRemoteURL(executionContext); setError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(remoteConfigurationTemplate, handle.RemoteName(), setError))
	}
	remoteStatus, probeError := handle.ProbeRemote(executionContext)
	if probeError != nil {
		return runErrorPointer(KindRemoteUnreachable, fmt.Errorf(remoteProbeErrorTemplateConstant, remoteURL, probeError))
	}
	if !remoteStatus.Reachable {
		return runErrorPointer(KindRemoteUnreachable, fmt.Errorf(remoteMissingTemplateConstant, remoteURL, remoteStatus.Detail))
	}
	return nil
}

func (orchestrator *Orchestrator) requireRepositoryRoot(executionContext context.Context, path string) *RunError {
	isRoot, inspectionError := gitrepo.IsRepositoryRoot(executionContext, orchestrator.executor, path)
	if inspectionError != nil {
		return runErrorPointer(KindNotAVersionControlledTree, fmt.Errorf(repositoryInspectionTemplate, path, inspectionError))
	}
	if !isRoot {
		return runErrorPointer(KindNotAVersionControlledTree, fmt.Errorf(notAWorkTreeTemplateConstant, path))
	}
	return nil
}

func (orchestrator *Orchestrator) classifyAndQuarantine(executionContext context.Context, current *run) *RunError {
	changeSet, classifyError := orchestrator.classifier.Classify(executionContext, current.handle)
	if classifyError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(classificationErrorTemplate, classifyError))
	}
	orchestrator.reach(current, StateClassified)
	if changeSet.IsEmpty() {
		return nil
	}

	buckets := []struct {
		bucket      quarantine.Bucket
		disposition quarantine.Disposition
	}{
		{bucket: quarantine.BucketModified, disposition: orchestrator.settings.ModifiedDisposition},
		{bucket: quarantine.BucketAdded, disposition: orchestrator.settings.UntrackedDisposition},
	}
	for _, entry := range buckets {
		report, quarantineError := orchestrator.quarantine.Quarantine(executionContext, current.handle, changeSet, entry.bucket, entry.disposition)
		if quarantineError != nil {
			return runErrorPointer(KindQuarantineFailure, quarantineError)
		}
		if report.IsEmpty() {
			continue
		}
		current.result.Quarantines = append(current.result.Quarantines, report)
		orchestrator.reach(current, StateQuarantined)
		orchestrator.dispatch(executionContext, current, notify.StatusQuarantine, orchestrator.composer.Quarantine(orchestrator.details(current, report.Destination), report))
	}
	return nil
}

// checkHead guards the branch topology and then commits whatever the ignore dispositions left
// pending onto the target branch.
func (orchestrator *Orchestrator) checkHead(executionContext context.Context, current *run) *RunError {
	verdict, guardError := orchestrator.guard.Check(executionContext, current.handle, current.handle.TargetBranch())
	if guardError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(headCheckErrorTemplateConstant, guardError))
	}
	if !verdict.Safe {
		return runErrorPointer(KindAmbiguousHeadState, errors.New(verdict.Reason))
	}
	current.result.RemovedBranches = append(current.result.RemovedBranches, verdict.Removed...)
	orchestrator.reach(current, StateHeadChecked)

	dirty, dirtyError := current.handle.IsDirty(executionContext, true)
	if dirtyError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(commitErrorTemplateConstant, dirtyError))
	}
	if !dirty {
		return nil
	}
	if stageError := current.handle.StageAll(executionContext); stageError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(commitErrorTemplateConstant, stageError))
	}
	if commitError := current.handle.Commit(executionContext, fmt.Sprintf(commitMessageTemplateConstant, current.result.Repository)); commitError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(commitErrorTemplateConstant, commitError))
	}
	return nil
}

func (orchestrator *Orchestrator) mergeAndPush(executionContext context.Context, current *run) *RunError {
	outcome := orchestrator.engine.Run(executionContext, current.handle, current.handle.TargetBranch())
	current.result.Merge = outcome
	if outcome.Succeeded() {
		orchestrator.reach(current, StateMerged)
		orchestrator.reach(current, StatePushed)
		return nil
	}
	if outcome.Stage.IsPublishing() {
		orchestrator.reach(current, StateMerged)
	}

	kind := KindPermanentBackendError
	if outcome.Kind == merge.OutcomeTransientFailure {
		kind = KindTransientBackendError
	}
	runError := runErrorPointer(kind, outcome.Cause)
	runError.Detail = outcome.Description()
	return runError
}

func (orchestrator *Orchestrator) verify(executionContext context.Context, current *run) *RunError {
	report, checkError := orchestrator.checker.Check(executionContext, current.handle)
	if checkError != nil {
		return runErrorPointer(KindPermanentBackendError, fmt.Errorf(divergenceErrorTemplateConstant, checkError))
	}
	current.result.Divergence = report
	if !report.Reconciled() {
		return runErrorPointer(KindDivergenceUnresolved, fmt.Errorf(divergenceUnresolvedTemplate, current.handle.TargetBranch(), report))
	}
	orchestrator.reach(current, StateVerified)
	return nil
}

func (orchestrator *Orchestrator) archive(executionContext context.Context, current *run) {
	destination, routingError := orchestrator.route(current, orchestrator.settings.ArchiveDirectory)
	current.result.State = StateArchived
	current.result.Destination = destination
	current.result.Error = routingError
	orchestrator.logger.Info(runArchivedMessageConstant, zap.String(logFieldRepositoryConstant, current.result.Repository), zap.String(logFieldDestinationConstant, destination))
	details := orchestrator.details(current, destination)
	details.RemovedBranches = current.result.RemovedBranches
	orchestrator.dispatch(executionContext, current, notify.StatusSuccess, orchestrator.composer.Success(details))
}

func (orchestrator *Orchestrator) fail(executionContext context.Context, current *run, runError RunError) {
	destination, routingError := orchestrator.route(current, orchestrator.settings.ErrorDirectory)
	current.result.State = StateErrored
	current.result.Destination = destination
	current.result.Reason = runError.Reason()
	current.result.Error = multierr.Append(runError, routingError)
	orchestrator.logger.Warn(
		runErroredMessageConstant,
		zap.String(logFieldRepositoryConstant, current.result.Repository),
		zap.String(logFieldStateConstant, string(current.result.Reached)),
		zap.String(logFieldKindConstant, string(runError.Kind)),
		zap.String(logFieldDestinationConstant, destination),
		zap.Error(runError.Cause),
	)
	message := orchestrator.composer.Failure(orchestrator.details(current, destination), string(runError.Kind), current.result.Reason)
	orchestrator.dispatch(executionContext, current, notify.StatusError, message)
}

// route moves the tree into area under <name>-<timestamp>, adding -1, -2, ... when that name is
// taken. On failure the tree stays where it was and the returned location says so.
func (orchestrator *Orchestrator) route(current *run, area string) (string, error) {
	timestamp := orchestrator.clock().UTC().Format(timestampLayoutConstant)
	routedName := fmt.Sprintf(routedDirectoryTemplateConstant, current.result.Repository, timestamp)
	destination := filepath.Join(area, routedName)
	for suffix := 1; ; suffix++ {
		exists, existsError := orchestrator.fileSystem.Exists(destination)
		if existsError != nil || !exists {
			break
		}
		destination = filepath.Join(area, fmt.Sprintf(routedDirectoryTemplateConstant, routedName, strconv.Itoa(suffix)))
	}
	if moveError := orchestrator.fileSystem.Move(current.treePath, destination); moveError != nil {
		routingError := fmt.Errorf(routingErrorTemplateConstant, current.treePath, destination, moveError)
		orchestrator.logger.Error(routingFailedMessageConstant, zap.String(logFieldRepositoryConstant, current.result.Repository), zap.Error(routingError))
		return current.treePath, routingError
	}
	current.treePath = destination
	return destination, nil
}

// dispatch sends message even when executionContext was cancelled, so interrupted runs still report.
func (orchestrator *Orchestrator) dispatch(executionContext context.Context, current *run, status notify.Status, message notify.Message) {
	if sendError := orchestrator.mailer.Send(context.WithoutCancel(executionContext), message); sendError != nil {
		orchestrator.logger.Warn(notificationFailedMessageConstant, zap.String(logFieldRepositoryConstant, current.result.Repository), zap.String(logFieldSubjectConstant, message.Subject), zap.Error(sendError))
		return
	}
	current.result.Notifications = append(current.result.Notifications, status)
}

func (orchestrator *Orchestrator) details(current *run, destination string) notify.RunDetails {
	details := notify.RunDetails{
		Repository:  current.result.Repository,
		Branch:      orchestrator.settings.TargetBranch,
		Destination: destination,
	}
	if parsed, parseError := gitrepo.ParseRemoteURL(current.remoteURL); parseError == nil {
		details.Identity = parsed.Identity()
	}
	return details
}

func (orchestrator *Orchestrator) reach(current *run, state State) {
	current.result.advance(state)
	orchestrator.logger.Debug(stateReachedMessageConstant, zap.String(logFieldRepositoryConstant, current.result.Repository), zap.String(logFieldStateConstant, string(state)))
}

func runErrorPointer(kind ErrorKind, cause error) *RunError {
	runError := newRunError(kind, cause)
	return &runError
}
