package orchestrator_test

import (
	"context"
	"errors"
	"net/smtp"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/execshell"
	"github.com/temirov/foldmerge/internal/filesystem"
	"github.com/temirov/foldmerge/internal/gitrepo"
	"github.com/temirov/foldmerge/internal/merge"
	"github.com/temirov/foldmerge/internal/notify"
	"github.com/temirov/foldmerge/internal/orchestrator"
	"github.com/temirov/foldmerge/internal/quarantine"
)

const (
	testRepositoryNameConstant = "widget"
	testRemotePrefixConstant   = "git@github.com:acme/"
	testRemoteURLConstant      = "git@github.com:acme/widget.git"
	testTimestampConstant      = "20240304T050607Z"
	topLevelCommandConstant    = "rev-parse --show-toplevel"
	probeCommandConstant       = "ls-remote --heads " + testRemoteURLConstant
	branchListCommandConstant  = "branch --list"
	trackedCommandConstant     = "status --porcelain=v1 -z --untracked-files=no"
	untrackedCommandConstant   = "ls-files --others --exclude-standard -z"
	dirtyCommandConstant       = "status --porcelain=v1"
	fetchCommandConstant       = "fetch origin --prune"
	pushCommandConstant        = "push origin master"
	aheadCommandConstant       = "rev-list --count origin/master..master"
	behindCommandConstant      = "rev-list --count master..origin/master"
	transientExitCodeConstant  = 128
	repositoryMissingStderr    = "ERROR: Repository not found.\nfatal: Could not read from remote repository."
	networkFailureStderr       = "fatal: unable to access 'https://github.com/acme/widget.git/': Could not resolve host"
)

type gitResponse struct {
	output   string
	exitCode int
	stderr   string
}

type scriptedGit struct {
	responses map[string][]gitResponse
	calls     []string
}

func newScriptedGit() *scriptedGit {
	return &scriptedGit{responses: map[string][]gitResponse{
		branchListCommandConstant: {{output: "* master\n"}},
		aheadCommandConstant:      {{output: "0\n"}},
		behindCommandConstant:     {{output: "0\n"}},
	}}
}

func (git *scriptedGit) script(command string, responses ...gitResponse) {
	git.responses[command] = responses
}

func (git *scriptedGit) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	key := strings.Join(details.Arguments, " ")
	git.calls = append(git.calls, key)

	response := gitResponse{}
	if key == topLevelCommandConstant {
		response.output = details.WorkingDirectory + "\n"
	}
	if queue := git.responses[key]; len(queue) > 0 {
		response = queue[0]
		if len(queue) > 1 {
			git.responses[key] = queue[1:]
		}
	}
	if response.exitCode != 0 {
		return execshell.ExecutionResult{}, execshell.CommandFailedError{
			Command: execshell.ShellCommand{Name: execshell.CommandGit, Details: details},
			Result:  execshell.ExecutionResult{ExitCode: response.exitCode, StandardError: response.stderr},
		}
	}
	return execshell.ExecutionResult{StandardOutput: response.output}, nil
}

func (git *scriptedGit) called(command string) bool {
	return git.indexOf(command) >= 0
}

func (git *scriptedGit) indexOf(command string) int {
	for index, call := range git.calls {
		if call == command {
			return index
		}
	}
	return -1
}

type recordingMailer struct {
	messages  []notify.Message
	sendError error
}

func (mailer *recordingMailer) Send(sendContext context.Context, message notify.Message) error {
	if contextError := sendContext.Err(); contextError != nil {
		return contextError
	}
	mailer.messages = append(mailer.messages, message)
	return mailer.sendError
}

var errAreaUnavailable = errors.New("area unavailable")

type areaFailingFileSystem struct {
	filesystem.OSFileSystem
	failingArea string
}

func (fileSystem areaFailingFileSystem) Move(source string, destination string) error {
	if filepath.Dir(destination) == fileSystem.failingArea {
		return errAreaUnavailable
	}
	return fileSystem.OSFileSystem.Move(source, destination)
}

type recordingSleeper struct {
	durations []time.Duration
}

func (sleeper *recordingSleeper) Sleep(_ context.Context, duration time.Duration) error {
	sleeper.durations = append(sleeper.durations, duration)
	return nil
}

func (sleeper *recordingSleeper) total() time.Duration {
	var total time.Duration
	for _, duration := range sleeper.durations {
		total += duration
	}
	return total
}

type fixture struct {
	root        string
	projectPath string
	settings    orchestrator.Settings
	git         *scriptedGit
	mailer      *recordingMailer
	sleeper     *recordingSleeper
	delivery    notify.Mailer
	fileSystem  orchestrator.FileSystem
}

func newFixture(testInstance *testing.T, files map[string]string) *fixture {
	testInstance.Helper()
	root := testInstance.TempDir()
	projectPath := filepath.Join(root, "incoming", testRepositoryNameConstant)
	require.NoError(testInstance, os.MkdirAll(projectPath, 0o755))
	for relativePath, content := range files {
		filePath := filepath.Join(projectPath, relativePath)
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(testInstance, os.WriteFile(filePath, []byte(content), 0o644))
	}

	settings := orchestrator.Settings{
		RemoteURLPrefix:      testRemotePrefixConstant,
		TargetBranch:         "master",
		StagingBranch:        "priority-import",
		WorkingDirectory:     filepath.Join(root, "working"),
		ErrorDirectory:       filepath.Join(root, "errors"),
		ArchiveDirectory:     filepath.Join(root, "archive"),
		QuarantineDirectory:  filepath.Join(root, "quarantine"),
		Recipients:           []string{"ops@example.com"},
		ModifiedDisposition:  quarantine.DispositionRevert,
		UntrackedDisposition: quarantine.DispositionRemove,
	}
	for _, directory := range []string{settings.WorkingDirectory, settings.ErrorDirectory, settings.ArchiveDirectory, settings.QuarantineDirectory} {
		require.NoError(testInstance, os.MkdirAll(directory, 0o755))
	}

	return &fixture{
		root:        root,
		projectPath: projectPath,
		settings:    settings,
		git:         newScriptedGit(),
		mailer:      &recordingMailer{},
		sleeper:     &recordingSleeper{},
	}
}

func (testFixture *fixture) run(testInstance *testing.T) orchestrator.RunResult {
	testInstance.Helper()
	return testFixture.runWith(testInstance, testFixture.git)
}

func (testFixture *fixture) runWith(testInstance *testing.T, executor gitrepo.GitExecutor) orchestrator.RunResult {
	testInstance.Helper()
	return testFixture.runInContext(testInstance, context.Background(), executor)
}

func (testFixture *fixture) runInContext(testInstance *testing.T, executionContext context.Context, executor gitrepo.GitExecutor) orchestrator.RunResult {
	testInstance.Helper()
	var mailer notify.Mailer = testFixture.mailer
	if testFixture.delivery != nil {
		mailer = testFixture.delivery
	}
	var fileSystem orchestrator.FileSystem = filesystem.NewOSFileSystem()
	if testFixture.fileSystem != nil {
		fileSystem = testFixture.fileSystem
	}
	runner, creationError := orchestrator.NewOrchestrator(testFixture.settings, orchestrator.Dependencies{
		GitExecutor: executor,
		FileSystem:  fileSystem,
		Mailer:      mailer,
		Logger:      zap.NewNop(),
		Clock:       func() time.Time { return time.Date(2024, time.March, 4, 5, 6, 7, 0, time.UTC) },
		Sleeper:     testFixture.sleeper,
		RetryPolicy: merge.DefaultRetryPolicy(),
	})
	require.NoError(testInstance, creationError)
	return runner.Run(executionContext, testFixture.projectPath)
}

func (testFixture *fixture) archivedPath() string {
	return filepath.Join(testFixture.settings.ArchiveDirectory, testRepositoryNameConstant+"-"+testTimestampConstant)
}

func (testFixture *fixture) erroredPath() string {
	return filepath.Join(testFixture.settings.ErrorDirectory, testRepositoryNameConstant+"-"+testTimestampConstant)
}

func (testFixture *fixture) subjects() []string {
	subjects := make([]string, 0, len(testFixture.mailer.messages))
	for _, message := range testFixture.mailer.messages {
		subjects = append(subjects, message.Subject)
	}
	return subjects
}

func TestRunArchivesCleanProject(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "hello"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateArchived, result.State)
	require.Equal(testInstance, orchestrator.StateVerified, result.Reached)
	require.NoError(testInstance, result.Error)
	require.False(testInstance, result.Failed())
	require.Equal(testInstance, testFixture.archivedPath(), result.Destination)
	require.FileExists(testInstance, filepath.Join(testFixture.archivedPath(), "README.md"))
	require.NoDirExists(testInstance, testFixture.projectPath)
	require.NoFileExists(testInstance, filepath.Join(testFixture.settings.WorkingDirectory, testRepositoryNameConstant+".lock"))
	require.Empty(testInstance, result.Quarantines)

	require.Equal(testInstance, []notify.Status{notify.StatusSuccess}, result.Notifications)
	require.Equal(testInstance, []string{"[foldmerge] success: widget"}, testFixture.subjects())
	require.Contains(testInstance, testFixture.mailer.messages[0].Text(), "Repository: acme/widget")

	require.True(testInstance, testFixture.git.called("remote set-url origin "+testRemoteURLConstant))
	require.False(testInstance, testFixture.git.called("add -A"))
	require.Less(testInstance, testFixture.git.indexOf(probeCommandConstant), testFixture.git.indexOf(trackedCommandConstant))
	require.Less(testInstance, testFixture.git.indexOf(branchListCommandConstant), testFixture.git.indexOf(fetchCommandConstant))
	require.Less(testInstance, testFixture.git.indexOf(pushCommandConstant), testFixture.git.indexOf(aheadCommandConstant))
}

func TestRunQuarantinesUnexpectedChangesBeforeMerging(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{
		"a.txt":   "local a",
		"b.txt":   "local b",
		"new.txt": "stray",
	})
	testFixture.git.script(trackedCommandConstant, gitResponse{output: " M a.txt\x00 M b.txt\x00"})
	testFixture.git.script(untrackedCommandConstant, gitResponse{output: "new.txt\x00"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateArchived, result.State)
	require.Len(testInstance, result.Quarantines, 2)
	require.Equal(testInstance, []string{"a.txt", "b.txt"}, result.Quarantines[0].Paths())
	require.Equal(testInstance, []string{"new.txt"}, result.Quarantines[1].Paths())

	quarantineRoot := filepath.Join(testFixture.settings.QuarantineDirectory, testTimestampConstant, testRepositoryNameConstant)
	require.FileExists(testInstance, filepath.Join(quarantineRoot, "a.txt"))
	require.FileExists(testInstance, filepath.Join(quarantineRoot, "b.txt"))
	require.FileExists(testInstance, filepath.Join(quarantineRoot, "new.txt"))
	require.NoFileExists(testInstance, filepath.Join(testFixture.archivedPath(), "new.txt"))

	restoreIndex := testFixture.git.indexOf("checkout HEAD -- a.txt b.txt")
	unstageIndex := testFixture.git.indexOf("rm -r --cached --quiet --ignore-unmatch -- new.txt")
	require.GreaterOrEqual(testInstance, restoreIndex, 0)
	require.GreaterOrEqual(testInstance, unstageIndex, 0)
	require.Less(testInstance, unstageIndex, testFixture.git.indexOf(branchListCommandConstant))
	require.False(testInstance, testFixture.git.called("add -A"))

	require.Equal(testInstance, []notify.Status{notify.StatusQuarantine, notify.StatusQuarantine, notify.StatusSuccess}, result.Notifications)
	require.Contains(testInstance, testFixture.mailer.messages[0].Text(), "a.txt (archived: true)")
}

func TestRunCommitsChangesLeftByIgnoreDispositions(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"kept.txt": "local"})
	testFixture.settings.ModifiedDisposition = quarantine.DispositionIgnore
	testFixture.settings.UntrackedDisposition = quarantine.DispositionIgnore
	testFixture.git.script(trackedCommandConstant, gitResponse{output: " M kept.txt\x00"})
	testFixture.git.script(dirtyCommandConstant, gitResponse{output: " M kept.txt\n"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateArchived, result.State)
	require.Empty(testInstance, result.Quarantines)
	addIndex := testFixture.git.indexOf("add -A")
	commitIndex := testFixture.git.indexOf("commit -m Fold local content of widget")
	require.Greater(testInstance, addIndex, testFixture.git.indexOf(branchListCommandConstant))
	require.Greater(testInstance, commitIndex, addIndex)
	require.Less(testInstance, commitIndex, testFixture.git.indexOf(fetchCommandConstant))
	require.True(testInstance, testFixture.git.called("branch priority-import master"))
}

func TestRunRecoversFromTransientFetchFailures(testInstance *testing.T) {
	testFixture := newFixture(testInstance, nil)
	transient := gitResponse{exitCode: transientExitCodeConstant, stderr: networkFailureStderr}
	testFixture.git.script(fetchCommandConstant, transient, transient, gitResponse{})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateArchived, result.State)
	require.True(testInstance, result.Merge.Succeeded())
	require.Equal(testInstance, 10*time.Second, testFixture.sleeper.total())
	require.Equal(testInstance, []notify.Status{notify.StatusSuccess}, result.Notifications)
}

func TestRunHaltsWhenRemoteIsMissing(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "hello"})
	testFixture.git.script(probeCommandConstant, gitResponse{exitCode: transientExitCodeConstant, stderr: repositoryMissingStderr})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, orchestrator.StateStaged, result.Reached)
	require.Equal(testInstance, orchestrator.KindRemoteUnreachable, result.Kind())
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrRemoteUnreachable)
	require.Contains(testInstance, result.Reason, "remote repository not found")
	require.False(testInstance, testFixture.git.called(branchListCommandConstant))
	require.False(testInstance, testFixture.git.called(trackedCommandConstant))

	require.Equal(testInstance, testFixture.erroredPath(), result.Destination)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath(), "README.md"))
	require.Len(testInstance, testFixture.mailer.messages, 1)
	require.Contains(testInstance, testFixture.mailer.messages[0].Subject, "error")
	require.Contains(testInstance, testFixture.mailer.messages[0].Text(), "Error kind: remote-unreachable")
}

func TestRunRejectsDirectoriesOutsideWorkTrees(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"notes.txt": "plain"})
	testFixture.git.script(topLevelCommandConstant, gitResponse{exitCode: transientExitCodeConstant, stderr: "fatal: not a git repository"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, orchestrator.StatePending, result.Reached)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrNotAVersionControlledTree)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath(), "notes.txt"))
	require.Equal(testInstance, []string{topLevelCommandConstant}, testFixture.git.calls)
	require.Equal(testInstance, []notify.Status{notify.StatusError}, result.Notifications)
}

func TestRunRejectsDirectoriesNestedInsideAnotherRepository(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"notes.txt": "plain"})
	testFixture.git.script(topLevelCommandConstant, gitResponse{output: filepath.Dir(testFixture.projectPath) + "\n"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrNotAVersionControlledTree)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath(), "notes.txt"))
	require.Equal(testInstance, []string{topLevelCommandConstant}, testFixture.git.calls)
}

func TestRunRechecksRepositoryRootAfterStaging(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"notes.txt": "plain"})
	testFixture.git.script(topLevelCommandConstant,
		gitResponse{output: testFixture.projectPath + "\n"},
		gitResponse{output: testFixture.settings.WorkingDirectory + "\n"},
	)

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, orchestrator.StatePending, result.Reached)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrNotAVersionControlledTree)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath(), "notes.txt"))
	require.False(testInstance, testFixture.git.called(probeCommandConstant))
	require.False(testInstance, testFixture.git.called("remote set-url origin "+testRemoteURLConstant))
}

func TestRunLeavesEnclosingRepositoryUntouched(testInstance *testing.T) {
	if _, lookupError := exec.LookPath("git"); lookupError != nil {
		testInstance.Skip("git is not installed")
	}
	testFixture := newFixture(testInstance, map[string]string{"notes.txt": "plain"})
	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner())
	require.NoError(testInstance, creationError)
	enclosingPath := filepath.Dir(testFixture.projectPath)
	_, initError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{Arguments: []string{"init", "--quiet"}, WorkingDirectory: enclosingPath})
	require.NoError(testInstance, initError)

	result := testFixture.runWith(testInstance, executor)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrNotAVersionControlledTree)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath(), "notes.txt"))
	remotes, remoteError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{Arguments: []string{"remote", "-v"}, WorkingDirectory: enclosingPath})
	require.NoError(testInstance, remoteError)
	require.Empty(testInstance, strings.TrimSpace(remotes.StandardOutput))
}

func TestRunNotifiesAfterCancellation(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "priority"})
	testFixture.git.script(probeCommandConstant, gitResponse{exitCode: transientExitCodeConstant, stderr: networkFailureStderr})
	executionContext, cancel := context.WithCancel(context.Background())
	cancel()

	result := testFixture.runInContext(testInstance, executionContext, testFixture.git)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, []notify.Status{notify.StatusError}, result.Notifications)
	require.Len(testInstance, testFixture.mailer.messages, 1)
	require.Contains(testInstance, testFixture.mailer.messages[0].Subject, "error")
}

func TestRunDeliversMailAfterCancellation(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "priority"})
	testFixture.git.script(probeCommandConstant, gitResponse{exitCode: transientExitCodeConstant, stderr: networkFailureStderr})
	deliveries := 0
	smtpMailer, mailerError := notify.NewSMTPMailer(notify.SMTPSettings{Host: "mail.example.com", From: "foldmerge@example.com"}, zap.NewNop(), func(string, smtp.Auth, string, []string, []byte) error {
		deliveries++
		return nil
	})
	require.NoError(testInstance, mailerError)
	testFixture.delivery = smtpMailer
	executionContext, cancel := context.WithCancel(context.Background())
	cancel()

	result := testFixture.runInContext(testInstance, executionContext, testFixture.git)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, []notify.Status{notify.StatusError}, result.Notifications)
	require.Equal(testInstance, 1, deliveries)
}

func TestRunRoutingAvoidsNameCollisions(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"notes.txt": "third"})
	testFixture.git.script(topLevelCommandConstant, gitResponse{exitCode: transientExitCodeConstant})
	require.NoError(testInstance, os.MkdirAll(testFixture.erroredPath(), 0o755))
	require.NoError(testInstance, os.MkdirAll(testFixture.erroredPath()+"-1", 0o755))

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, testFixture.erroredPath()+"-2", result.Destination)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath()+"-2", "notes.txt"))
	require.NoDirExists(testInstance, testFixture.projectPath)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrNotAVersionControlledTree)
	require.NotContains(testInstance, result.Error.Error(), "already exists")
}

func TestRunRoutesOnlyReconciledDivergenceToArchive(testInstance *testing.T) {
	testCases := []struct {
		name          string
		ahead         string
		behind        string
		expectedState orchestrator.State
	}{
		{name: "reconciled", ahead: "0\n", behind: "0\n", expectedState: orchestrator.StateArchived},
		{name: "local_ahead", ahead: "1\n", behind: "0\n", expectedState: orchestrator.StateErrored},
		{name: "remote_ahead", ahead: "0\n", behind: "2\n", expectedState: orchestrator.StateErrored},
		{name: "both", ahead: "3\n", behind: "4\n", expectedState: orchestrator.StateErrored},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testFixture := newFixture(testInstance, nil)
			testFixture.git.script(aheadCommandConstant, gitResponse{output: testCase.ahead})
			testFixture.git.script(behindCommandConstant, gitResponse{output: testCase.behind})

			result := testFixture.run(testInstance)

			require.Equal(testInstance, testCase.expectedState, result.State)
			require.Len(testInstance, result.Notifications, 1)
			if testCase.expectedState == orchestrator.StateErrored {
				require.ErrorIs(testInstance, result.Error, orchestrator.ErrDivergenceUnresolved)
				require.Equal(testInstance, orchestrator.StatePushed, result.Reached)
				require.DirExists(testInstance, testFixture.erroredPath())
				return
			}
			require.DirExists(testInstance, testFixture.archivedPath())
		})
	}
}

func TestRunReportsRemovedStrayBranch(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "priority"})
	testFixture.git.script(branchListCommandConstant, gitResponse{output: "* master\n  feature\n"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateArchived, result.State)
	require.Equal(testInstance, []string{"feature"}, result.RemovedBranches)
	require.True(testInstance, testFixture.git.called("branch -D feature"))
	require.Len(testInstance, testFixture.mailer.messages, 1)
	require.Contains(testInstance, testFixture.mailer.messages[0].Text(), "Removed branches: feature")
}

func TestRunStopsOnAmbiguousHead(testInstance *testing.T) {
	testFixture := newFixture(testInstance, nil)
	testFixture.git.script(branchListCommandConstant, gitResponse{output: "* master\n  alpha\n  beta\n"})

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, orchestrator.KindAmbiguousHeadState, result.Kind())
	require.Equal(testInstance, "Multiple branches detected: alpha, beta", result.Reason)
	require.False(testInstance, testFixture.git.called(fetchCommandConstant))
	require.False(testInstance, testFixture.git.called("branch -D alpha"))
}

func TestRunAttributesPublishingFailures(testInstance *testing.T) {
	testFixture := newFixture(testInstance, nil)
	transient := gitResponse{exitCode: transientExitCodeConstant, stderr: networkFailureStderr}
	testFixture.git.script(pushCommandConstant, transient)

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.Equal(testInstance, orchestrator.KindTransientBackendError, result.Kind())
	require.Equal(testInstance, orchestrator.StateMerged, result.Reached)
	require.Equal(testInstance, merge.StagePush, result.Merge.Stage)
	require.Equal(testInstance, 5, result.Merge.Attempts)
	require.Contains(testInstance, result.Reason, "push after 5 attempt(s)")
	require.False(testInstance, testFixture.git.called(aheadCommandConstant))
}

func TestRunAttributesMergeFailures(testInstance *testing.T) {
	testFixture := newFixture(testInstance, nil)
	testFixture.git.script(
		"merge --no-ff -s recursive -X theirs --allow-unrelated-histories -m Fold priority content from master into master priority-import",
		gitResponse{exitCode: 1, stderr: "error: Your local changes would be overwritten"},
	)

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.KindPermanentBackendError, result.Kind())
	require.Equal(testInstance, orchestrator.StateHeadChecked, result.Reached)
	require.Equal(testInstance, merge.StageMerge, result.Merge.Stage)
	require.False(testInstance, testFixture.git.called(pushCommandConstant))
}

func TestRunRefusesConcurrentRunForSameRepository(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "hello"})
	lockPath := filepath.Join(testFixture.settings.WorkingDirectory, testRepositoryNameConstant+".lock")
	require.NoError(testInstance, os.WriteFile(lockPath, []byte("pid 1"), 0o644))

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrRunInProgress)
	require.FileExists(testInstance, lockPath)
	require.FileExists(testInstance, filepath.Join(testFixture.erroredPath(), "README.md"))
	require.Equal(testInstance, []notify.Status{notify.StatusError}, result.Notifications)
}

func TestRunSwallowsNotificationFailures(testInstance *testing.T) {
	testFixture := newFixture(testInstance, nil)
	testFixture.mailer.sendError = errors.New("smtp down")

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateArchived, result.State)
	require.NoError(testInstance, result.Error)
	require.Empty(testInstance, result.Notifications)
	require.Len(testInstance, testFixture.mailer.messages, 1)
}

func TestRunCombinesRoutingFailureWithPrimaryCause(testInstance *testing.T) {
	testFixture := newFixture(testInstance, map[string]string{"README.md": "hello"})
	testFixture.git.script(probeCommandConstant, gitResponse{exitCode: transientExitCodeConstant, stderr: repositoryMissingStderr})
	testFixture.fileSystem = areaFailingFileSystem{failingArea: testFixture.settings.ErrorDirectory}

	result := testFixture.run(testInstance)

	require.Equal(testInstance, orchestrator.StateErrored, result.State)
	require.ErrorIs(testInstance, result.Error, orchestrator.ErrRemoteUnreachable)
	require.ErrorIs(testInstance, result.Error, errAreaUnavailable)
	staged := filepath.Join(testFixture.settings.WorkingDirectory, testRepositoryNameConstant)
	require.Equal(testInstance, staged, result.Destination)
	require.FileExists(testInstance, filepath.Join(staged, "README.md"))
	require.Len(testInstance, testFixture.mailer.messages, 1)
}

func TestNewOrchestratorValidatesDependencies(testInstance *testing.T) {
	settings := orchestrator.Settings{
		RemoteURLPrefix:     testRemotePrefixConstant,
		WorkingDirectory:    "/srv/working",
		ErrorDirectory:      "/srv/errors",
		ArchiveDirectory:    "/srv/archive",
		QuarantineDirectory: "/srv/quarantine",
	}
	complete := orchestrator.Dependencies{
		GitExecutor: newScriptedGit(),
		FileSystem:  filesystem.NewOSFileSystem(),
		Mailer:      &recordingMailer{},
		Logger:      zap.NewNop(),
	}

	testCases := []struct {
		name          string
		mutate        func(*orchestrator.Settings, *orchestrator.Dependencies)
		expectedError error
	}{
		{name: "logger", mutate: func(_ *orchestrator.Settings, dependencies *orchestrator.Dependencies) { dependencies.Logger = nil }, expectedError: orchestrator.ErrLoggerNotConfigured},
		{name: "executor", mutate: func(_ *orchestrator.Settings, dependencies *orchestrator.Dependencies) {
			dependencies.GitExecutor = nil
		}, expectedError: orchestrator.ErrGitExecutorNotConfigured},
		{name: "file_system", mutate: func(_ *orchestrator.Settings, dependencies *orchestrator.Dependencies) { dependencies.FileSystem = nil }, expectedError: orchestrator.ErrFileSystemNotConfigured},
		{name: "mailer", mutate: func(_ *orchestrator.Settings, dependencies *orchestrator.Dependencies) { dependencies.Mailer = nil }, expectedError: orchestrator.ErrMailerNotConfigured},
		{name: "remote_prefix", mutate: func(configuration *orchestrator.Settings, _ *orchestrator.Dependencies) {
			configuration.RemoteURLPrefix = " "
		}, expectedError: orchestrator.ErrRemotePrefixRequired},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			caseSettings := settings
			caseDependencies := complete
			testCase.mutate(&caseSettings, &caseDependencies)
			_, creationError := orchestrator.NewOrchestrator(caseSettings, caseDependencies)
			require.ErrorIs(testInstance, creationError, testCase.expectedError)
		})
	}

	missingDirectory := settings
	missingDirectory.ArchiveDirectory = ""
	_, creationError := orchestrator.NewOrchestrator(missingDirectory, complete)
	require.ErrorContains(testInstance, creationError, "archive directory")

	missingDirectory.ErrorDirectory = ""
	missingDirectory.QuarantineDirectory = ""
	for attempt := 0; attempt < 5; attempt++ {
		_, creationError = orchestrator.NewOrchestrator(missingDirectory, complete)
		require.EqualError(testInstance, creationError, "orchestrator error directory must be provided")
	}
}

func TestRunErrorMatchesKindSentinel(testInstance *testing.T) {
	runError := orchestrator.RunError{Kind: orchestrator.KindQuarantineFailure, Cause: errors.New("copy failed")}
	require.ErrorIs(testInstance, runError, orchestrator.ErrQuarantineFailure)
	require.NotErrorIs(testInstance, runError, orchestrator.ErrRemoteUnreachable)
	require.Equal(testInstance, "quarantine-failure: copy failed", runError.Error())

	detailed := orchestrator.RunError{Kind: orchestrator.KindPermanentBackendError, Detail: "permanent-failure at merge after 1 attempt(s): conflict"}
	require.Equal(testInstance, "permanent-failure at merge after 1 attempt(s): conflict", detailed.Reason())
}
