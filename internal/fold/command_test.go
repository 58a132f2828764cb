package fold_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/execshell"
	"github.com/temirov/foldmerge/internal/fold"
	"github.com/temirov/foldmerge/internal/notify"
	"github.com/temirov/foldmerge/internal/orchestrator"
	"github.com/temirov/foldmerge/internal/quarantine"
)

type commandGitExecutor struct {
	unreachableRemotes map[string]bool
	calls              []string
}

func (executor *commandGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	command := strings.Join(details.Arguments, " ")
	executor.calls = append(executor.calls, command)
	switch {
	case command == "rev-parse --show-toplevel":
		return execshell.ExecutionResult{StandardOutput: details.WorkingDirectory + "\n"}, nil
	case command == "branch --list":
		return execshell.ExecutionResult{StandardOutput: "* master\n"}, nil
	case strings.HasPrefix(command, "rev-list --count"):
		return execshell.ExecutionResult{StandardOutput: "0\n"}, nil
	case strings.HasPrefix(command, "ls-remote --heads"):
		for name := range executor.unreachableRemotes {
			if strings.HasSuffix(command, "/"+name+".git") {
				return execshell.ExecutionResult{}, execshell.CommandFailedError{
					Command: execshell.ShellCommand{Name: execshell.CommandGit, Details: details},
					Result:  execshell.ExecutionResult{ExitCode: 128, StandardError: "ERROR: Repository not found."},
				}
			}
		}
	}
	return execshell.ExecutionResult{}, nil
}

type collectingMailer struct {
	messages []notify.Message
}

func (mailer *collectingMailer) Send(_ context.Context, message notify.Message) error {
	mailer.messages = append(mailer.messages, message)
	return nil
}

func createProject(testInstance *testing.T, root string, name string) string {
	testInstance.Helper()
	projectPath := filepath.Join(root, "incoming", name)
	require.NoError(testInstance, os.MkdirAll(projectPath, 0o755))
	require.NoError(testInstance, os.WriteFile(filepath.Join(projectPath, "README.md"), []byte(name), 0o644))
	return projectPath
}

func executeRunCommand(testInstance *testing.T, builder *fold.CommandBuilder, arguments ...string) (string, error) {
	testInstance.Helper()
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetErr(output)
	command.SetArgs(arguments)
	command.SilenceUsage = true
	command.SilenceErrors = true
	executionError := command.ExecuteContext(context.Background())
	return output.String(), executionError
}

func TestRunCommandFoldsProjectsAndRendersSummary(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))
	alphaPath := createProject(testInstance, root, "alpha")
	betaPath := createProject(testInstance, root, "beta")

	executor := &commandGitExecutor{}
	mailer := &collectingMailer{}
	builder := &fold.CommandBuilder{
		LoggerProvider:        zap.NewNop,
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           executor,
		Mailer:                mailer,
		Clock:                 func() time.Time { return time.Date(2024, time.March, 4, 5, 6, 7, 0, time.UTC) },
	}

	output, executionError := executeRunCommand(testInstance, builder, alphaPath, betaPath)
	require.NoError(testInstance, executionError)

	require.Contains(testInstance, output, "PROJECT")
	require.Contains(testInstance, output, "alpha")
	require.Contains(testInstance, output, "beta")
	require.Contains(testInstance, output, "archived")
	require.DirExists(testInstance, filepath.Join(configuration.ArchiveDirectory, "alpha-20240304T050607Z"))
	require.DirExists(testInstance, filepath.Join(configuration.ArchiveDirectory, "beta-20240304T050607Z"))
	require.FileExists(testInstance, configuration.LogPath)
	require.Len(testInstance, mailer.messages, 2)
}

func TestRunCommandFailsWhenAnyRunErrors(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))
	goodPath := createProject(testInstance, root, "good")
	missingPath := createProject(testInstance, root, "missing")

	builder := &fold.CommandBuilder{
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           &commandGitExecutor{unreachableRemotes: map[string]bool{"missing": true}},
		Mailer:                &collectingMailer{},
	}

	output, executionError := executeRunCommand(testInstance, builder, goodPath, missingPath)
	require.ErrorIs(testInstance, executionError, fold.ErrRunsFailed)
	require.ErrorContains(testInstance, executionError, "1 of 2 run(s) failed")
	require.Contains(testInstance, output, "errored")
	require.Contains(testInstance, output, "remote-unreachable")
}

func TestRunCommandAppliesFlagOverrides(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))
	configuration.RemoteURLPrefix = ""
	projectPath := createProject(testInstance, root, "gamma")

	executor := &commandGitExecutor{}
	mailer := &collectingMailer{}
	builder := &fold.CommandBuilder{
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           executor,
		Mailer:                mailer,
	}

	_, executionError := executeRunCommand(testInstance, builder,
		"--remote-url-prefix", "https://git.example.com/team/",
		"--target-branch", "main",
		"--recipient", "lead@example.com",
		projectPath,
	)
	require.NoError(testInstance, executionError)
	require.Contains(testInstance, executor.calls, "remote set-url origin https://git.example.com/team/gamma.git")
	require.Contains(testInstance, executor.calls, "push origin main")
	require.Len(testInstance, mailer.messages, 1)
	require.Equal(testInstance, []string{"lead@example.com"}, mailer.messages[0].Recipients)
}

func TestRunCommandAppliesQuarantineOverrides(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))
	projectPath := createProject(testInstance, root, "epsilon")

	builder := &fold.CommandBuilder{
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           &commandGitExecutor{},
		Mailer:                &collectingMailer{},
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	require.Contains(testInstance, command.Flags().Lookup("quarantine-modified").Usage, "`<REVERT|ignore>`")
	require.Contains(testInstance, command.Flags().Lookup("quarantine-untracked").Usage, "`<REMOVE|ignore>`")

	_, executionError := executeRunCommand(testInstance, builder, "--quarantine-modified", "shred", projectPath)
	require.ErrorIs(testInstance, executionError, fold.ErrInvalidConfiguration)
	require.ErrorIs(testInstance, executionError, quarantine.ErrInvalidDisposition)

	_, executionError = executeRunCommand(testInstance, builder, "--quarantine-modified", "IGNORE", "--quarantine-untracked", "ignore", projectPath)
	require.NoError(testInstance, executionError)
}

func TestRunCommandRejectsInvalidInput(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))

	builder := &fold.CommandBuilder{
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           &commandGitExecutor{},
		Mailer:                &collectingMailer{},
	}
	_, executionError := executeRunCommand(testInstance, builder, " ")
	require.ErrorContains(testInstance, executionError, "at least one project directory")

	configuration.RemoteURLPrefix = ""
	_, executionError = executeRunCommand(testInstance, builder, createProject(testInstance, root, "delta"))
	require.ErrorIs(testInstance, executionError, orchestrator.ErrConfiguration)
	require.ErrorIs(testInstance, executionError, fold.ErrInvalidConfiguration)
}

func TestRenderSummaryListsEveryResult(testInstance *testing.T) {
	output := &bytes.Buffer{}
	fold.RenderSummary(output, []orchestrator.RunResult{
		{Repository: "alpha", State: orchestrator.StateArchived, Destination: "/srv/archive/alpha-1"},
		{Repository: "beta", State: orchestrator.StateErrored, Reason: "Multiple branches detected: a, b", Error: orchestrator.RunError{Kind: orchestrator.KindAmbiguousHeadState}},
	})

	rendered := output.String()
	require.Contains(testInstance, rendered, "/srv/archive/alpha-1")
	require.Contains(testInstance, rendered, "ambiguous-head-state")
	require.Contains(testInstance, rendered, "Multiple branches detected: a, b")
}

func TestRunCommandDiscoversIncomingProjects(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))
	configuration.IncomingDirectory = filepath.Join(root, "incoming")
	createProject(testInstance, root, "alpha")
	createProject(testInstance, root, "beta")
	require.NoError(testInstance, os.MkdirAll(filepath.Join(configuration.IncomingDirectory, ".partial"), 0o755))

	mailer := &collectingMailer{}
	builder := &fold.CommandBuilder{
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           &commandGitExecutor{},
		Mailer:                mailer,
		Clock:                 func() time.Time { return time.Date(2024, time.March, 4, 5, 6, 7, 0, time.UTC) },
	}

	output, executionError := executeRunCommand(testInstance, builder)
	require.NoError(testInstance, executionError)
	require.Contains(testInstance, output, "alpha")
	require.Contains(testInstance, output, "beta")
	require.NotContains(testInstance, output, ".partial")
	require.DirExists(testInstance, filepath.Join(configuration.ArchiveDirectory, "alpha-20240304T050607Z"))
	require.DirExists(testInstance, filepath.Join(configuration.ArchiveDirectory, "beta-20240304T050607Z"))
	require.DirExists(testInstance, filepath.Join(configuration.IncomingDirectory, ".partial"))
	require.Len(testInstance, mailer.messages, 2)
}

func TestRunCommandWithoutProjectsOrIncomingDirectory(testInstance *testing.T) {
	root := testInstance.TempDir()
	configuration := validConfiguration(filepath.Join(root, "areas"))

	builder := &fold.CommandBuilder{
		ConfigurationProvider: func() fold.Configuration { return configuration },
		GitExecutor:           &commandGitExecutor{},
		Mailer:                &collectingMailer{},
	}
	_, executionError := executeRunCommand(testInstance, builder)
	require.ErrorContains(testInstance, executionError, "incoming_dir")

	configuration.IncomingDirectory = filepath.Join(root, "absent")
	_, executionError = executeRunCommand(testInstance, builder)
	require.ErrorIs(testInstance, executionError, orchestrator.ErrConfiguration)
	require.ErrorIs(testInstance, executionError, os.ErrNotExist)
}

func TestRenderAreasListsConfiguredDirectories(testInstance *testing.T) {
	configuration := validConfiguration("/srv/fold")
	output := &bytes.Buffer{}
	fold.RenderAreas(output, configuration)

	rendered := output.String()
	require.Contains(testInstance, rendered, "working_dir")
	require.Contains(testInstance, rendered, "/srv/fold/archive")
	require.Contains(testInstance, rendered, "/srv/fold/logs/foldmerge.log")
	require.Contains(testInstance, rendered, "(unset)")
}
