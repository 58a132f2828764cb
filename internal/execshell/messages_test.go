package execshell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandMessageFormatterDescribesGitOperations(testInstance *testing.T) {
	testCases := []struct {
		name            string
		arguments       []string
		expectedStart   string
		expectedSuccess string
	}{
		{
			name:            "repository_root",
			arguments:       []string{"rev-parse", "--show-toplevel"},
			expectedStart:   "Resolving repository root in /repo",
			expectedSuccess: "Resolved repository root in /repo",
		},
		{
			name:            "push_branch",
			arguments:       []string{"push", "origin", "master"},
			expectedStart:   "Pushing master to origin from /repo",
			expectedSuccess: "Pushed master to origin from /repo",
		},
		{
			name:            "push_tags",
			arguments:       []string{"push", "origin", "--tags"},
			expectedStart:   "Pushing tags to origin from /repo",
			expectedSuccess: "Pushed tags to origin from /repo",
		},
		{
			name:            "merge_priority",
			arguments:       []string{"merge", "--no-ff", "-s", "recursive", "-X", "theirs", "-m", "Import", "priority-import"},
			expectedStart:   "Merging priority-import in /repo",
			expectedSuccess: "Merged priority-import in /repo",
		},
		{
			name:            "delete_branch",
			arguments:       []string{"branch", "-D", "leftover"},
			expectedStart:   "Updating branches (delete leftover) in /repo",
			expectedSuccess: "Updated branches (delete leftover) in /repo",
		},
		{
			name:            "restore_paths",
			arguments:       []string{"checkout", "HEAD", "--", "a.txt", "b.txt"},
			expectedStart:   "Checking out 2 path(s) in /repo",
			expectedSuccess: "Checked out 2 path(s) in /repo",
		},
		{
			name:            "reset_target",
			arguments:       []string{"checkout", "-B", "master", "origin/master"},
			expectedStart:   "Checking out master in /repo",
			expectedSuccess: "Checked out master in /repo",
		},
	}

	formatter := CommandMessageFormatter{}
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			command := ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: testCase.arguments, WorkingDirectory: "/repo"}}
			require.Equal(testInstance, testCase.expectedStart, formatter.BuildStartedMessage(command))
			require.Equal(testInstance, testCase.expectedSuccess, formatter.BuildSuccessMessage(command, ExecutionResult{}))
		})
	}
}

func TestCommandMessageFormatterReportsCounts(testInstance *testing.T) {
	command := ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: []string{"rev-list", "--count", "origin/master..master"}, WorkingDirectory: "/repo"}}
	message := CommandMessageFormatter{}.BuildSuccessMessage(command, ExecutionResult{StandardOutput: "3\n"})
	require.Equal(testInstance, "Counted commits in origin/master..master for /repo: 3", message)
}

func TestCommandMessageFormatterFallsBackToGenericMessages(testInstance *testing.T) {
	command := ShellCommand{Name: CommandGit, Details: CommandDetails{Arguments: []string{"gc", "--auto"}}}
	formatter := CommandMessageFormatter{}

	require.Equal(testInstance, "Running git gc --auto", formatter.BuildStartedMessage(command))
	require.Equal(testInstance, "git gc --auto failed with exit code 2: boom", formatter.BuildFailureMessage(command, ExecutionResult{ExitCode: 2, StandardError: "boom\n"}))
	require.Equal(testInstance, "git gc --auto failed: unknown error", formatter.BuildExecutionFailureMessage(command, nil))
	require.Equal(testInstance, "git gc --auto failed: gone", formatter.BuildExecutionFailureMessage(command, errors.New("gone")))
}
