package execshell

import (
	"fmt"
	"strings"
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	standardErrorSuffixTemplateConstant     = ": %s"
	failureDetailTemplateConstant           = " (exit code %d%s)"
	unknownFailureMessageConstant           = "unknown error"
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	argumentsJoinSeparatorConstant          = " "
	exitCodeLogFieldConstant                = "exit_code"
	flagPrefixConstant                      = "-"
)

const (
	gitRevParseSubcommandConstant    = "rev-parse"
	gitRevListSubcommandConstant     = "rev-list"
	gitRemoteSubcommandConstant      = "remote"
	gitStatusSubcommandConstant      = "status"
	gitLSFilesSubcommandConstant     = "ls-files"
	gitCheckoutSubcommandConstant    = "checkout"
	gitBranchSubcommandConstant      = "branch"
	gitFetchSubcommandConstant       = "fetch"
	gitPushSubcommandConstant        = "push"
	gitLSRemoteSubcommandConstant    = "ls-remote"
	gitAddSubcommandConstant         = "add"
	gitCommitSubcommandConstant      = "commit"
	gitMergeSubcommandConstant       = "merge"
	gitShowTopLevelFlagConstant      = "--show-toplevel"
	gitBranchDeleteFlagConstant      = "-D"
	gitBranchListFlagConstant        = "--list"
	gitTagsFlagConstant              = "--tags"
	gitCheckoutResetFlagConstant     = "-B"
	gitPathSeparatorArgumentConstant = "--"
	gitMessageFlagConstant           = "-m"
	gitMergeStrategyOptionConstant   = "-X"
	gitMergeStrategyFlagConstant     = "-s"
)

// gitMessageTemplates holds the four lifecycle phrasings for one git operation. Every template takes
// the operation description as its first verb and the working directory as its second.
type gitMessageTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
}

var gitSubcommandTemplates = map[string]gitMessageTemplates{
	gitRevParseSubcommandConstant: {"Resolving %s in %s", "Resolved %s in %s", "Failed to resolve %s in %s", "Unable to resolve %s in %s"},
	gitRevListSubcommandConstant:  {"Counting commits in %s for %s", "Counted commits in %s for %s", "Failed to count commits in %s for %s", "Unable to count commits in %s for %s"},
	gitRemoteSubcommandConstant:   {"Configuring remote %s in %s", "Configured remote %s in %s", "Failed to configure remote %s in %s", "Unable to configure remote %s in %s"},
	gitStatusSubcommandConstant:   {"Reviewing %s in %s", "Reviewed %s in %s", "Failed to review %s in %s", "Unable to review %s in %s"},
	gitLSFilesSubcommandConstant:  {"Listing %s in %s", "Listed %s in %s", "Failed to list %s in %s", "Unable to list %s in %s"},
	gitCheckoutSubcommandConstant: {"Checking out %s in %s", "Checked out %s in %s", "Failed to check out %s in %s", "Unable to check out %s in %s"},
	gitBranchSubcommandConstant:   {"Updating branches (%s) in %s", "Updated branches (%s) in %s", "Failed to update branches (%s) in %s", "Unable to update branches (%s) in %s"},
	gitFetchSubcommandConstant:    {"Fetching %s in %s", "Fetched %s in %s", "Failed to fetch %s in %s", "Unable to fetch %s in %s"},
	gitPushSubcommandConstant:     {"Pushing %s from %s", "Pushed %s from %s", "Failed to push %s from %s", "Unable to push %s from %s"},
	gitLSRemoteSubcommandConstant: {"Probing remote %s from %s", "Remote %s answered in %s", "Remote %s did not answer in %s", "Unable to probe remote %s from %s"},
	gitAddSubcommandConstant:      {"Staging %s in %s", "Staged %s in %s", "Failed to stage %s in %s", "Unable to stage %s in %s"},
	gitCommitSubcommandConstant:   {"Creating commit %s in %s", "Created commit %s in %s", "Failed to create commit %s in %s", "Unable to create commit %s in %s"},
	gitMergeSubcommandConstant:    {"Merging %s in %s", "Merged %s in %s", "Failed to merge %s in %s", "Unable to merge %s in %s"},
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	templates, description, known := formatter.resolveGitTemplates(command)
	if !known {
		return fmt.Sprintf(genericStartTemplateConstant, formatter.formatCommandLabel(command))
	}
	return fmt.Sprintf(templates.start, description, formatter.describeWorkingDirectory(command))
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand, result ExecutionResult) string {
	templates, description, known := formatter.resolveGitTemplates(command)
	if !known {
		return fmt.Sprintf(genericSuccessTemplateConstant, formatter.formatCommandLabel(command))
	}
	message := fmt.Sprintf(templates.success, description, formatter.describeWorkingDirectory(command))
	if formatter.subcommand(command) == gitRevListSubcommandConstant {
		if trimmedOutput := strings.TrimSpace(result.StandardOutput); len(trimmedOutput) > 0 {
			message += fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedOutput)
		}
	}
	return message
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	standardErrorSuffix := formatter.formatStandardErrorSuffix(result.StandardError)
	templates, description, known := formatter.resolveGitTemplates(command)
	if !known {
		return fmt.Sprintf(genericFailureTemplateConstant, formatter.formatCommandLabel(command), result.ExitCode, standardErrorSuffix)
	}
	baseMessage := fmt.Sprintf(templates.failure, description, formatter.describeWorkingDirectory(command))
	return baseMessage + fmt.Sprintf(failureDetailTemplateConstant, result.ExitCode, standardErrorSuffix)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	templates, description, known := formatter.resolveGitTemplates(command)
	if !known {
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, formatter.formatCommandLabel(command), failureMessage)
	}
	baseMessage := fmt.Sprintf(templates.executionFailure, description, formatter.describeWorkingDirectory(command))
	return baseMessage + fmt.Sprintf(standardErrorSuffixTemplateConstant, failureMessage)
}

func (formatter CommandMessageFormatter) resolveGitTemplates(command ShellCommand) (gitMessageTemplates, string, bool) {
	if command.Name != CommandGit {
		return gitMessageTemplates{}, "", false
	}
	subcommand := formatter.subcommand(command)
	templates, known := gitSubcommandTemplates[subcommand]
	if !known {
		return gitMessageTemplates{}, "", false
	}
	return templates, formatter.describeGitOperation(subcommand, command.Details.Arguments[1:]), true
}

func (formatter CommandMessageFormatter) subcommand(command ShellCommand) string {
	if len(command.Details.Arguments) == 0 {
		return ""
	}
	return strings.TrimSpace(command.Details.Arguments[0])
}

func (formatter CommandMessageFormatter) describeGitOperation(subcommand string, arguments []string) string {
	switch subcommand {
	case gitRevParseSubcommandConstant:
		if containsArgument(arguments, gitShowTopLevelFlagConstant) {
			return "repository root"
		}
		return formatter.ensureValue(lastArgument(arguments))
	case gitRevListSubcommandConstant:
		return formatter.ensureValue(lastArgument(arguments))
	case gitStatusSubcommandConstant:
		return "working tree status"
	case gitLSFilesSubcommandConstant:
		return "untracked files"
	case gitCheckoutSubcommandConstant:
		if containsArgument(arguments, gitPathSeparatorArgumentConstant) {
			return fmt.Sprintf("%d path(s)", len(argumentsAfter(arguments, gitPathSeparatorArgumentConstant)))
		}
		if containsArgument(arguments, gitCheckoutResetFlagConstant) {
			return formatter.ensureValue(findFlagValue(arguments, gitCheckoutResetFlagConstant))
		}
		return formatter.ensureValue(firstNonFlagArgument(arguments))
	case gitBranchSubcommandConstant:
		if containsArgument(arguments, gitBranchListFlagConstant) {
			return "list"
		}
		if containsArgument(arguments, gitBranchDeleteFlagConstant) {
			return "delete " + formatter.ensureValue(findFlagValue(arguments, gitBranchDeleteFlagConstant))
		}
		return "create " + formatter.ensureValue(firstNonFlagArgument(arguments))
	case gitFetchSubcommandConstant:
		return formatter.ensureValue(firstNonFlagArgument(arguments))
	case gitPushSubcommandConstant:
		if containsArgument(arguments, gitTagsFlagConstant) {
			return "tags to " + formatter.ensureValue(firstNonFlagArgument(arguments))
		}
		pushTargets := nonFlagArguments(arguments)
		if len(pushTargets) < 2 {
			return formatter.ensureValue(firstNonFlagArgument(arguments))
		}
		return strings.Join(pushTargets[1:], argumentsJoinSeparatorConstant) + " to " + pushTargets[0]
	case gitLSRemoteSubcommandConstant:
		return formatter.ensureValue(firstNonFlagArgument(arguments))
	case gitRemoteSubcommandConstant:
		return formatter.ensureValue(strings.Join(arguments, argumentsJoinSeparatorConstant))
	case gitAddSubcommandConstant:
		return "pending changes"
	case gitCommitSubcommandConstant:
		return fmt.Sprintf("%q", findFlagValue(arguments, gitMessageFlagConstant))
	case gitMergeSubcommandConstant:
		return formatter.ensureValue(lastArgument(arguments))
	default:
		return formatter.ensureValue(strings.Join(arguments, argumentsJoinSeparatorConstant))
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	label := describeCommand(command)
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return label
	}
	return label + fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return ""
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmedValue
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func findFlagValue(arguments []string, flag string) string {
	for index := 0; index < len(arguments)-1; index++ {
		if strings.TrimSpace(arguments[index]) == flag {
			return arguments[index+1]
		}
	}
	return ""
}

func argumentsAfter(arguments []string, separator string) []string {
	for index, argument := range arguments {
		if argument == separator {
			return arguments[index+1:]
		}
	}
	return nil
}

func firstNonFlagArgument(arguments []string) string {
	remaining := nonFlagArguments(arguments)
	if len(remaining) == 0 {
		return ""
	}
	return remaining[0]
}

// nonFlagArguments drops flags and the values of the value-carrying flags used by the pipeline.
func nonFlagArguments(arguments []string) []string {
	remaining := make([]string, 0, len(arguments))
	skipNext := false
	for _, argument := range arguments {
		if skipNext {
			skipNext = false
			continue
		}
		if strings.HasPrefix(argument, flagPrefixConstant) {
			switch argument {
			case gitMessageFlagConstant, gitMergeStrategyOptionConstant, gitMergeStrategyFlagConstant, gitCheckoutResetFlagConstant, gitBranchDeleteFlagConstant:
				skipNext = true
			}
			continue
		}
		remaining = append(remaining, argument)
	}
	return remaining
}

func lastArgument(arguments []string) string {
	if len(arguments) == 0 {
		return ""
	}
	return arguments[len(arguments)-1]
}
