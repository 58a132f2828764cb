package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/foldmerge/internal/execshell"
)

const (
	repositoryPrefixTemplateConstant = "[%s] %s"
	branchListFlagConstant           = "--list"
	gitBranchSubcommandConstant      = "branch"
)

// inspectionSubcommands only read repository state and are demoted to debug on the console.
var inspectionSubcommands = map[string]struct{}{
	"status":    {},
	"rev-list":  {},
	"rev-parse": {},
	"ls-files":  {},
	"diff":      {},
}

// ConsoleCommandEventLogger reports git progress for a person watching a run. Operations that
// change a repository or talk to the remote are logged at info level; read-only queries are
// logged at debug level. Messages are prefixed with the repository directory name.
type ConsoleCommandEventLogger struct {
	logger    *zap.Logger
	formatter execshell.CommandMessageFormatter
}

// NewConsoleCommandEventLogger constructs a console event logger backed by the provided zap logger.
func NewConsoleCommandEventLogger(logger *zap.Logger) *ConsoleCommandEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventLogger{logger: logger, formatter: execshell.CommandMessageFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandStarted(command execshell.ShellCommand) {
	if eventLogger == nil {
		return
	}
	eventLogger.log(progressLevel(command), command, eventLogger.formatter.BuildStartedMessage(command))
}

// CommandCompleted implements execshell.CommandEventObserver. Non-zero exits are warnings because
// callers decide whether they are fatal.
func (eventLogger *ConsoleCommandEventLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if eventLogger == nil {
		return
	}
	if result.ExitCode == 0 {
		eventLogger.log(progressLevel(command), command, eventLogger.formatter.BuildSuccessMessage(command, result))
		return
	}
	eventLogger.log(zapcore.WarnLevel, command, eventLogger.formatter.BuildFailureMessage(command, result))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if eventLogger == nil {
		return
	}
	eventLogger.log(zapcore.ErrorLevel, command, eventLogger.formatter.BuildExecutionFailureMessage(command, failure))
}

func (eventLogger *ConsoleCommandEventLogger) log(level zapcore.Level, command execshell.ShellCommand, message string) {
	if checkedEntry := eventLogger.logger.Check(level, withRepositoryPrefix(command, message)); checkedEntry != nil {
		checkedEntry.Write()
	}
}

func progressLevel(command execshell.ShellCommand) zapcore.Level {
	if len(command.Details.Arguments) == 0 {
		return zapcore.InfoLevel
	}
	subcommand := strings.TrimSpace(command.Details.Arguments[0])
	if _, inspection := inspectionSubcommands[subcommand]; inspection {
		return zapcore.DebugLevel
	}
	if subcommand == gitBranchSubcommandConstant {
		for _, argument := range command.Details.Arguments[1:] {
			if argument == branchListFlagConstant {
				return zapcore.DebugLevel
			}
		}
	}
	return zapcore.InfoLevel
}

func withRepositoryPrefix(command execshell.ShellCommand, message string) string {
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return message
	}
	return fmt.Sprintf(repositoryPrefixTemplateConstant, filepath.Base(workingDirectory), message)
}
