package execshell

import "go.uber.org/zap"

// CommandEventObserver receives lifecycle notifications for shell command execution.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(command ShellCommand)
	// CommandCompleted notifies observers that command execution finished and supplies the result.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports unexpected failures prior to receiving an execution result.
	CommandExecutionFailed(command ShellCommand, failure error)
}

type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand) {}

func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}

// LoggingCommandEventObserver writes one human-readable zap entry per lifecycle event.
type LoggingCommandEventObserver struct {
	logger    *zap.Logger
	formatter CommandMessageFormatter
}

// NewLoggingCommandEventObserver constructs an observer backed by the provided logger.
func NewLoggingCommandEventObserver(logger *zap.Logger) *LoggingCommandEventObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingCommandEventObserver{logger: logger, formatter: CommandMessageFormatter{}}
}

// CommandStarted logs the start of a command at debug level.
func (observer *LoggingCommandEventObserver) CommandStarted(command ShellCommand) {
	observer.logger.Debug(observer.formatter.BuildStartedMessage(command))
}

// CommandCompleted logs success at debug level and non-zero exit codes at warn level.
func (observer *LoggingCommandEventObserver) CommandCompleted(command ShellCommand, result ExecutionResult) {
	if result.ExitCode == 0 {
		observer.logger.Debug(observer.formatter.BuildSuccessMessage(command, result))
		return
	}
	observer.logger.Warn(observer.formatter.BuildFailureMessage(command, result), zap.Int(exitCodeLogFieldConstant, result.ExitCode))
}

// CommandExecutionFailed logs processes that could not be run at all.
func (observer *LoggingCommandEventObserver) CommandExecutionFailed(command ShellCommand, failure error) {
	observer.logger.Error(observer.formatter.BuildExecutionFailureMessage(command, failure), zap.Error(failure))
}
