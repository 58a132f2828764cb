package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	jsonZapEncodingStringConstant        = "json"
	consoleZapEncodingStringConstant     = "console"
	standardErrorSinkConstant            = "stderr"
	logDirectoryPermissionsConstant      = 0o755
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
	logDirectoryErrorTemplateConstant    = "unable to prepare log directory %s: %w"
	loggerBuildErrorTemplateConstant     = "unable to build logger: %w"
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Exported log level constants for reuse across packages.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Exported log format constants for reuse across packages.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

// LoggerOptions controls the logger produced by LoggerFactory.
type LoggerOptions struct {
	Level       LogLevel
	Format      LogFormat
	LogFilePath string
}

// LoggerOutputs groups the loggers handed to commands.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	LogFilePath      string
}

// LoggerFactory builds zap.Logger instances with consistent configuration.
type LoggerFactory struct{}

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

var logFormatEncodingMapping = map[LogFormat]string{
	LogFormatStructured: jsonZapEncodingStringConstant,
	LogFormatConsole:    consoleZapEncodingStringConstant,
}

// NewLoggerFactory constructs a new logger factory.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{}
}

// CreateLogger produces a zap.Logger writing to standard error and, when configured, appending to
// the log file as well.
func (factory *LoggerFactory) CreateLogger(options LoggerOptions) (*zap.Logger, error) {
	zapLogLevel, levelExists := logLevelMapping[LogLevel(strings.ToLower(strings.TrimSpace(string(options.Level))))]
	if !levelExists {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, options.Level)
	}

	encoding, formatExists := logFormatEncodingMapping[LogFormat(strings.ToLower(strings.TrimSpace(string(options.Format))))]
	if !formatExists {
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, options.Format)
	}

	outputPaths := []string{standardErrorSinkConstant}
	logFilePath := strings.TrimSpace(options.LogFilePath)
	if len(logFilePath) > 0 {
		logDirectory := filepath.Dir(logFilePath)
		if directoryError := os.MkdirAll(logDirectory, logDirectoryPermissionsConstant); directoryError != nil {
			return nil, fmt.Errorf(logDirectoryErrorTemplateConstant, logDirectory, directoryError)
		}
		outputPaths = append(outputPaths, logFilePath)
	}

	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(zapLogLevel)
	configuration.Encoding = encoding
	configuration.OutputPaths = outputPaths
	configuration.ErrorOutputPaths = []string{standardErrorSinkConstant}
	configuration.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, buildError := configuration.Build()
	if buildError != nil {
		return nil, fmt.Errorf(loggerBuildErrorTemplateConstant, buildError)
	}

	return logger, nil
}

// CreateLoggerOutputs wraps CreateLogger for command wiring.
func (factory *LoggerFactory) CreateLoggerOutputs(options LoggerOptions) (LoggerOutputs, error) {
	logger, creationError := factory.CreateLogger(options)
	if creationError != nil {
		return LoggerOutputs{}, creationError
	}
	return LoggerOutputs{DiagnosticLogger: logger, LogFilePath: strings.TrimSpace(options.LogFilePath)}, nil
}
