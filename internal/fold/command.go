package fold

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/discovery"
	"github.com/temirov/foldmerge/internal/execshell"
	"github.com/temirov/foldmerge/internal/filesystem"
	"github.com/temirov/foldmerge/internal/gitrepo"
	"github.com/temirov/foldmerge/internal/merge"
	"github.com/temirov/foldmerge/internal/notify"
	"github.com/temirov/foldmerge/internal/orchestrator"
	"github.com/temirov/foldmerge/internal/quarantine"
	"github.com/temirov/foldmerge/internal/ui"
	"github.com/temirov/foldmerge/internal/utils"
	"github.com/temirov/foldmerge/internal/utils/flags"
	pathutils "github.com/temirov/foldmerge/internal/utils/path"
)

const (
	commandUseConstant                   = "run [project-dir]..."
	commandShortDescriptionConstant      = "Fold project directories into their remote repositories"
	commandLongDescriptionConstant       = "run stages each project directory, quarantines unexpected local changes, merges the project content into the target branch with priority over the remote, pushes, verifies convergence, and moves the tree to the archive or error area. Without arguments every directory under fold.incoming_dir is processed."
	missingProjectsMessageConstant       = "run requires at least one project directory or a configured incoming_dir"
	runsFailedTemplateConstant           = "%d of %d run(s) failed: %w"
	flagRemoteURLPrefixNameConstant      = "remote-url-prefix"
	flagRemoteURLPrefixUsageConstant     = "Prefix joined with the project name and .git to form the remote URL"
	flagTargetBranchNameConstant         = "target-branch"
	flagTargetBranchUsageConstant        = "Branch that receives the project content"
	flagRecipientsNameConstant           = "recipient"
	flagRecipientsUsageConstant          = "Notification recipient (repeatable)"
	flagQuarantineModifiedNameConstant   = "quarantine-modified"
	flagQuarantineModifiedUsageConstant  = "Disposition for modified tracked files"
	flagQuarantineUntrackedNameConstant  = "quarantine-untracked"
	flagQuarantineUntrackedUsageConstant = "Disposition for untracked files"
	runsCompletedMessageConstant         = "Fold runs completed"
	logFieldProjectCountConstant         = "projects"
	logFieldFailedCountConstant          = "failed"
	logFieldConfigurationWorkingConstant = "working_dir"
	logFieldIncomingConstant             = "incoming_dir"
	projectsDiscoveredMessageConstant    = "Discovered incoming projects"
)

// ErrRunsFailed indicates at least one project ended in the error area.
var ErrRunsFailed = errors.New("fold runs failed")

var errMissingProjects = errors.New(missingProjectsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current fold configuration.
type ConfigurationProvider func() Configuration

// FileSystem is the filesystem collaborator the command wires into preparation and runs.
type FileSystem interface {
	PreparationFileSystem
	orchestrator.FileSystem
}

// ProjectDiscoverer lists project directories waiting under incoming roots.
type ProjectDiscoverer interface {
	DiscoverProjects(roots []string) ([]string, error)
}

// CommandBuilder assembles the run command. Unset collaborators default to the git executable, the
// operating system filesystem, a mailer chosen from the smtp configuration, and a directory scan
// of the incoming area.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	ConfigurationProvider        ConfigurationProvider
	HumanReadableLoggingProvider func() bool
	GitExecutor                  gitrepo.GitExecutor
	FileSystem                   FileSystem
	Mailer                       notify.Mailer
	Discoverer                   ProjectDiscoverer
	Sleeper                      merge.Sleeper
	Clock                        func() time.Time
}

// Build constructs the run command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		RunE:  builder.run,
	}

	command.Flags().String(flagRemoteURLPrefixNameConstant, "", flagRemoteURLPrefixUsageConstant)
	command.Flags().String(flagTargetBranchNameConstant, "", flagTargetBranchUsageConstant)
	command.Flags().StringSlice(flagRecipientsNameConstant, nil, flagRecipientsUsageConstant)
	command.Flags().String(flagQuarantineModifiedNameConstant, "", flags.FormatChoiceUsage(
		string(quarantine.DispositionRevert),
		[]string{string(quarantine.DispositionRevert), string(quarantine.DispositionIgnore)},
		flagQuarantineModifiedUsageConstant,
	))
	command.Flags().String(flagQuarantineUntrackedNameConstant, "", flags.FormatChoiceUsage(
		string(quarantine.DispositionRemove),
		[]string{string(quarantine.DispositionRemove), string(quarantine.DispositionIgnore)},
		flagQuarantineUntrackedUsageConstant,
	))

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration, configurationError := builder.resolveConfiguration(command)
	if configurationError != nil {
		return orchestrator.RunError{Kind: orchestrator.KindConfigError, Cause: configurationError}
	}

	logger := builder.resolveLogger()
	projectPaths, projectsError := builder.resolveProjects(configuration, arguments, logger)
	if projectsError != nil {
		return projectsError
	}
	fileSystem := builder.resolveFileSystem()
	if prepareError := configuration.Prepare(fileSystem); prepareError != nil {
		return orchestrator.RunError{Kind: orchestrator.KindConfigError, Cause: prepareError}
	}

	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return executorError
	}
	mailer, mailerError := builder.resolveMailer(configuration, logger)
	if mailerError != nil {
		return orchestrator.RunError{Kind: orchestrator.KindConfigError, Cause: mailerError}
	}

	runner, runnerError := orchestrator.NewOrchestrator(configuration.OrchestratorSettings(), orchestrator.Dependencies{
		GitExecutor: executor,
		FileSystem:  fileSystem,
		Mailer:      mailer,
		Logger:      logger,
		Clock:       builder.Clock,
		Sleeper:     builder.Sleeper,
		RetryPolicy: configuration.RetryPolicy(),
	})
	if runnerError != nil {
		return runnerError
	}

	results := make([]orchestrator.RunResult, 0, len(projectPaths))
	failedCount := 0
	for _, projectPath := range projectPaths {
		result := runner.Run(command.Context(), projectPath)
		if result.Failed() {
			failedCount++
		}
		results = append(results, result)
	}

	RenderSummary(utils.NewFlushingWriter(command.OutOrStdout()), results)
	logger.Info(
		runsCompletedMessageConstant,
		zap.Int(logFieldProjectCountConstant, len(results)),
		zap.Int(logFieldFailedCountConstant, failedCount),
		zap.String(logFieldConfigurationWorkingConstant, configuration.WorkingDirectory),
	)

	if failedCount > 0 {
		return fmt.Errorf(runsFailedTemplateConstant, failedCount, len(results), ErrRunsFailed)
	}
	return nil
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) (Configuration, error) {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	if overrideError := applyFlagOverrides(command.Flags(), &configuration); overrideError != nil {
		return Configuration{}, overrideError
	}

	sanitized := configuration.Sanitize()
	if validationError := sanitized.Validate(); validationError != nil {
		return Configuration{}, validationError
	}
	return sanitized, nil
}

// applyFlagOverrides copies non-empty flag values over the loaded configuration. Recipients are
// replaced only when the flag was given. Quarantine dispositions are validated with the rest of
// the configuration.
func applyFlagOverrides(flagSet *pflag.FlagSet, configuration *Configuration) error {
	if prefixValue, flagError := flagSet.GetString(flagRemoteURLPrefixNameConstant); flagError == nil && len(strings.TrimSpace(prefixValue)) > 0 {
		configuration.RemoteURLPrefix = prefixValue
	}
	if branchValue, flagError := flagSet.GetString(flagTargetBranchNameConstant); flagError == nil && len(strings.TrimSpace(branchValue)) > 0 {
		configuration.TargetBranch = branchValue
	}
	if modifiedValue, flagError := flagSet.GetString(flagQuarantineModifiedNameConstant); flagError == nil && len(strings.TrimSpace(modifiedValue)) > 0 {
		configuration.Quarantine.Modified = modifiedValue
	}
	if untrackedValue, flagError := flagSet.GetString(flagQuarantineUntrackedNameConstant); flagError == nil && len(strings.TrimSpace(untrackedValue)) > 0 {
		configuration.Quarantine.Untracked = untrackedValue
	}
	if flagSet.Changed(flagRecipientsNameConstant) {
		recipients, flagError := flagSet.GetStringSlice(flagRecipientsNameConstant)
		if flagError != nil {
			return flagError
		}
		configuration.Recipients = recipients
	}
	return nil
}

func (builder *CommandBuilder) resolveProjects(configuration Configuration, arguments []string, logger *zap.Logger) ([]string, error) {
	sanitizer := pathutils.NewProjectPathSanitizer(pathutils.NewHomeExpander(), pathutils.ProjectPathSanitizerConfiguration{PruneNestedPaths: true})
	if len(arguments) > 0 {
		projectPaths := sanitizer.Sanitize(arguments)
		if len(projectPaths) == 0 {
			return nil, errMissingProjects
		}
		return projectPaths, nil
	}

	if len(configuration.IncomingDirectory) == 0 {
		return nil, errMissingProjects
	}
	discoverer := builder.Discoverer
	if discoverer == nil {
		discoverer = discovery.NewProjectDiscoverer()
	}
	discovered, discoveryError := discoverer.DiscoverProjects([]string{configuration.IncomingDirectory})
	if discoveryError != nil {
		return nil, orchestrator.RunError{Kind: orchestrator.KindConfigError, Cause: discoveryError}
	}
	logger.Info(projectsDiscoveredMessageConstant, zap.String(logFieldIncomingConstant, configuration.IncomingDirectory), zap.Int(logFieldProjectCountConstant, len(discovered)))

	projectPaths := sanitizer.Sanitize(discovered)
	if len(projectPaths) == 0 {
		return nil, errMissingProjects
	}
	return projectPaths, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveFileSystem() FileSystem {
	if builder.FileSystem != nil {
		return builder.FileSystem
	}
	return filesystem.NewOSFileSystem()
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (gitrepo.GitExecutor, error) {
	if builder.GitExecutor != nil {
		return builder.GitExecutor, nil
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if creationError != nil {
		return nil, creationError
	}
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		shellExecutor = shellExecutor.WithObserver(ui.NewConsoleCommandEventLogger(logger))
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveMailer(configuration Configuration, logger *zap.Logger) (notify.Mailer, error) {
	if builder.Mailer != nil {
		return builder.Mailer, nil
	}
	return notify.NewMailer(configuration.SMTPSettings(), logger)
}
