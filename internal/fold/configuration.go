package fold

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/temirov/foldmerge/internal/merge"
	"github.com/temirov/foldmerge/internal/notify"
	"github.com/temirov/foldmerge/internal/orchestrator"
	"github.com/temirov/foldmerge/internal/quarantine"
	pathutils "github.com/temirov/foldmerge/internal/utils/path"
)

const (
	defaultRemoteNameConstant          = "origin"
	defaultTargetBranchConstant        = "master"
	defaultStagingBranchConstant       = "priority-import"
	defaultWorkingDirectoryConstant    = "~/.foldmerge/working"
	defaultErrorDirectoryConstant      = "~/.foldmerge/errors"
	defaultArchiveDirectoryConstant    = "~/.foldmerge/archive"
	defaultQuarantineDirectoryConstant = "~/.foldmerge/quarantine"
	defaultLogPathConstant             = "~/.foldmerge/foldmerge.log"
	defaultSMTPPortConstant            = 25
	defaultRetryAttemptsConstant       = 5
	defaultRetryDelayConstant          = 5 * time.Second
	keySeparatorConstant               = "."
	remoteURLPrefixKeyConstant         = "remote_url_prefix"
	remoteNameKeyConstant              = "remote_name"
	workingDirectoryKeyConstant        = "working_dir"
	errorDirectoryKeyConstant          = "error_dir"
	archiveDirectoryKeyConstant        = "archive_dir"
	quarantineDirectoryKeyConstant     = "quarantine_dir"
	incomingDirectoryKeyConstant       = "incoming_dir"
	recipientsKeyConstant              = "recipients"
	targetBranchKeyConstant            = "target_branch"
	stagingBranchKeyConstant           = "staging_branch"
	logPathKeyConstant                 = "log_path"
	quarantineModifiedKeyConstant      = "quarantine.modified"
	quarantineUntrackedKeyConstant     = "quarantine.untracked"
	smtpHostKeyConstant                = "smtp.host"
	smtpPortKeyConstant                = "smtp.port"
	smtpUsernameKeyConstant            = "smtp.username"
	smtpPasswordKeyConstant            = "smtp.password"
	smtpFromKeyConstant                = "smtp.from"
	retryAttemptsKeyConstant           = "retry.attempts"
	retryDelayKeyConstant              = "retry.delay"
	missingKeyTemplateConstant         = "%s must be provided: %w"
	invalidKeyTemplateConstant         = "%s: %w"
	invalidValueTemplateConstant       = "%s must be positive: %w"
	distinctBranchesTemplateConstant   = "%s and %s must differ: %w"
	distinctDirectoriesTemplate        = "%s and %s must differ: %w"
	smtpRecipientsTemplateConstant     = "%s must be provided when %s is set: %w"
	prepareDirectoryTemplateConstant   = "unable to prepare %s %s: %w"
	prepareLogFileTemplateConstant     = "unable to prepare %s %s: %w"
	invalidConfigurationMessage        = "invalid fold configuration"
)

// ErrInvalidConfiguration marks every configuration validation failure.
var ErrInvalidConfiguration = errors.New(invalidConfigurationMessage)

var configurationHomeDirectoryExpander = pathutils.NewHomeExpander()

// QuarantineConfiguration selects the disposition for each quarantine bucket.
type QuarantineConfiguration struct {
	Modified  string `mapstructure:"modified"`
	Untracked string `mapstructure:"untracked"`
}

// SMTPConfiguration describes the mail relay. An empty host selects the log mailer.
type SMTPConfiguration struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// RetryConfiguration bounds retries of network stages.
type RetryConfiguration struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// Configuration captures the fold section of the application configuration.
type Configuration struct {
	RemoteURLPrefix     string                  `mapstructure:"remote_url_prefix"`
	RemoteName          string                  `mapstructure:"remote_name"`
	WorkingDirectory    string                  `mapstructure:"working_dir"`
	ErrorDirectory      string                  `mapstructure:"error_dir"`
	ArchiveDirectory    string                  `mapstructure:"archive_dir"`
	QuarantineDirectory string                  `mapstructure:"quarantine_dir"`
	IncomingDirectory   string                  `mapstructure:"incoming_dir"`
	Recipients          []string                `mapstructure:"recipients"`
	TargetBranch        string                  `mapstructure:"target_branch"`
	StagingBranch       string                  `mapstructure:"staging_branch"`
	LogPath             string                  `mapstructure:"log_path"`
	Quarantine          QuarantineConfiguration `mapstructure:"quarantine"`
	SMTP                SMTPConfiguration       `mapstructure:"smtp"`
	Retry               RetryConfiguration      `mapstructure:"retry"`
}

// DefaultConfiguration returns baseline values for the fold section.
func DefaultConfiguration() Configuration {
	return Configuration{
		RemoteName:          defaultRemoteNameConstant,
		WorkingDirectory:    defaultWorkingDirectoryConstant,
		ErrorDirectory:      defaultErrorDirectoryConstant,
		ArchiveDirectory:    defaultArchiveDirectoryConstant,
		QuarantineDirectory: defaultQuarantineDirectoryConstant,
		TargetBranch:        defaultTargetBranchConstant,
		StagingBranch:       defaultStagingBranchConstant,
		LogPath:             defaultLogPathConstant,
		Quarantine: QuarantineConfiguration{
			Modified:  string(quarantine.DispositionRevert),
			Untracked: string(quarantine.DispositionRemove),
		},
		SMTP:  SMTPConfiguration{Port: defaultSMTPPortConstant},
		Retry: RetryConfiguration{Attempts: defaultRetryAttemptsConstant, Delay: defaultRetryDelayConstant},
	}
}

// DefaultConfigurationValues returns the defaults keyed for viper under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	values := map[string]any{
		remoteURLPrefixKeyConstant:     defaults.RemoteURLPrefix,
		remoteNameKeyConstant:          defaults.RemoteName,
		workingDirectoryKeyConstant:    defaults.WorkingDirectory,
		errorDirectoryKeyConstant:      defaults.ErrorDirectory,
		archiveDirectoryKeyConstant:    defaults.ArchiveDirectory,
		quarantineDirectoryKeyConstant: defaults.QuarantineDirectory,
		incomingDirectoryKeyConstant:   defaults.IncomingDirectory,
		recipientsKeyConstant:          []string{},
		targetBranchKeyConstant:        defaults.TargetBranch,
		stagingBranchKeyConstant:       defaults.StagingBranch,
		logPathKeyConstant:             defaults.LogPath,
		quarantineModifiedKeyConstant:  defaults.Quarantine.Modified,
		quarantineUntrackedKeyConstant: defaults.Quarantine.Untracked,
		smtpHostKeyConstant:            defaults.SMTP.Host,
		smtpPortKeyConstant:            defaults.SMTP.Port,
		smtpUsernameKeyConstant:        defaults.SMTP.Username,
		smtpPasswordKeyConstant:        defaults.SMTP.Password,
		smtpFromKeyConstant:            defaults.SMTP.From,
		retryAttemptsKeyConstant:       defaults.Retry.Attempts,
		retryDelayKeyConstant:          defaults.Retry.Delay.String(),
	}

	trimmedRoot := strings.TrimSpace(rootKey)
	if len(trimmedRoot) == 0 {
		return values
	}
	prefixed := make(map[string]any, len(values))
	for key, value := range values {
		prefixed[trimmedRoot+keySeparatorConstant+key] = value
	}
	return prefixed
}

// Sanitize trims values, expands home-relative paths, and drops empty recipients.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.RemoteURLPrefix = strings.TrimSpace(configuration.RemoteURLPrefix)
	sanitized.RemoteName = strings.TrimSpace(configuration.RemoteName)
	sanitized.TargetBranch = strings.TrimSpace(configuration.TargetBranch)
	sanitized.StagingBranch = strings.TrimSpace(configuration.StagingBranch)
	sanitized.WorkingDirectory = sanitizePath(configuration.WorkingDirectory)
	sanitized.ErrorDirectory = sanitizePath(configuration.ErrorDirectory)
	sanitized.ArchiveDirectory = sanitizePath(configuration.ArchiveDirectory)
	sanitized.QuarantineDirectory = sanitizePath(configuration.QuarantineDirectory)
	sanitized.IncomingDirectory = sanitizePath(configuration.IncomingDirectory)
	sanitized.LogPath = sanitizePath(configuration.LogPath)
	sanitized.Quarantine.Modified = strings.ToLower(strings.TrimSpace(configuration.Quarantine.Modified))
	sanitized.Quarantine.Untracked = strings.ToLower(strings.TrimSpace(configuration.Quarantine.Untracked))
	sanitized.SMTP.Host = strings.TrimSpace(configuration.SMTP.Host)
	sanitized.SMTP.Username = strings.TrimSpace(configuration.SMTP.Username)
	sanitized.SMTP.From = strings.TrimSpace(configuration.SMTP.From)

	recipients := make([]string, 0, len(configuration.Recipients))
	for _, recipient := range configuration.Recipients {
		trimmed := strings.TrimSpace(recipient)
		if len(trimmed) == 0 {
			continue
		}
		recipients = append(recipients, trimmed)
	}
	sanitized.Recipients = recipients
	return sanitized
}

// Validate reports every problem at once. Each failure wraps ErrInvalidConfiguration.
func (configuration Configuration) Validate() error {
	var validationError error
	for _, required := range []struct {
		key   string
		value string
	}{
		{key: remoteURLPrefixKeyConstant, value: configuration.RemoteURLPrefix},
		{key: workingDirectoryKeyConstant, value: configuration.WorkingDirectory},
		{key: errorDirectoryKeyConstant, value: configuration.ErrorDirectory},
		{key: archiveDirectoryKeyConstant, value: configuration.ArchiveDirectory},
		{key: quarantineDirectoryKeyConstant, value: configuration.QuarantineDirectory},
		{key: targetBranchKeyConstant, value: configuration.TargetBranch},
		{key: stagingBranchKeyConstant, value: configuration.StagingBranch},
		{key: logPathKeyConstant, value: configuration.LogPath},
	} {
		if len(strings.TrimSpace(required.value)) == 0 {
			validationError = multierr.Append(validationError, fmt.Errorf(missingKeyTemplateConstant, required.key, ErrInvalidConfiguration))
		}
	}

	if _, parseError := quarantine.ParseDisposition(quarantine.BucketModified, configuration.Quarantine.Modified); parseError != nil {
		validationError = multierr.Append(validationError, fmt.Errorf(invalidKeyTemplateConstant, quarantineModifiedKeyConstant, errors.Join(ErrInvalidConfiguration, parseError)))
	}
	if _, parseError := quarantine.ParseDisposition(quarantine.BucketAdded, configuration.Quarantine.Untracked); parseError != nil {
		validationError = multierr.Append(validationError, fmt.Errorf(invalidKeyTemplateConstant, quarantineUntrackedKeyConstant, errors.Join(ErrInvalidConfiguration, parseError)))
	}

	if len(configuration.TargetBranch) > 0 && configuration.TargetBranch == configuration.StagingBranch {
		validationError = multierr.Append(validationError, fmt.Errorf(distinctBranchesTemplateConstant, targetBranchKeyConstant, stagingBranchKeyConstant, ErrInvalidConfiguration))
	}
	validationError = multierr.Append(validationError, configuration.validateDistinctDirectories())

	if configuration.Retry.Attempts <= 0 {
		validationError = multierr.Append(validationError, fmt.Errorf(invalidValueTemplateConstant, retryAttemptsKeyConstant, ErrInvalidConfiguration))
	}
	if configuration.Retry.Delay < 0 {
		validationError = multierr.Append(validationError, fmt.Errorf(invalidValueTemplateConstant, retryDelayKeyConstant, ErrInvalidConfiguration))
	}

	if len(configuration.SMTP.Host) > 0 {
		if len(configuration.Recipients) == 0 {
			validationError = multierr.Append(validationError, fmt.Errorf(smtpRecipientsTemplateConstant, recipientsKeyConstant, smtpHostKeyConstant, ErrInvalidConfiguration))
		}
		if len(configuration.SMTP.From) == 0 {
			validationError = multierr.Append(validationError, fmt.Errorf(smtpRecipientsTemplateConstant, smtpFromKeyConstant, smtpHostKeyConstant, ErrInvalidConfiguration))
		}
		if configuration.SMTP.Port <= 0 {
			validationError = multierr.Append(validationError, fmt.Errorf(invalidValueTemplateConstant, smtpPortKeyConstant, ErrInvalidConfiguration))
		}
	}
	return validationError
}

func (configuration Configuration) validateDistinctDirectories() error {
	directories := []struct {
		key  string
		path string
	}{
		{key: workingDirectoryKeyConstant, path: configuration.WorkingDirectory},
		{key: errorDirectoryKeyConstant, path: configuration.ErrorDirectory},
		{key: archiveDirectoryKeyConstant, path: configuration.ArchiveDirectory},
		{key: quarantineDirectoryKeyConstant, path: configuration.QuarantineDirectory},
		{key: incomingDirectoryKeyConstant, path: configuration.IncomingDirectory},
	}
	var validationError error
	for leftIndex := range directories {
		for rightIndex := leftIndex + 1; rightIndex < len(directories); rightIndex++ {
			left := directories[leftIndex]
			right := directories[rightIndex]
			if len(left.path) == 0 || len(right.path) == 0 {
				continue
			}
			if pathutils.Canonicalize(left.path) == pathutils.Canonicalize(right.path) {
				validationError = multierr.Append(validationError, fmt.Errorf(distinctDirectoriesTemplate, left.key, right.key, ErrInvalidConfiguration))
			}
		}
	}
	return validationError
}

// PreparationFileSystem creates the areas a run writes to.
type PreparationFileSystem interface {
	EnsureWritableDirectory(path string) error
	EnsureFile(path string) error
}

// Prepare creates every configured directory and the log file when absent and verifies they are
// usable.
func (configuration Configuration) Prepare(fileSystem PreparationFileSystem) error {
	for _, directory := range []struct {
		key  string
		path string
	}{
		{key: workingDirectoryKeyConstant, path: configuration.WorkingDirectory},
		{key: errorDirectoryKeyConstant, path: configuration.ErrorDirectory},
		{key: archiveDirectoryKeyConstant, path: configuration.ArchiveDirectory},
		{key: quarantineDirectoryKeyConstant, path: configuration.QuarantineDirectory},
	} {
		if ensureError := fileSystem.EnsureWritableDirectory(directory.path); ensureError != nil {
			return fmt.Errorf(prepareDirectoryTemplateConstant, directory.key, directory.path, ensureError)
		}
	}
	if ensureError := fileSystem.EnsureFile(configuration.LogPath); ensureError != nil {
		return fmt.Errorf(prepareLogFileTemplateConstant, logPathKeyConstant, configuration.LogPath, ensureError)
	}
	return nil
}

// OrchestratorSettings converts a validated configuration into run settings.
func (configuration Configuration) OrchestratorSettings() orchestrator.Settings {
	return orchestrator.Settings{
		RemoteURLPrefix:      configuration.RemoteURLPrefix,
		RemoteName:           configuration.RemoteName,
		TargetBranch:         configuration.TargetBranch,
		StagingBranch:        configuration.StagingBranch,
		WorkingDirectory:     configuration.WorkingDirectory,
		ErrorDirectory:       configuration.ErrorDirectory,
		ArchiveDirectory:     configuration.ArchiveDirectory,
		QuarantineDirectory:  configuration.QuarantineDirectory,
		Recipients:           append([]string{}, configuration.Recipients...),
		ModifiedDisposition:  quarantine.Disposition(configuration.Quarantine.Modified),
		UntrackedDisposition: quarantine.Disposition(configuration.Quarantine.Untracked),
	}
}

// SMTPSettings converts the smtp subsection into mailer settings.
func (configuration Configuration) SMTPSettings() notify.SMTPSettings {
	return notify.SMTPSettings{
		Host:     configuration.SMTP.Host,
		Port:     configuration.SMTP.Port,
		Username: configuration.SMTP.Username,
		Password: configuration.SMTP.Password,
		From:     configuration.SMTP.From,
	}
}

// RetryPolicy converts the retry subsection into a merge retry policy.
func (configuration Configuration) RetryPolicy() merge.RetryPolicy {
	policy := merge.DefaultRetryPolicy()
	policy.MaximumAttempts = configuration.Retry.Attempts
	policy.Delay = configuration.Retry.Delay
	return policy
}

func sanitizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if len(trimmed) == 0 {
		return ""
	}
	return configurationHomeDirectoryExpander.Expand(trimmed)
}
