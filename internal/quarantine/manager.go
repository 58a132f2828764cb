package quarantine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/changes"
)

const (
	timestampLayoutConstant            = "20060102T150405Z"
	parentDirectoryComponentConstant   = ".."
	fileSystemMissingMessageConstant   = "quarantine filesystem not configured"
	loggerMissingMessageConstant       = "quarantine logger not configured"
	directoryMissingMessageConstant    = "quarantine directory must be provided"
	invalidDispositionTemplateConstant = "disposition %q is not valid for bucket %q: %w"
	unknownBucketTemplateConstant      = "unknown quarantine bucket %q: %w"
	unsafePathTemplateConstant         = "path %q escapes the working tree: %w"
	inspectErrorTemplateConstant       = "unable to inspect %s: %w"
	copyErrorTemplateConstant          = "unable to archive %s: %w"
	stripErrorTemplateConstant         = "unable to strip %s bucket: %w"
	quarantineCompletedMessageConstant = "Quarantined pending changes"
	quarantineSkippedMessageConstant   = "Left pending changes in place"
	logFieldRepositoryConstant         = "repository"
	logFieldBucketConstant             = "bucket"
	logFieldDispositionConstant        = "disposition"
	logFieldDestinationConstant        = "destination"
	logFieldPathsConstant              = "paths"
	dispositionInvalidMessageConstant  = "invalid disposition"
	quarantineFailedMessageConstant    = "quarantine failed"
	unsafePathMessageConstant          = "unsafe path"
	unknownBucketMessageConstant       = "unknown bucket"
)

var (
	// ErrFileSystemNotConfigured indicates the manager has no filesystem collaborator.
	ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the manager has no logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrDirectoryRequired indicates the manager has no quarantine directory.
	ErrDirectoryRequired = errors.New(directoryMissingMessageConstant)
	// ErrInvalidDisposition indicates a disposition that does not apply to the bucket.
	ErrInvalidDisposition = errors.New(dispositionInvalidMessageConstant)
	// ErrUnknownBucket indicates an unrecognized bucket.
	ErrUnknownBucket = errors.New(unknownBucketMessageConstant)
	// ErrQuarantineFailed marks failures while archiving or stripping paths.
	ErrQuarantineFailed = errors.New(quarantineFailedMessageConstant)
	// ErrUnsafePath indicates a path pointing outside the working tree.
	ErrUnsafePath = errors.New(unsafePathMessageConstant)
)

// Bucket groups ChangeSet paths handled under one disposition.
type Bucket string

// Supported buckets.
const (
	// BucketModified covers modified and removed tracked paths.
	BucketModified Bucket = "modified"
	// BucketAdded covers untracked paths.
	BucketAdded Bucket = "added"
)

// Disposition selects what happens to a bucket.
type Disposition string

// Supported dispositions.
const (
	DispositionRevert Disposition = "revert"
	DispositionRemove Disposition = "remove"
	DispositionIgnore Disposition = "ignore"
)

var allowedDispositions = map[Bucket][]Disposition{
	BucketModified: {DispositionRevert, DispositionIgnore},
	BucketAdded:    {DispositionRemove, DispositionIgnore},
}

// ParseDisposition validates value for bucket, case-insensitively.
func ParseDisposition(bucket Bucket, value string) (Disposition, error) {
	allowed, bucketKnown := allowedDispositions[bucket]
	if !bucketKnown {
		return "", fmt.Errorf(unknownBucketTemplateConstant, bucket, ErrUnknownBucket)
	}
	candidate := Disposition(strings.ToLower(strings.TrimSpace(value)))
	for _, disposition := range allowed {
		if candidate == disposition {
			return disposition, nil
		}
	}
	return "", fmt.Errorf(invalidDispositionTemplateConstant, value, bucket, ErrInvalidDisposition)
}

// Entry records one quarantined path. Archived is false when the path no longer existed on disk.
type Entry struct {
	Path     string
	Archived bool
}

// Report describes one bucket's quarantine.
type Report struct {
	Bucket      Bucket
	Disposition Disposition
	Destination string
	Entries     []Entry
}

// IsEmpty reports whether nothing was quarantined.
func (report Report) IsEmpty() bool {
	return len(report.Entries) == 0
}

// Paths lists the quarantined paths in order.
func (report Report) Paths() []string {
	paths := make([]string, 0, len(report.Entries))
	for _, entry := range report.Entries {
		paths = append(paths, entry.Path)
	}
	return paths
}

// Repository is the slice of a repository handle the manager needs.
type Repository interface {
	Name() string
	WorkingPath() string
	RestorePaths(executionContext context.Context, paths []string) error
	UnstagePaths(executionContext context.Context, paths []string) error
}

// FileSystem is the filesystem collaborator the manager needs.
type FileSystem interface {
	Exists(path string) (bool, error)
	Copy(source string, destination string) error
	Remove(path string) error
}

// Dependencies configures a Manager.
type Dependencies struct {
	FileSystem FileSystem
	Logger     *zap.Logger
	Directory  string
	Clock      func() time.Time
}

// Manager archives and strips flagged paths.
type Manager struct {
	fileSystem FileSystem
	logger     *zap.Logger
	directory  string
	clock      func() time.Time
}

// NewManager validates dependencies and constructs a Manager.
func NewManager(dependencies Dependencies) (*Manager, error) {
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	directory := strings.TrimSpace(dependencies.Directory)
	if len(directory) == 0 {
		return nil, ErrDirectoryRequired
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{fileSystem: dependencies.FileSystem, logger: dependencies.Logger, directory: directory, clock: clock}, nil
}

// Quarantine archives and strips the paths of bucket. Revert discards local edits to tracked paths
// and remove deletes untracked files; neither can be undone except from the archived copies.
// Ignore, or an empty bucket, returns an empty report and changes nothing.
func (manager *Manager) Quarantine(executionContext context.Context, repository Repository, changeSet changes.ChangeSet, bucket Bucket, disposition Disposition) (Report, error) {
	if _, validationError := ParseDisposition(bucket, string(disposition)); validationError != nil {
		return Report{}, validationError
	}

	report := Report{Bucket: bucket, Disposition: disposition, Entries: []Entry{}}
	paths := bucketPaths(changeSet, bucket)
	if disposition == DispositionIgnore || len(paths) == 0 {
		if len(paths) > 0 {
			manager.logger.Info(
				quarantineSkippedMessageConstant,
				zap.String(logFieldRepositoryConstant, repository.Name()),
				zap.String(logFieldBucketConstant, string(bucket)),
				zap.Strings(logFieldPathsConstant, paths),
			)
		}
		return report, nil
	}

	for _, path := range paths {
		if !isContainedPath(path) {
			return Report{}, fmt.Errorf(unsafePathTemplateConstant, path, ErrUnsafePath)
		}
	}

	report.Destination = filepath.Join(manager.directory, manager.clock().UTC().Format(timestampLayoutConstant), repository.Name())

	for _, path := range paths {
		sourcePath := filepath.Join(repository.WorkingPath(), path)
		exists, inspectError := manager.fileSystem.Exists(sourcePath)
		if inspectError != nil {
			return Report{}, errors.Join(ErrQuarantineFailed, fmt.Errorf(inspectErrorTemplateConstant, path, inspectError))
		}
		if exists {
			if copyError := manager.fileSystem.Copy(sourcePath, filepath.Join(report.Destination, path)); copyError != nil {
				return Report{}, errors.Join(ErrQuarantineFailed, fmt.Errorf(copyErrorTemplateConstant, path, copyError))
			}
		}
		report.Entries = append(report.Entries, Entry{Path: path, Archived: exists})
	}

	if stripError := manager.strip(executionContext, repository, report); stripError != nil {
		return Report{}, errors.Join(ErrQuarantineFailed, fmt.Errorf(stripErrorTemplateConstant, bucket, stripError))
	}

	manager.logger.Info(
		quarantineCompletedMessageConstant,
		zap.String(logFieldRepositoryConstant, repository.Name()),
		zap.String(logFieldBucketConstant, string(bucket)),
		zap.String(logFieldDispositionConstant, string(disposition)),
		zap.String(logFieldDestinationConstant, report.Destination),
		zap.Strings(logFieldPathsConstant, report.Paths()),
	)
	return report, nil
}

func (manager *Manager) strip(executionContext context.Context, repository Repository, report Report) error {
	paths := report.Paths()
	switch report.Disposition {
	case DispositionRevert:
		return repository.RestorePaths(executionContext, paths)
	case DispositionRemove:
		if unstageError := repository.UnstagePaths(executionContext, paths); unstageError != nil {
			return unstageError
		}
		for _, entry := range report.Entries {
			if !entry.Archived {
				continue
			}
			if removeError := manager.fileSystem.Remove(filepath.Join(repository.WorkingPath(), entry.Path)); removeError != nil {
				return removeError
			}
		}
	}
	return nil
}

func bucketPaths(changeSet changes.ChangeSet, bucket Bucket) []string {
	if bucket == BucketModified {
		return changeSet.Tracked()
	}
	return append([]string{}, changeSet.Untracked...)
}

func isContainedPath(path string) bool {
	if len(strings.TrimSpace(path)) == 0 || filepath.IsAbs(path) {
		return false
	}
	cleaned := filepath.Clean(path)
	return cleaned != parentDirectoryComponentConstant && !strings.HasPrefix(cleaned, parentDirectoryComponentConstant+string(filepath.Separator))
}
