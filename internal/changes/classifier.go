package changes

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/gitrepo"
)

const (
	loggerNotConfiguredMessageConstant  = "change classifier logger not configured"
	trackedChangesErrorTemplateConstant = "unable to read tracked changes: %w"
	untrackedFilesErrorTemplateConstant = "unable to list untracked files: %w"
	classificationCompleteMessage       = "Classified pending changes"
	logFieldModifiedCountConstant       = "modified"
	logFieldRemovedCountConstant        = "removed"
	logFieldUntrackedCountConstant      = "untracked"
)

// ErrLoggerNotConfigured indicates a nil logger was supplied.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// StatusReader exposes the two independent queries classification relies on.
type StatusReader interface {
	TrackedChanges(executionContext context.Context) ([]gitrepo.PathStatus, error)
	UntrackedFiles(executionContext context.Context) ([]string, error)
}

// ChangeSet lists pending paths. A path appears in at most one sequence.
type ChangeSet struct {
	Modified  []string
	Removed   []string
	Untracked []string
}

// IsEmpty reports whether nothing is pending.
func (changeSet ChangeSet) IsEmpty() bool {
	return len(changeSet.Modified) == 0 && len(changeSet.Removed) == 0 && len(changeSet.Untracked) == 0
}

// Tracked returns modified followed by removed paths.
func (changeSet ChangeSet) Tracked() []string {
	tracked := make([]string, 0, len(changeSet.Modified)+len(changeSet.Removed))
	tracked = append(tracked, changeSet.Modified...)
	return append(tracked, changeSet.Removed...)
}

// Classifier builds ChangeSets.
type Classifier struct {
	logger *zap.Logger
}

// NewClassifier constructs a Classifier.
func NewClassifier(logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Classifier{logger: logger}, nil
}

// Classify reads the tree state. Deleted tracked paths become Removed; other tracked changes become
// Modified; paths that HEAD does not know, whether merely staged or not tracked at all, become
// Untracked.
func (classifier *Classifier) Classify(executionContext context.Context, reader StatusReader) (ChangeSet, error) {
	trackedChanges, trackedError := reader.TrackedChanges(executionContext)
	if trackedError != nil {
		return ChangeSet{}, fmt.Errorf(trackedChangesErrorTemplateConstant, trackedError)
	}
	untrackedFiles, untrackedError := reader.UntrackedFiles(executionContext)
	if untrackedError != nil {
		return ChangeSet{}, fmt.Errorf(untrackedFilesErrorTemplateConstant, untrackedError)
	}

	changeSet := ChangeSet{Modified: []string{}, Removed: []string{}, Untracked: []string{}}
	seenPaths := make(map[string]struct{}, len(trackedChanges)+len(untrackedFiles))
	record := func(bucket *[]string, path string) {
		if _, seen := seenPaths[path]; seen {
			return
		}
		seenPaths[path] = struct{}{}
		*bucket = append(*bucket, path)
	}

	for _, change := range trackedChanges {
		switch change.Kind {
		case gitrepo.PathStatusDeleted:
			record(&changeSet.Removed, change.Path)
		case gitrepo.PathStatusAdded:
			record(&changeSet.Untracked, change.Path)
		default:
			record(&changeSet.Modified, change.Path)
		}
	}
	for _, path := range untrackedFiles {
		record(&changeSet.Untracked, path)
	}

	classifier.logger.Debug(
		classificationCompleteMessage,
		zap.Int(logFieldModifiedCountConstant, len(changeSet.Modified)),
		zap.Int(logFieldRemovedCountConstant, len(changeSet.Removed)),
		zap.Int(logFieldUntrackedCountConstant, len(changeSet.Untracked)),
	)
	return changeSet, nil
}
