package changes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/foldmerge/internal/changes"
	"github.com/temirov/foldmerge/internal/gitrepo"
)

type stubStatusReader struct {
	tracked        []gitrepo.PathStatus
	untracked      []string
	trackedError   error
	untrackedError error
}

func (reader stubStatusReader) TrackedChanges(context.Context) ([]gitrepo.PathStatus, error) {
	return reader.tracked, reader.trackedError
}

func (reader stubStatusReader) UntrackedFiles(context.Context) ([]string, error) {
	return reader.untracked, reader.untrackedError
}

func TestClassifierBuildsDisjointBuckets(testInstance *testing.T) {
	testCases := []struct {
		name     string
		reader   stubStatusReader
		expected changes.ChangeSet
	}{
		{
			name:     "clean_tree",
			reader:   stubStatusReader{},
			expected: changes.ChangeSet{Modified: []string{}, Removed: []string{}, Untracked: []string{}},
		},
		{
			name: "mixed_changes",
			reader: stubStatusReader{
				tracked: []gitrepo.PathStatus{
					{Path: "src/a.c", Kind: gitrepo.PathStatusModified},
					{Path: "docs/old.md", Kind: gitrepo.PathStatusDeleted},
					{Path: "staged.txt", Kind: gitrepo.PathStatusAdded},
					{Path: "src/b.c", Kind: gitrepo.PathStatusModified},
				},
				untracked: []string{"notes.txt", "staged.txt"},
			},
			expected: changes.ChangeSet{
				Modified:  []string{"src/a.c", "src/b.c"},
				Removed:   []string{"docs/old.md"},
				Untracked: []string{"staged.txt", "notes.txt"},
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			classifier, creationError := changes.NewClassifier(zap.NewNop())
			require.NoError(testInstance, creationError)

			changeSet, classifyError := classifier.Classify(context.Background(), testCase.reader)
			require.NoError(testInstance, classifyError)
			if difference := cmp.Diff(testCase.expected, changeSet); len(difference) > 0 {
				testInstance.Fatalf("unexpected change set (-want +got):\n%s", difference)
			}
		})
	}
}

func TestClassifierPropagatesReadFailures(testInstance *testing.T) {
	classifier, creationError := changes.NewClassifier(zap.NewNop())
	require.NoError(testInstance, creationError)

	readFailure := errors.New("index locked")
	_, classifyError := classifier.Classify(context.Background(), stubStatusReader{trackedError: readFailure})
	require.ErrorIs(testInstance, classifyError, readFailure)

	_, classifyError = classifier.Classify(context.Background(), stubStatusReader{untrackedError: readFailure})
	require.ErrorIs(testInstance, classifyError, readFailure)
}

func TestChangeSetHelpers(testInstance *testing.T) {
	require.True(testInstance, changes.ChangeSet{}.IsEmpty())

	changeSet := changes.ChangeSet{Modified: []string{"a"}, Removed: []string{"b"}, Untracked: []string{"c"}}
	require.False(testInstance, changeSet.IsEmpty())
	require.Equal(testInstance, []string{"a", "b"}, changeSet.Tracked())
}

func TestNewClassifierRequiresLogger(testInstance *testing.T) {
	_, creationError := changes.NewClassifier(nil)
	require.ErrorIs(testInstance, creationError, changes.ErrLoggerNotConfigured)
}
