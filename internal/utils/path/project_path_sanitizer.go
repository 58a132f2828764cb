package pathutils

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectPathSanitizerConfiguration controls project path sanitization.
type ProjectPathSanitizerConfiguration struct {
	// PruneNestedPaths drops paths located inside another supplied path.
	PruneNestedPaths bool
}

// ProjectPathSanitizer turns command line project arguments into absolute, unique paths.
type ProjectPathSanitizer struct {
	homeExpander  *HomeExpander
	configuration ProjectPathSanitizerConfiguration
}

// NewProjectPathSanitizer constructs a sanitizer with the given expander and configuration.
func NewProjectPathSanitizer(homeExpander *HomeExpander, configuration ProjectPathSanitizerConfiguration) *ProjectPathSanitizer {
	if homeExpander == nil {
		homeExpander = NewHomeExpander()
	}
	return &ProjectPathSanitizer{homeExpander: homeExpander, configuration: configuration}
}

// Sanitize trims, expands, and absolutizes candidates, dropping blanks and duplicates while
// preserving the first occurrence order. It returns nil when nothing remains.
func (sanitizer *ProjectPathSanitizer) Sanitize(candidatePaths []string) []string {
	sanitizedPaths := make([]string, 0, len(candidatePaths))
	seenPaths := make(map[string]struct{}, len(candidatePaths))

	for _, candidatePath := range candidatePaths {
		trimmedCandidate := strings.TrimSpace(candidatePath)
		if len(trimmedCandidate) == 0 {
			continue
		}
		canonicalPath := Canonicalize(sanitizer.homeExpander.Expand(trimmedCandidate))
		if _, seen := seenPaths[canonicalPath]; seen {
			continue
		}
		seenPaths[canonicalPath] = struct{}{}
		sanitizedPaths = append(sanitizedPaths, canonicalPath)
	}

	if sanitizer.configuration.PruneNestedPaths {
		sanitizedPaths = pruneNestedPaths(sanitizedPaths)
	}
	if len(sanitizedPaths) == 0 {
		return nil
	}
	return sanitizedPaths
}

// Canonicalize returns the cleaned absolute form of path, or the cleaned path when it cannot be
// made absolute.
func Canonicalize(path string) string {
	cleanedPath := filepath.Clean(path)
	absolutePath, absoluteError := filepath.Abs(cleanedPath)
	if absoluteError != nil {
		return cleanedPath
	}
	return absolutePath
}

// IsNestedPath reports whether candidate equals parent or lies beneath it.
func IsNestedPath(parent string, candidate string) bool {
	parentClean := filepath.Clean(parent)
	candidateClean := filepath.Clean(candidate)
	if candidateClean == parentClean {
		return true
	}
	if !strings.HasPrefix(candidateClean, parentClean) || len(candidateClean) <= len(parentClean) {
		return false
	}
	if parentClean[len(parentClean)-1] == os.PathSeparator {
		return true
	}
	return candidateClean[len(parentClean)] == os.PathSeparator
}

func pruneNestedPaths(paths []string) []string {
	pruned := make([]string, 0, len(paths))
	for candidateIndex, candidate := range paths {
		nested := false
		for otherIndex, other := range paths {
			if otherIndex != candidateIndex && IsNestedPath(other, candidate) {
				nested = true
				break
			}
		}
		if !nested {
			pruned = append(pruned, candidate)
		}
	}
	return pruned
}
