package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	hiddenEntryPrefixConstant       = "."
	readIncomingTemplateConstant    = "unable to read incoming directory %s: %w"
	incomingRequiredMessageConstant = "incoming directory must be provided"
)

// ErrIncomingDirectoryRequired indicates discovery was asked to scan an empty path.
var ErrIncomingDirectoryRequired = errors.New(incomingRequiredMessageConstant)

// ProjectDiscoverer finds project directories directly under incoming roots.
type ProjectDiscoverer struct{}

// NewProjectDiscoverer constructs a discoverer backed by os.ReadDir.
func NewProjectDiscoverer() *ProjectDiscoverer {
	return &ProjectDiscoverer{}
}

// DiscoverProjects returns the immediate subdirectories of every root, sorted. Hidden entries and
// plain files are skipped. Projects are not required to be version-controlled; runs route those to
// the error area.
func (discoverer *ProjectDiscoverer) DiscoverProjects(roots []string) ([]string, error) {
	seen := make(map[string]struct{})
	var projects []string

	for _, root := range roots {
		trimmedRoot := strings.TrimSpace(root)
		if len(trimmedRoot) == 0 {
			return nil, ErrIncomingDirectoryRequired
		}

		entries, readError := os.ReadDir(trimmedRoot)
		if readError != nil {
			return nil, fmt.Errorf(readIncomingTemplateConstant, trimmedRoot, readError)
		}

		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), hiddenEntryPrefixConstant) {
				continue
			}
			projectPath := filepath.Join(trimmedRoot, entry.Name())
			if _, alreadySeen := seen[projectPath]; alreadySeen {
				continue
			}
			seen[projectPath] = struct{}{}
			projects = append(projects, projectPath)
		}
	}

	sort.Strings(projects)
	return projects, nil
}
