package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/otiai10/copy"
)

const (
	directoryPermissionsConstant            = 0o755
	fileCreationPermissionsConstant         = 0o644
	writeProbePatternConstant               = ".foldmerge-probe-*"
	destinationExistsTemplateConstant       = "destination %s: %w"
	moveErrorTemplateConstant               = "unable to move %s to %s: %w"
	copyErrorTemplateConstant               = "unable to copy %s to %s: %w"
	ensureDirectoryErrorTemplateConstant    = "unable to prepare directory %s: %w"
	directoryNotWritableTemplateConstant    = "directory %s is not writable: %w"
	ensureFileErrorTemplateConstant         = "unable to prepare file %s: %w"
	notADirectoryTemplateConstant           = "%s exists and is not a directory"
	removeErrorTemplateConstant             = "unable to remove %s: %w"
	crossDeviceCleanupErrorTemplateConstant = "copied %s to %s but could not remove the source: %w"
)

// ErrDestinationExists indicates a move or copy target is already present.
var ErrDestinationExists = errors.New("already exists")

// OSFileSystem implements filesystem operations using the operating system primitives. Moves fall
// back to copy and delete when source and destination are on different devices.
type OSFileSystem struct{}

// NewOSFileSystem constructs an OSFileSystem.
func NewOSFileSystem() OSFileSystem {
	return OSFileSystem{}
}

// Exists reports whether path is present without following a final symlink.
func (OSFileSystem) Exists(path string) (bool, error) {
	_, statError := os.Lstat(path)
	if statError == nil {
		return true, nil
	}
	if errors.Is(statError, fs.ErrNotExist) {
		return false, nil
	}
	return false, statError
}

// Move relocates source to destination, creating destination's parent. An existing destination is
// never overwritten.
func (fileSystem OSFileSystem) Move(source string, destination string) error {
	if exists, _ := fileSystem.Exists(destination); exists {
		return fmt.Errorf(moveErrorTemplateConstant, source, destination, fmt.Errorf(destinationExistsTemplateConstant, destination, ErrDestinationExists))
	}
	if parentError := fileSystem.EnsureDirectory(filepath.Dir(destination)); parentError != nil {
		return fmt.Errorf(moveErrorTemplateConstant, source, destination, parentError)
	}

	renameError := os.Rename(source, destination)
	if renameError == nil {
		return nil
	}
	if !errors.Is(renameError, syscall.EXDEV) {
		return fmt.Errorf(moveErrorTemplateConstant, source, destination, renameError)
	}

	if copyError := copy.Copy(source, destination, copyOptions()); copyError != nil {
		return fmt.Errorf(moveErrorTemplateConstant, source, destination, copyError)
	}
	if removeError := os.RemoveAll(source); removeError != nil {
		return fmt.Errorf(crossDeviceCleanupErrorTemplateConstant, source, destination, removeError)
	}
	return nil
}

// Copy duplicates a file or directory tree at destination, creating destination's parent.
func (fileSystem OSFileSystem) Copy(source string, destination string) error {
	if parentError := fileSystem.EnsureDirectory(filepath.Dir(destination)); parentError != nil {
		return fmt.Errorf(copyErrorTemplateConstant, source, destination, parentError)
	}
	if copyError := copy.Copy(source, destination, copyOptions()); copyError != nil {
		return fmt.Errorf(copyErrorTemplateConstant, source, destination, copyError)
	}
	return nil
}

// Remove deletes path and everything beneath it. A missing path is not an error.
func (OSFileSystem) Remove(path string) error {
	if removeError := os.RemoveAll(path); removeError != nil {
		return fmt.Errorf(removeErrorTemplateConstant, path, removeError)
	}
	return nil
}

// EnsureDirectory creates path when absent.
func (OSFileSystem) EnsureDirectory(path string) error {
	if mkdirError := os.MkdirAll(path, directoryPermissionsConstant); mkdirError != nil {
		return fmt.Errorf(ensureDirectoryErrorTemplateConstant, path, mkdirError)
	}
	return nil
}

// EnsureWritableDirectory creates path when absent and verifies a file can be created inside it.
func (fileSystem OSFileSystem) EnsureWritableDirectory(path string) error {
	if directoryError := fileSystem.EnsureDirectory(path); directoryError != nil {
		return directoryError
	}
	information, statError := os.Stat(path)
	if statError != nil {
		return fmt.Errorf(ensureDirectoryErrorTemplateConstant, path, statError)
	}
	if !information.IsDir() {
		return fmt.Errorf(notADirectoryTemplateConstant, path)
	}
	probeFile, probeError := os.CreateTemp(path, writeProbePatternConstant)
	if probeError != nil {
		return fmt.Errorf(directoryNotWritableTemplateConstant, path, probeError)
	}
	probePath := probeFile.Name()
	_ = probeFile.Close()
	return os.Remove(probePath)
}

// EnsureFile creates path and its parent when absent and verifies it can be opened for appending.
func (fileSystem OSFileSystem) EnsureFile(path string) error {
	if parentError := fileSystem.EnsureDirectory(filepath.Dir(path)); parentError != nil {
		return fmt.Errorf(ensureFileErrorTemplateConstant, path, parentError)
	}
	file, openError := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, fileCreationPermissionsConstant)
	if openError != nil {
		return fmt.Errorf(ensureFileErrorTemplateConstant, path, openError)
	}
	return file.Close()
}

func copyOptions() copy.Options {
	return copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		PreserveTimes: true,
	}
}
