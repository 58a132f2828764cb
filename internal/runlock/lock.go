package runlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
)

const (
	lockFileSuffixConstant            = ".lock"
	lockDirectoryPermissionsConstant  = 0o755
	lockFilePermissionsConstant       = 0o644
	lockContentTemplateConstant       = "pid=%d\nacquired=%s\n"
	lockDirectoryRequiredMessage      = "lock directory must be provided"
	lockNameRequiredMessage           = "lock name must be provided"
	runInProgressMessageConstant      = "run already in progress"
	lockHeldTemplateConstant          = "%s (lock file %s): %w"
	lockDirectoryErrorTemplateConst   = "unable to prepare lock directory %s: %w"
	lockCreateErrorTemplateConstant   = "unable to create lock file %s: %w"
	lockReleaseErrorTemplateConstant  = "unable to release lock file %s: %w"
	invalidLockNameCharactersConstant = `/\`
)

var (
	// ErrRunInProgress indicates another run holds the lock for the same name.
	ErrRunInProgress = errors.New(runInProgressMessageConstant)
	// ErrLockDirectoryRequired indicates the locker was created without a directory.
	ErrLockDirectoryRequired = errors.New(lockDirectoryRequiredMessage)
	// ErrLockNameRequired indicates an empty or path-like lock name.
	ErrLockNameRequired = errors.New(lockNameRequiredMessage)
)

// Locker hands out named locks backed by files in one directory.
type Locker struct {
	directory string
	clock     func() time.Time
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	path string
}

// NewLocker constructs a Locker storing lock files in directory.
func NewLocker(directory string) (*Locker, error) {
	trimmedDirectory := strings.TrimSpace(directory)
	if len(trimmedDirectory) == 0 {
		return nil, ErrLockDirectoryRequired
	}
	return &Locker{directory: trimmedDirectory, clock: time.Now}, nil
}

// Acquire creates the lock file for name with O_EXCL. A held lock yields ErrRunInProgress.
func (locker *Locker) Acquire(name string) (*Lock, error) {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 || strings.ContainsAny(trimmedName, invalidLockNameCharactersConstant) {
		return nil, ErrLockNameRequired
	}
	if mkdirError := os.MkdirAll(locker.directory, lockDirectoryPermissionsConstant); mkdirError != nil {
		return nil, fmt.Errorf(lockDirectoryErrorTemplateConst, locker.directory, mkdirError)
	}

	lockPath := filepath.Join(locker.directory, trimmedName+lockFileSuffixConstant)
	lockFile, openError := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFilePermissionsConstant)
	if openError != nil {
		if errors.Is(openError, fs.ErrExist) {
			return nil, fmt.Errorf(lockHeldTemplateConstant, trimmedName, lockPath, ErrRunInProgress)
		}
		return nil, fmt.Errorf(lockCreateErrorTemplateConstant, lockPath, openError)
	}

	_, writeError := fmt.Fprintf(lockFile, lockContentTemplateConstant, os.Getpid(), locker.clock().UTC().Format(time.RFC3339))
	closeError := lockFile.Close()
	if combinedError := multierr.Combine(writeError, closeError); combinedError != nil {
		return nil, multierr.Append(fmt.Errorf(lockCreateErrorTemplateConstant, lockPath, combinedError), os.Remove(lockPath))
	}
	return &Lock{path: lockPath}, nil
}

// Release removes the lock file.
func (lock *Lock) Release() error {
	if removeError := os.Remove(lock.path); removeError != nil && !errors.Is(removeError, fs.ErrNotExist) {
		return fmt.Errorf(lockReleaseErrorTemplateConstant, lock.path, removeError)
	}
	return nil
}

// WithLock runs body while holding the lock for name and releases it on every exit path, panics
// included. A release failure is combined with body's error.
func WithLock(locker *Locker, name string, body func() error) (resultError error) {
	lock, acquireError := locker.Acquire(name)
	if acquireError != nil {
		return acquireError
	}
	defer func() {
		resultError = multierr.Append(resultError, lock.Release())
	}()
	return body()
}
