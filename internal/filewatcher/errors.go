package filewatcher

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNoSourceDirectories  = errors.New("no source directories configured")
	ErrNoDestination        = errors.New("no destination directory configured")
	ErrInvalidRetryInterval = errors.New("retry interval must be positive")
	ErrInvalidPattern       = errors.New("invalid ignore pattern")
	ErrSourceNotExist       = errors.New("source directory does not exist")
	ErrSourceNotDirectory   = errors.New("source path is not a directory")
	ErrAlreadyStarted       = errors.New("watcher already started")

	ErrDestinationExists = errors.New("destination file already exists")
	ErrNotRegularFile    = errors.New("source is not a regular file")
	ErrLockTimeout       = errors.New("file stayed locked past the maximum wait")
)

// CopyError is the terminal failure of a single copy task.
type CopyError struct {
	TaskID      uuid.UUID
	Source      string
	Destination string
	Err         error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s to %s: %v", e.Source, e.Destination, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}
