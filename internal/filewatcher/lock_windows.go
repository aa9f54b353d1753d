//go:build windows

package filewatcher

import (
	"errors"
	"time"

	"golang.org/x/sys/windows"
)

// DefaultStabilityWindow is zero: a writer's open handle already fails the
// share mode 0 open.
const DefaultStabilityWindow time.Duration = 0

// probeExclusive opens the file for read/write with share mode 0, the same
// request a writer-held handle refuses with a sharing violation.
func probeExclusive(path string) bool {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	h, err := windows.CreateFile(name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0)
	if err != nil {
		return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
			errors.Is(err, windows.ERROR_LOCK_VIOLATION)
	}
	_ = windows.CloseHandle(h)
	return false
}
