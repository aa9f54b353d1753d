//go:build !windows && !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package filewatcher

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// DefaultStabilityWindow is the size/mtime sampling window used when none is
// configured.
const DefaultStabilityWindow = 500 * time.Millisecond

// probeExclusive falls back to a read/write open. Only failures other than a
// missing file or a permission problem count as "in use".
func probeExclusive(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission)
	}
	f.Close()
	return false
}
