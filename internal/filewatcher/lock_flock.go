//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package filewatcher

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultStabilityWindow is the size/mtime sampling window used when none is
// configured. Most writers here never take a flock, so the open probe alone
// cannot tell a finished file from one still being written.
const DefaultStabilityWindow = 500 * time.Millisecond

// probeExclusive takes a non-blocking exclusive flock. Another holder of the
// lock, in this process or any other, makes it fail with EWOULDBLOCK.
func probeExclusive(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errors.Is(err, unix.EWOULDBLOCK)
	}
	_ = unix.Flock(fd, unix.LOCK_UN)
	return false
}
