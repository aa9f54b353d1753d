package filewatcher

import (
	"context"
	"os"
	"time"
)

// LockProber tells whether a file is still held by its writer.
// The answer is a point-in-time observation; nothing is reserved.
// A prober that samples over time returns true once ctx is done.
type LockProber interface {
	IsLocked(ctx context.Context, path string) bool
}

// ProbeFunc adapts a plain function to LockProber.
type ProbeFunc func(path string) bool

func (f ProbeFunc) IsLocked(_ context.Context, path string) bool {
	return f(path)
}

// ExclusiveProber tries to open the file exclusively and releases it at once.
// A missing or unreadable file is reported as unlocked so that the copy step
// surfaces the real error.
//
// Writers that never take a lock (common on Unix) can be caught with
// StabilityWindow: the file also counts as locked while its size or
// modification time changes across the window.
type ExclusiveProber struct {
	StabilityWindow time.Duration
}

func (p ExclusiveProber) IsLocked(ctx context.Context, path string) bool {
	if probeExclusive(path) {
		return true
	}
	if p.StabilityWindow <= 0 {
		return false
	}
	return changedWithin(ctx, path, p.StabilityWindow)
}

func changedWithin(ctx context.Context, path string, window time.Duration) bool {
	before, err := os.Stat(path)
	if err != nil {
		return false
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return true
	}

	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	return before.Size() != after.Size() || !before.ModTime().Equal(after.ModTime())
}
