package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// CopyTask is one "copy Source into the destination" unit of work.
type CopyTask struct {
	ID       uuid.UUID
	Source   string
	Root     string // watched source directory the event came from
	Detected time.Time
}

// NewCopyTask stamps a task for a freshly created file.
func NewCopyTask(source, root string) CopyTask {
	return CopyTask{
		ID:       uuid.New(),
		Source:   source,
		Root:     root,
		Detected: time.Now(),
	}
}

// Copier waits for a file to be released and copies it, flat, into the
// destination directory. It holds no state shared between tasks beyond the
// optional copy slots, so Run is safe to call from many goroutines.
type Copier struct {
	destination   string
	retryInterval time.Duration
	maxLockWait   time.Duration
	prober        LockProber
	slots         *semaphore.Weighted
	logger        zerolog.Logger
}

// NewCopier builds a Copier from the watch configuration.
func NewCopier(cfg Configuration, prober LockProber, logger zerolog.Logger) *Copier {
	c := &Copier{
		destination:   cfg.DestinationDirectory,
		retryInterval: cfg.RetryInterval,
		maxLockWait:   cfg.MaxLockWait,
		prober:        prober,
		logger:        logger.With().Str("component", "copier").Logger(),
	}
	if cfg.MaxConcurrentCopies > 0 {
		c.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentCopies))
	}
	return c
}

// Destination returns where task would be copied to.
func (c *Copier) Destination(task CopyTask) string {
	return filepath.Join(c.destination, filepath.Base(task.Source))
}

// Run handles a single task to its terminal outcome. Every failure is logged
// here; the returned *CopyError is informational for the caller.
func (c *Copier) Run(ctx context.Context, task CopyTask) error {
	dest := c.Destination(task)
	logger := c.logger.With().
		Str("task", task.ID.String()).
		Str("file", task.Source).
		Logger()

	fail := func(err error) error {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn().Err(err).Msg("Copy abandoned before it started")
		} else {
			logger.Error().Err(err).Str("dest", dest).Msg("❌ Copy failed")
		}
		return &CopyError{TaskID: task.ID, Source: task.Source, Destination: dest, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if err := c.waitUntilFree(ctx, task.Source, logger); err != nil {
		return fail(err)
	}

	if c.slots != nil {
		if err := c.slots.Acquire(ctx, 1); err != nil {
			return fail(err)
		}
		defer c.slots.Release(1)
	}

	logger.Info().Str("dest", dest).Msg("Copy started")
	start := time.Now()

	written, err := copyExclusive(task.Source, dest)
	if err != nil {
		return fail(err)
	}

	logger.Info().
		Str("dest", dest).
		Int64("bytes", written).
		Dur("elapsed", time.Since(start)).
		Dur("sinceDetected", time.Since(task.Detected)).
		Msg("✅ Copy completed")
	return nil
}

// waitUntilFree polls the prober every retry interval. Without a maximum wait
// it never gives up on its own; only ctx ends it.
func (c *Copier) waitUntilFree(ctx context.Context, path string, logger zerolog.Logger) error {
	start := time.Now()
	for attempt := 1; c.prober.IsLocked(ctx, path); attempt++ {
		if c.maxLockWait > 0 && time.Since(start) >= c.maxLockWait {
			return fmt.Errorf("%w (%s, %d probes)", ErrLockTimeout, c.maxLockWait, attempt)
		}

		logger.Debug().
			Int("attempt", attempt).
			Dur("retryIn", c.retryInterval).
			Msg("🔒 File is locked, waiting to retry")

		select {
		case <-time.After(c.retryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// copyExclusive copies src to dst, refusing to touch an existing dst. A dst
// created here is removed again if anything after its creation fails.
func copyExclusive(src, dst string) (written int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrNotRegularFile, src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %w", ErrDestinationExists, err)
		}
		return 0, err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	if written, err = io.Copy(out, in); err != nil {
		return written, err
	}
	if err = out.Sync(); err != nil {
		return written, err
	}
	err = out.Close()
	return written, err
}
