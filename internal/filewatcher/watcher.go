package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Configuration is the watch setup. It is copied into the Watcher and never
// changed afterwards.
type Configuration struct {
	SourceDirectories    []string
	DestinationDirectory string
	ExtensionFilters     []string      // ".mp4", ".mkv" or Wildcard
	RetryInterval        time.Duration // pause between lock probes

	MaxLockWait         time.Duration // 0 waits for a locked file forever
	StabilityWindow     time.Duration // 0 is DefaultStabilityWindow, NoStabilityWindow disables
	MaxConcurrentCopies int           // 0 is unbounded
	IgnorePatterns      []string      // globs on the base name, e.g. "*.part"
}

// NoStabilityWindow turns the size/mtime check off.
const NoStabilityWindow time.Duration = -1

func (c Configuration) stabilityWindow() time.Duration {
	switch {
	case c.StabilityWindow == 0:
		return DefaultStabilityWindow
	case c.StabilityWindow < 0:
		return 0
	default:
		return c.StabilityWindow
	}
}

func (c Configuration) clone() Configuration {
	c.SourceDirectories = slices.Clone(c.SourceDirectories)
	c.ExtensionFilters = slices.Clone(c.ExtensionFilters)
	c.IgnorePatterns = slices.Clone(c.IgnorePatterns)
	return c
}

// Option customises a Watcher at construction.
type Option func(*Watcher)

// WithLockProber replaces the default ExclusiveProber.
func WithLockProber(p LockProber) Option {
	return func(w *Watcher) {
		w.prober = p
	}
}

// watchHandle binds one fsnotify watcher to one configured source directory
// and all directories below it.
type watchHandle struct {
	root    string
	watcher *fsnotify.Watcher
}

// Watcher receives creation events for every source directory and hands each
// qualifying file to its own copy goroutine.
type Watcher struct {
	cfg    Configuration
	filter *ExtensionFilter
	ignore ignoreList
	prober LockProber
	copier *Copier
	logger zerolog.Logger
	stats  Stats

	// intake serializes event handling across all handles. It covers the
	// stat, the filter and the spawn, never the wait or the copy.
	intake sync.Mutex

	mu      sync.Mutex
	handles []*watchHandle
	started bool
	stopped bool
	cancel  context.CancelFunc

	loops   sync.WaitGroup
	workers sync.WaitGroup
}

// NewWatcher validates cfg and prepares a Watcher. Nothing is watched until
// Start.
func NewWatcher(cfg Configuration, logger zerolog.Logger, opts ...Option) (*Watcher, error) {
	if len(cfg.SourceDirectories) == 0 {
		return nil, ErrNoSourceDirectories
	}
	if cfg.DestinationDirectory == "" {
		return nil, ErrNoDestination
	}
	if cfg.RetryInterval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRetryInterval, cfg.RetryInterval)
	}

	ignore, err := compileIgnorePatterns(cfg.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:    cfg.clone(),
		filter: NewExtensionFilter(cfg.ExtensionFilters),
		ignore: ignore,
		prober: ExclusiveProber{StabilityWindow: cfg.stabilityWindow()},
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.copier = NewCopier(w.cfg, w.prober, logger)

	return w, nil
}

// Start installs one recursive watch per source directory. If any directory
// cannot be watched, the watches already made are closed and the error is
// returned. A Watcher can be started once.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	if err := os.MkdirAll(w.cfg.DestinationDirectory, 0755); err != nil {
		return fmt.Errorf("failed to prepare destination %s: %w", w.cfg.DestinationDirectory, err)
	}

	handles := make([]*watchHandle, 0, len(w.cfg.SourceDirectories))
	for _, dir := range w.cfg.SourceDirectories {
		h, err := w.openHandle(dir)
		if err != nil {
			for _, opened := range handles {
				opened.watcher.Close()
			}
			return err
		}
		handles = append(handles, h)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.handles = handles
	w.cancel = cancel
	w.started = true

	for _, h := range handles {
		w.loops.Add(1)
		go w.handleEvents(runCtx, h)

		w.logger.Info().
			Str("dir", h.root).
			Int("watches", len(h.watcher.WatchList())).
			Msg("Started watching directory")
	}

	w.logger.Info().
		Str("destination", w.cfg.DestinationDirectory).
		Strs("extensions", w.cfg.ExtensionFilters).
		Dur("retryInterval", w.cfg.RetryInterval).
		Dur("maxLockWait", w.cfg.MaxLockWait).
		Dur("stabilityWindow", w.cfg.stabilityWindow()).
		Int("maxConcurrentCopies", w.cfg.MaxConcurrentCopies).
		Msg("File watcher started")

	return nil
}

func (w *Watcher) openHandle(dir string) (*watchHandle, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotExist, dir)
		}
		return nil, fmt.Errorf("failed to access source directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotDirectory, dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	h := &watchHandle{root: dir, watcher: watcher}
	if err := w.addTree(h, dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return h, nil
}

// addTree watches dir and every directory below it. Only a failure on dir
// itself is returned; unreadable subdirectories are logged and skipped.
func (w *Watcher) addTree(h *watchHandle, dir string) error {
	if err := h.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Cannot access path, skipping")
			return nil
		}
		if !d.IsDir() || path == dir {
			return nil
		}
		if err := h.watcher.Add(path); err != nil {
			w.logger.Warn().
				Err(err).
				Str("path", path).
				Msg("Failed to add subdirectory to watcher")
		} else {
			w.logger.Debug().Str("path", path).Msg("Added subdirectory to watcher")
		}
		return nil
	})
}

func (w *Watcher) handleEvents(ctx context.Context, h *watchHandle) {
	defer w.loops.Done()

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			w.stats.eventsSeen.Add(1)

			// Rename-into-place arrives as Create as well.
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.handleCreate(ctx, h, event.Name)

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn().Err(err).Str("dir", h.root).Msg("Event queue overflowed, some creations were missed")
				continue
			}
			w.logger.Error().Err(err).Str("dir", h.root).Msg("Watcher error")

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleCreate(ctx context.Context, h *watchHandle, path string) {
	w.intake.Lock()
	defer w.intake.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		w.stats.ignored.Add(1)
		w.logger.Debug().Err(err).Str("file", path).Msg("Created path vanished before intake")
		return
	}

	if info.IsDir() {
		if err := w.addTree(h, path); err != nil {
			w.logger.Warn().Err(err).Str("dir", path).Msg("Failed to watch new directory")
			return
		}
		w.logger.Debug().Str("dir", path).Msg("Watching new directory")
		return
	}

	if w.ignore.matches(path) {
		w.stats.ignored.Add(1)
		w.logger.Debug().Str("file", path).Msg("File matches an ignore pattern")
		return
	}

	if !w.filter.Matches(filepath.Ext(info.Name())) {
		w.stats.ignored.Add(1)
		w.logger.Debug().Str("file", path).Msg("File extension not in filter")
		return
	}

	task := NewCopyTask(path, h.root)
	w.logger.Info().
		Str("task", task.ID.String()).
		Str("file", path).
		Int64("size", info.Size()).
		Msg("📂 Creation accepted for copy")

	w.stats.accepted.Add(1)
	w.stats.inFlight.Add(1)
	w.workers.Add(1)
	go w.runTask(ctx, task)
}

func (w *Watcher) runTask(ctx context.Context, task CopyTask) {
	defer w.workers.Done()
	defer w.stats.inFlight.Add(-1)

	if err := w.copier.Run(ctx, task); err != nil {
		w.stats.failed.Add(1)
		return
	}
	w.stats.copied.Add(1)
}

// Stop closes every watch and waits for the event loops and copy tasks.
// Tasks still waiting for a lock are abandoned; a copy already writing
// finishes.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		w.logger.Debug().Msg("File watcher not running")
		return
	}
	w.stopped = true

	for _, h := range w.handles {
		h.watcher.Close()
	}
	w.cancel()
	w.mu.Unlock()

	w.loops.Wait()
	w.workers.Wait()

	stats := w.stats.Snapshot()
	w.logger.Info().
		Int64("accepted", stats.Accepted).
		Int64("copied", stats.Copied).
		Int64("failed", stats.Failed).
		Int64("ignored", stats.Ignored).
		Msg("File watcher stopped")
}

// Stats returns the current counters.
func (w *Watcher) Stats() StatsSnapshot {
	return w.stats.Snapshot()
}
