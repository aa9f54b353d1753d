package filewatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settleTimeout = 10 * time.Second

// startWatcher runs a Watcher for the duration of the test.
func startWatcher(t *testing.T, cfg Configuration, logger zerolog.Logger, opts ...Option) *Watcher {
	t.Helper()
	w, err := NewWatcher(cfg, logger, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func waitSettled(t *testing.T, w *Watcher, accepted int64) StatsSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		s := w.Stats()
		return s.Accepted >= accepted && s.Settled()
	}, settleTimeout, 10*time.Millisecond, "watcher never settled: %+v", w.Stats())
	return w.Stats()
}

func TestNewWatcher_Validation(t *testing.T) {
	valid := testConfig("/src", "/dest")

	tests := []struct {
		name   string
		mutate func(*Configuration)
		want   error
	}{
		{name: "no sources", mutate: func(c *Configuration) { c.SourceDirectories = nil }, want: ErrNoSourceDirectories},
		{name: "no destination", mutate: func(c *Configuration) { c.DestinationDirectory = "" }, want: ErrNoDestination},
		{name: "zero interval", mutate: func(c *Configuration) { c.RetryInterval = 0 }, want: ErrInvalidRetryInterval},
		{name: "bad ignore pattern", mutate: func(c *Configuration) { c.IgnorePatterns = []string{"[x"} }, want: ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid.clone()
			tt.mutate(&cfg)
			w, err := NewWatcher(cfg, zerolog.Nop())
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, w)
		})
	}
}

func TestNewWatcher_CopiesConfiguration(t *testing.T) {
	cfg := testConfig("/src", "/dest", ".mp4")
	w, err := NewWatcher(cfg, zerolog.Nop())
	require.NoError(t, err)

	cfg.ExtensionFilters[0] = ".avi"
	cfg.SourceDirectories[0] = "/elsewhere"

	assert.Equal(t, []string{".mp4"}, w.cfg.ExtensionFilters)
	assert.Equal(t, []string{"/src"}, w.cfg.SourceDirectories)
}

func TestWatcher_Start_MissingSourceAbortsStartup(t *testing.T) {
	good, dest := t.TempDir(), t.TempDir()
	missing := filepath.Join(t.TempDir(), "not-there")

	cfg := testConfig(good, dest)
	cfg.SourceDirectories = []string{good, missing}

	w, err := NewWatcher(cfg, zerolog.Nop())
	require.NoError(t, err)

	err = w.Start(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotExist)
	assert.Empty(t, w.handles, "no partial start")
	assert.False(t, w.started)

	w.Stop() // harmless on a watcher that never started
}

func TestWatcher_Start_SourceIsAFile(t *testing.T) {
	dir, dest := t.TempDir(), t.TempDir()
	file := writeFile(t, dir, "not-a-dir.txt", []byte("x"))

	w, err := NewWatcher(testConfig(file, dest), zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, w.Start(context.Background()), ErrSourceNotDirectory)
}

func TestWatcher_Start_Twice(t *testing.T) {
	w := startWatcher(t, testConfig(t.TempDir(), t.TempDir()), zerolog.Nop())
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}

func TestWatcher_Start_CreatesDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "library", "movies")
	startWatcher(t, testConfig(t.TempDir(), dest), zerolog.Nop())
	assert.DirExists(t, dest)
}

func TestWatcher_Start_WatchesExistingSubdirectories(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "a", "b"), 0755))

	w := startWatcher(t, testConfig(src, t.TempDir()), zerolog.Nop())

	require.Len(t, w.handles, 1)
	list := w.handles[0].watcher.WatchList()
	assert.Contains(t, list, src)
	assert.Contains(t, list, filepath.Join(src, "a"))
	assert.Contains(t, list, filepath.Join(src, "a", "b"))
}

// A filtered-out extension is never copied.
func TestWatcher_UnmatchedExtensionNotCopied(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	w := startWatcher(t, testConfig(src, dest, ".mp4", ".mkv"), zerolog.Nop(), WithLockProber(ProbeFunc(never)))

	dropFile(t, staging, src, "movie.avi", []byte("avi"))
	// A matching file afterwards tells us the avi event was already handled.
	dropFile(t, staging, src, "marker.mkv", []byte("mkv"))

	stats := waitSettled(t, w, 1)
	assert.Equal(t, int64(1), stats.Copied)
	assert.GreaterOrEqual(t, stats.Ignored, int64(1))
	assert.NoFileExists(t, filepath.Join(dest, "movie.avi"))
	assert.FileExists(t, filepath.Join(dest, "marker.mkv"))
}

// The wildcard copies anything with identical bytes.
func TestWatcher_WildcardCopiesIdenticalBytes(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	w := startWatcher(t, testConfig(src, dest, Wildcard), zerolog.Nop())

	content := []byte("remember the milk\n")
	dropFile(t, staging, src, "notes.txt", content)

	waitSettled(t, w, 1)
	got, err := os.ReadFile(filepath.Join(dest, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

// A locked file is copied only after it is released.
func TestWatcher_LockedFileCopiedAfterRelease(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	destPath := filepath.Join(dest, "locked.mp4")

	probes := make(chan struct{}, 100)
	locked := make(chan struct{})
	prober := ProbeFunc(func(string) bool {
		probes <- struct{}{}
		select {
		case <-locked:
			return false
		default:
			return true
		}
	})

	cfg := testConfig(src, dest, ".mp4")
	w := startWatcher(t, cfg, zerolog.Nop(), WithLockProber(prober))

	dropFile(t, staging, src, "locked.mp4", []byte("payload"))

	for i := 0; i < 3; i++ {
		select {
		case <-probes:
		case <-time.After(settleTimeout):
			t.Fatal("copy worker never probed the file")
		}
	}
	assert.NoFileExists(t, destPath)
	assert.Equal(t, int64(1), w.Stats().InFlight)

	close(locked)

	stats := waitSettled(t, w, 1)
	assert.Equal(t, int64(1), stats.Copied)
	assert.FileExists(t, destPath)
}

// A second file with the same name fails and leaves the first alone.
func TestWatcher_SameNameCollisionLogged(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	original := []byte("already here")
	writeFile(t, dest, "a.mp4", original)

	logger, logs := newTestLogger()
	w := startWatcher(t, testConfig(src, dest, ".mp4"), logger, WithLockProber(ProbeFunc(never)))

	dropFile(t, staging, src, "a.mp4", []byte("newcomer"))

	stats := waitSettled(t, w, 1)
	assert.Equal(t, int64(1), stats.Failed)

	got, err := os.ReadFile(filepath.Join(dest, "a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, original, got)
	assert.Contains(t, logs.String(), ErrDestinationExists.Error())
}

func TestWatcher_SameNameFromTwoSourcesCopiedOnce(t *testing.T) {
	srcA, srcB, dest, staging := t.TempDir(), t.TempDir(), t.TempDir(), t.TempDir()

	cfg := testConfig(srcA, dest, ".mp4")
	cfg.SourceDirectories = []string{srcA, srcB}
	w := startWatcher(t, cfg, zerolog.Nop(), WithLockProber(ProbeFunc(never)))

	first := []byte("from A")
	dropFile(t, staging, srcA, "same.mp4", first)
	waitSettled(t, w, 1)

	dropFile(t, staging, srcB, "same.mp4", []byte("from B, longer payload"))
	stats := waitSettled(t, w, 2)

	assert.Equal(t, int64(1), stats.Copied)
	assert.Equal(t, int64(1), stats.Failed)
	got, err := os.ReadFile(filepath.Join(dest, "same.mp4"))
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestWatcher_ConcurrentDistinctFiles(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	w := startWatcher(t, testConfig(src, dest, ".bin"), zerolog.Nop())

	const n = 100
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("file-%03d.bin", i)
		dropFile(t, staging, src, name, []byte(name+" payload"))
	}

	stats := waitSettled(t, w, n)
	assert.Equal(t, int64(n), stats.Copied)
	assert.Zero(t, stats.Failed)

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("file-%03d.bin", i)
		got, err := os.ReadFile(filepath.Join(dest, name))
		require.NoError(t, err)
		assert.Equal(t, []byte(name+" payload"), got)
	}
}

func TestWatcher_BoundedCopies(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	cfg := testConfig(src, dest, ".bin")
	cfg.MaxConcurrentCopies = 2
	w := startWatcher(t, cfg, zerolog.Nop(), WithLockProber(ProbeFunc(never)))

	const n = 20
	for i := 0; i < n; i++ {
		dropFile(t, staging, src, fmt.Sprintf("f%02d.bin", i), []byte("x"))
	}

	stats := waitSettled(t, w, n)
	assert.Equal(t, int64(n), stats.Copied)
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	w := startWatcher(t, testConfig(src, dest, ".mp4"), zerolog.Nop(), WithLockProber(ProbeFunc(never)))

	sub := filepath.Join(src, "incoming")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.Eventually(t, func() bool {
		return slices.Contains(w.handles[0].watcher.WatchList(), sub)
	}, settleTimeout, 10*time.Millisecond)

	dropFile(t, staging, sub, "deep.mp4", []byte("deep"))

	stats := waitSettled(t, w, 1)
	assert.Equal(t, int64(1), stats.Copied)
	assert.FileExists(t, filepath.Join(dest, "deep.mp4"))
	assert.NoDirExists(t, filepath.Join(dest, "incoming"))
}

func TestWatcher_IgnorePatterns(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	cfg := testConfig(src, dest, Wildcard)
	cfg.IgnorePatterns = []string{"*.part"}
	w := startWatcher(t, cfg, zerolog.Nop(), WithLockProber(ProbeFunc(never)))

	dropFile(t, staging, src, "movie.mp4.part", []byte("partial"))
	dropFile(t, staging, src, "movie.mp4", []byte("whole"))

	stats := waitSettled(t, w, 1)
	assert.Equal(t, int64(1), stats.Copied)
	assert.NoFileExists(t, filepath.Join(dest, "movie.mp4.part"))
	assert.FileExists(t, filepath.Join(dest, "movie.mp4"))
}

func TestWatcher_StopAbandonsWaitingTasks(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	w, err := NewWatcher(testConfig(src, dest), zerolog.Nop(), WithLockProber(ProbeFunc(func(string) bool { return true })))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	dropFile(t, staging, src, "forever.mp4", []byte("x"))
	require.Eventually(t, func() bool { return w.Stats().InFlight == 1 }, settleTimeout, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(settleTimeout):
		t.Fatal("Stop blocked on a task waiting for a lock")
	}

	stats := w.Stats()
	assert.Zero(t, stats.InFlight)
	assert.Equal(t, int64(1), stats.Failed)
	assert.NoFileExists(t, filepath.Join(dest, "forever.mp4"))

	w.Stop() // idempotent
}

func TestWatcher_SlowFileDoesNotBlockIntake(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	slow := filepath.Join(src, "slow.mp4")

	prober := ProbeFunc(func(path string) bool { return path == slow })
	w := startWatcher(t, testConfig(src, dest, ".mp4"), zerolog.Nop(), WithLockProber(prober))

	dropFile(t, staging, src, "slow.mp4", []byte("slow"))
	for i := 0; i < 5; i++ {
		dropFile(t, staging, src, fmt.Sprintf("fast%d.mp4", i), []byte("fast"))
	}

	require.Eventually(t, func() bool {
		s := w.Stats()
		return s.Copied == 5 && s.InFlight == 1
	}, settleTimeout, 10*time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dest, "slow.mp4"))
}

func TestNewWatcher_StabilityWindowDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{name: "unset", in: 0, want: DefaultStabilityWindow},
		{name: "disabled", in: NoStabilityWindow, want: 0},
		{name: "explicit", in: 2 * time.Second, want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("/src", "/dest")
			cfg.StabilityWindow = tt.in
			w, err := NewWatcher(cfg, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, ExclusiveProber{StabilityWindow: tt.want}, w.prober)
		})
	}
}

// A file written in place, chunk by chunk, is copied whole.
func TestWatcher_FileWrittenInPlaceCopiedWhole(t *testing.T) {
	if DefaultStabilityWindow == 0 {
		t.Skip("the writer's open handle is the lock on this platform")
	}
	src, dest := t.TempDir(), t.TempDir()
	w := startWatcher(t, testConfig(src, dest, ".mp4"), zerolog.Nop())

	f, err := os.Create(filepath.Join(src, "movie.mp4"))
	require.NoError(t, err)

	var want []byte
	for i := 0; i < 10; i++ {
		chunk := []byte(fmt.Sprintf("chunk-%03d\n", i))
		_, err := f.Write(chunk)
		require.NoError(t, err)
		want = append(want, chunk...)
		time.Sleep(30 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	stats := waitSettled(t, w, 1)
	require.Equal(t, int64(1), stats.Copied)

	got, err := os.ReadFile(filepath.Join(dest, "movie.mp4"))
	require.NoError(t, err)
	require.Len(t, got, len(want))
	assert.Equal(t, want, got)
}

func TestWatcher_StopInterruptsStabilitySample(t *testing.T) {
	src, dest, staging := t.TempDir(), t.TempDir(), t.TempDir()
	cfg := testConfig(src, dest)
	cfg.StabilityWindow = time.Minute

	w, err := NewWatcher(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	dropFile(t, staging, src, "slow-sample.mp4", []byte("x"))
	require.Eventually(t, func() bool { return w.Stats().InFlight == 1 }, settleTimeout, 10*time.Millisecond)

	start := time.Now()
	w.Stop()

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int64(1), w.Stats().Failed)
	assert.NoFileExists(t, filepath.Join(dest, "slow-sample.mp4"))
}
