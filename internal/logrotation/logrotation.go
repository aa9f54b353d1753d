package logrotation

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxSizeMB  = 100
	DefaultMaxAgeDays = 30
	DefaultMaxBackups = 5
)

// backupLayout keeps backups of one log apart even when several rotations
// happen within the same second.
const backupLayout = "20060102-150405.000"

// Options controls when a log is rotated and how many backups are kept.
// Zero values fall back to the defaults.
type Options struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// RotatingWriter is an io.WriteCloser over a log file that is renamed aside
// once it grows past the size limit.
type RotatingWriter struct {
	filename   string
	maxSize    int64 // bytes
	maxAge     int   // days
	maxBackups int
	compress   bool

	mu   sync.Mutex
	file *os.File
	size int64

	// maintenance tracks compress and cleanup runs started by rotate.
	maintenance sync.WaitGroup
}

// New opens filename for append, creating it and its directory if needed.
func New(filename string, opts Options) (*RotatingWriter, error) {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = DefaultMaxSizeMB
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = DefaultMaxAgeDays
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}

	rw := &RotatingWriter{
		filename:   filename,
		maxSize:    int64(opts.MaxSizeMB) * 1024 * 1024,
		maxAge:     opts.MaxAgeDays,
		maxBackups: opts.MaxBackups,
		compress:   opts.Compress,
	}

	if err := rw.openExistingOrNew(); err != nil {
		return nil, err
	}
	return rw, nil
}

// Filename is the path of the live log file.
func (rw *RotatingWriter) Filename() string {
	return rw.filename
}

// Write implements io.Writer.
func (rw *RotatingWriter) Write(p []byte) (n int, err error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		if err := rw.openExistingOrNew(); err != nil {
			return 0, err
		}
	}

	// An oversized record on an empty file is written as is.
	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Close closes the log file and waits for pending compression and cleanup.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	err := rw.close()
	rw.mu.Unlock()

	rw.maintenance.Wait()
	return err
}

func (rw *RotatingWriter) openExistingOrNew() error {
	info, err := os.Stat(rw.filename)
	if err != nil {
		return rw.openNew()
	}

	if info.Size() >= rw.maxSize {
		return rw.rotate()
	}

	file, err := os.OpenFile(rw.filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	rw.file = file
	rw.size = info.Size()
	return nil
}

func (rw *RotatingWriter) openNew() error {
	if err := os.MkdirAll(filepath.Dir(rw.filename), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	rw.file = file
	rw.size = 0
	return nil
}

// rotate renames the live file aside and starts a fresh one. Compression and
// pruning of old backups run in the background.
func (rw *RotatingWriter) rotate() error {
	if err := rw.close(); err != nil {
		return err
	}

	backupName := fmt.Sprintf("%s.%s", rw.filename, time.Now().Format(backupLayout))
	if err := os.Rename(rw.filename, backupName); err != nil {
		return err
	}

	rw.maintenance.Add(1)
	go func() {
		defer rw.maintenance.Done()
		if rw.compress {
			rw.compressFile(backupName)
		}
		rw.cleanup()
	}()

	return rw.openNew()
}

func (rw *RotatingWriter) close() error {
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	rw.size = 0
	return err
}

func (rw *RotatingWriter) compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dst.Name())
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	src.Close()
	return os.Remove(filename)
}

// backups lists rotated copies of the log, oldest first.
func (rw *RotatingWriter) backups() ([]os.FileInfo, error) {
	dir := filepath.Dir(rw.filename)
	prefix := filepath.Base(rw.filename) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var backups []os.FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].ModTime().Equal(backups[j].ModTime()) {
			return backups[i].Name() < backups[j].Name()
		}
		return backups[i].ModTime().Before(backups[j].ModTime())
	})
	return backups, nil
}

// cleanup removes backups older than maxAge, then the oldest ones beyond
// maxBackups.
func (rw *RotatingWriter) cleanup() error {
	dir := filepath.Dir(rw.filename)

	backups, err := rw.backups()
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -rw.maxAge)
	kept := backups[:0]
	for _, info := range backups {
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, info.Name()))
			continue
		}
		kept = append(kept, info)
	}

	if excess := len(kept) - rw.maxBackups; excess > 0 {
		for _, info := range kept[:excess] {
			os.Remove(filepath.Join(dir, info.Name()))
		}
	}
	return nil
}
