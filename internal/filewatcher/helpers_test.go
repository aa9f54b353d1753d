package filewatcher

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// logBuffer is a goroutine-safe sink for asserting on log output.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (zerolog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return zerolog.New(buf).Level(zerolog.DebugLevel), buf
}

// dropFile writes content in a staging directory and renames it into dir,
// so the watcher only ever sees the finished file.
func dropFile(t *testing.T, staging, dir, name string, content []byte) string {
	t.Helper()
	tmp := filepath.Join(staging, name)
	require.NoError(t, os.WriteFile(tmp, content, 0644))
	dst := filepath.Join(dir, name)
	require.NoError(t, os.Rename(tmp, dst))
	return dst
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func testConfig(src, dest string, filters ...string) Configuration {
	if len(filters) == 0 {
		filters = []string{Wildcard}
	}
	return Configuration{
		SourceDirectories:    []string{src},
		DestinationDirectory: dest,
		ExtensionFilters:     filters,
		RetryInterval:        10 * time.Millisecond,
	}
}

func never(string) bool { return false }
