package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/your-org/watchcopy/internal/filewatcher"
	"github.com/your-org/watchcopy/internal/logrotation"
	"gopkg.in/ini.v1"
)

var ErrExists = errors.New("settings file already exists")

type templateKey struct {
	name    string
	value   string
	comment string
}

func exampleFolders() (dest, sources string) {
	if runtime.GOOS == "windows" {
		return `D:\Library\Movies`, `C:\Users\Public\Downloads, E:\Incoming`
	}
	return "/srv/library/movies", "/srv/incoming, /home/shared/downloads"
}

func templateKeys() []templateKey {
	dest, sources := exampleFolders()
	return []templateKey{
		{"DestinationFolder", dest, "Absolute path every matching file is copied into (flat)."},
		{"SourceFolders", sources, "Comma separated absolute paths, watched recursively."},
		{"ExtensionFilters", ".mp4, .mkv, .avi", "Comma separated extensions, case insensitive. .* or * copies everything."},
		{"ThreadSleepTime", "1000", "Milliseconds between checks of a file that is still in use."},
		{"MaxLockWait", "0", "Give up on a file still in use after this many milliseconds. 0 waits forever."},
		{"StabilityWindow", strconv.FormatInt(filewatcher.DefaultStabilityWindow.Milliseconds(), 10), "Also wait until size and modification time hold still for this many milliseconds. 0 turns the check off."},
		{"MaxConcurrentCopies", "0", "Upper bound on copies running at once. 0 is unbounded."},
		{"IgnorePatterns", "*.part, *.crdownload, *.tmp", "Comma separated globs on the file name that are never copied."},
		{"LogSink", "file", "file, console, event (syslog / Windows event log) or all."},
		{"LogFilePath", "", "Defaults to " + DefaultLogFileName + " in the data directory. A timestamp is added at startup."},
		{"LogLevel", "info", "trace, debug, info, warn or error."},
		{"LogMaxSizeMB", strconv.Itoa(logrotation.DefaultMaxSizeMB), ""},
		{"LogMaxAgeDays", strconv.Itoa(logrotation.DefaultMaxAgeDays), ""},
		{"LogMaxBackups", strconv.Itoa(logrotation.DefaultMaxBackups), ""},
		{"LogCompress", "true", ""},
		{"ServiceName", DefaultServiceName, "Service name and event log source."},
	}
}

// WriteTemplate writes a commented settings file to path. An existing file is
// only replaced when force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}

	cfg := ini.Empty()
	section, err := cfg.NewSection(Section)
	if err != nil {
		return err
	}
	section.Comment = "watchcopy settings. Every key can be overridden with WATCHCOPY_<KEY_IN_UPPER_SNAKE_CASE>."

	for _, k := range templateKeys() {
		key, err := section.NewKey(k.name, k.value)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", k.name, err)
		}
		key.Comment = k.comment
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return cfg.SaveTo(path)
}
