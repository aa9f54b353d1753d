package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"
	"github.com/your-org/watchcopy/internal/filewatcher"
	"github.com/your-org/watchcopy/internal/logrotation"
	"github.com/your-org/watchcopy/internal/logsink"
	"gopkg.in/ini.v1"
)

// Section is the ini section holding every setting.
const Section = "AppSettings"

const (
	DefaultServiceName = "watchcopy"
	DefaultLogFileName = "watchcopy.log"
	DefaultFileName    = "watchcopy.ini"
)

var (
	ErrMissing = errors.New("required setting is missing")
	ErrInvalid = errors.New("invalid setting")
)

// FieldError reports one bad setting.
type FieldError struct {
	Key    string
	Value  string
	Err    error // ErrMissing or ErrInvalid
	Reason string
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrMissing) {
		if e.Reason != "" {
			return fmt.Sprintf("%s: %v: %s", e.Key, e.Err, e.Reason)
		}
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v %q: %s", e.Key, e.Err, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Settings holds the raw values of the [AppSettings] section after
// environment overrides. Resolve turns them into typed configuration.
type Settings struct {
	DestinationFolder   string `ini:"DestinationFolder" env:"WATCHCOPY_DESTINATION_FOLDER"`
	SourceFolders       string `ini:"SourceFolders" env:"WATCHCOPY_SOURCE_FOLDERS"`
	ExtensionFilters    string `ini:"ExtensionFilters" env:"WATCHCOPY_EXTENSION_FILTERS"`
	ThreadSleepTime     string `ini:"ThreadSleepTime" env:"WATCHCOPY_THREAD_SLEEP_TIME"`
	MaxLockWait         string `ini:"MaxLockWait" env:"WATCHCOPY_MAX_LOCK_WAIT"`
	StabilityWindow     string `ini:"StabilityWindow" env:"WATCHCOPY_STABILITY_WINDOW"`
	MaxConcurrentCopies string `ini:"MaxConcurrentCopies" env:"WATCHCOPY_MAX_CONCURRENT_COPIES"`
	IgnorePatterns      string `ini:"IgnorePatterns" env:"WATCHCOPY_IGNORE_PATTERNS"`

	LogSink       string `ini:"LogSink" env:"WATCHCOPY_LOG_SINK"`
	LogFilePath   string `ini:"LogFilePath" env:"WATCHCOPY_LOG_FILE_PATH"`
	LogLevel      string `ini:"LogLevel" env:"WATCHCOPY_LOG_LEVEL"`
	LogMaxSizeMB  string `ini:"LogMaxSizeMB" env:"WATCHCOPY_LOG_MAX_SIZE_MB"`
	LogMaxAgeDays string `ini:"LogMaxAgeDays" env:"WATCHCOPY_LOG_MAX_AGE_DAYS"`
	LogMaxBackups string `ini:"LogMaxBackups" env:"WATCHCOPY_LOG_MAX_BACKUPS"`
	LogCompress   string `ini:"LogCompress" env:"WATCHCOPY_LOG_COMPRESS"`

	ServiceName string `ini:"ServiceName" env:"WATCHCOPY_SERVICE_NAME"`
}

// Resolved is the typed result of a valid Settings.
type Resolved struct {
	Watch       filewatcher.Configuration
	Logging     logsink.Options
	ServiceName string
}

// Load reads the [AppSettings] section of the ini file at path, then applies
// WATCHCOPY_* environment overrides. A missing file is not an error; the
// environment may carry every required key.
func Load(path string) (*Settings, error) {
	s := &Settings{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			f, err := ini.Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			if err := f.Section(Section).MapTo(s); err != nil {
				return nil, fmt.Errorf("failed to read [%s] from %s: %w", Section, path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to access %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return s, nil
}

// Resolve parses and validates every setting. The error, if any, joins one
// *FieldError per bad key.
func (s *Settings) Resolve() (*Resolved, error) {
	var errs []error

	r := &Resolved{
		Watch:       s.watchConfiguration(&errs),
		Logging:     s.logOptions(&errs),
		ServiceName: strings.TrimSpace(s.ServiceName),
	}
	if r.ServiceName == "" {
		r.ServiceName = DefaultServiceName
	}
	r.Logging.Source = r.ServiceName

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Settings) watchConfiguration(errs *[]error) filewatcher.Configuration {
	cfg := filewatcher.Configuration{
		DestinationDirectory: absolutePath("DestinationFolder", s.DestinationFolder, errs),
		SourceDirectories:    sourceFolders(s.SourceFolders, errs),
		ExtensionFilters:     NormalizeExtensions(splitList(s.ExtensionFilters)),
		IgnorePatterns:       splitList(s.IgnorePatterns),
	}

	if ms, ok := integer("ThreadSleepTime", s.ThreadSleepTime, true, errs); ok {
		if ms <= 0 {
			*errs = append(*errs, invalid("ThreadSleepTime", s.ThreadSleepTime, "must be a positive number of milliseconds"))
		}
		cfg.RetryInterval = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := nonNegative("MaxLockWait", s.MaxLockWait, errs); ok {
		cfg.MaxLockWait = time.Duration(ms) * time.Millisecond
	}
	cfg.StabilityWindow = filewatcher.DefaultStabilityWindow
	if ms, ok := nonNegative("StabilityWindow", s.StabilityWindow, errs); ok {
		cfg.StabilityWindow = time.Duration(ms) * time.Millisecond
		if ms == 0 {
			cfg.StabilityWindow = filewatcher.NoStabilityWindow
		}
	}
	if n, ok := nonNegative("MaxConcurrentCopies", s.MaxConcurrentCopies, errs); ok {
		cfg.MaxConcurrentCopies = n
	}
	return cfg
}

func (s *Settings) logOptions(errs *[]error) logsink.Options {
	opts := logsink.Options{
		Level:    zerolog.InfoLevel,
		FilePath: strings.TrimSpace(s.LogFilePath),
		Rotation: logrotation.Options{
			MaxSizeMB:  logrotation.DefaultMaxSizeMB,
			MaxAgeDays: logrotation.DefaultMaxAgeDays,
			MaxBackups: logrotation.DefaultMaxBackups,
			Compress:   true,
		},
	}

	kind, err := logsink.ParseKind(s.LogSink)
	if err != nil {
		*errs = append(*errs, invalid("LogSink", s.LogSink, "must be file, console, event or all"))
	}
	opts.Kind = kind

	if opts.FilePath == "" {
		dir, err := DataDir()
		if err != nil {
			*errs = append(*errs, &FieldError{Key: "LogFilePath", Err: ErrMissing, Reason: err.Error()})
		} else {
			opts.FilePath = filepath.Join(dir, DefaultLogFileName)
		}
	} else if !filepath.IsAbs(opts.FilePath) {
		*errs = append(*errs, invalid("LogFilePath", s.LogFilePath, "must be an absolute path"))
	}

	if lvl := strings.TrimSpace(s.LogLevel); lvl != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil || parsed == zerolog.NoLevel {
			*errs = append(*errs, invalid("LogLevel", s.LogLevel, "must be trace, debug, info, warn or error"))
		} else {
			opts.Level = parsed
		}
	}

	if n, ok := positiveOrDefault("LogMaxSizeMB", s.LogMaxSizeMB, errs); ok {
		opts.Rotation.MaxSizeMB = n
	}
	if n, ok := positiveOrDefault("LogMaxAgeDays", s.LogMaxAgeDays, errs); ok {
		opts.Rotation.MaxAgeDays = n
	}
	if n, ok := positiveOrDefault("LogMaxBackups", s.LogMaxBackups, errs); ok {
		opts.Rotation.MaxBackups = n
	}
	if v := strings.TrimSpace(s.LogCompress); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, invalid("LogCompress", s.LogCompress, "must be true or false"))
		} else {
			opts.Rotation.Compress = b
		}
	}
	return opts
}

// NormalizeExtensions lower-cases each filter and gives it a leading dot.
// "*" becomes the wildcard. An empty list means the wildcard.
func NormalizeExtensions(filters []string) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.ToLower(f)
		switch {
		case f == "*" || f == filewatcher.Wildcard:
			f = filewatcher.Wildcard
		case !strings.HasPrefix(f, "."):
			f = "." + f
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return []string{filewatcher.Wildcard}
	}
	return out
}

func sourceFolders(raw string, errs *[]error) []string {
	folders := splitList(raw)
	if len(folders) == 0 {
		*errs = append(*errs, &FieldError{Key: "SourceFolders", Err: ErrMissing})
		return nil
	}

	var out []string
	for _, f := range folders {
		if !filepath.IsAbs(f) {
			*errs = append(*errs, invalid("SourceFolders", f, "must be an absolute path"))
			continue
		}
		f = filepath.Clean(f)
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func absolutePath(key, raw string, errs *[]error) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		*errs = append(*errs, &FieldError{Key: key, Err: ErrMissing})
		return ""
	}
	if !filepath.IsAbs(v) {
		*errs = append(*errs, invalid(key, raw, "must be an absolute path"))
		return ""
	}
	return filepath.Clean(v)
}

// splitList splits a comma separated value, trimming entries and dropping
// empty ones.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func integer(key, raw string, required bool, errs *[]error) (int, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		if required {
			*errs = append(*errs, &FieldError{Key: key, Err: ErrMissing})
		}
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, invalid(key, raw, "must be an integer"))
		return 0, false
	}
	return n, true
}

func nonNegative(key, raw string, errs *[]error) (int, bool) {
	n, ok := integer(key, raw, false, errs)
	if ok && n < 0 {
		*errs = append(*errs, invalid(key, raw, "must not be negative"))
		return 0, false
	}
	return n, ok
}

func positiveOrDefault(key, raw string, errs *[]error) (int, bool) {
	n, ok := integer(key, raw, false, errs)
	if ok && n <= 0 {
		*errs = append(*errs, invalid(key, raw, "must be positive"))
		return 0, false
	}
	return n, ok
}

func invalid(key, value, reason string) *FieldError {
	return &FieldError{Key: key, Value: value, Err: ErrInvalid, Reason: reason}
}

// DataDir is where the default settings and log files live:
// $WATCHCOPY_DATA_DIR, or .watchcopy in the home directory. It is created if
// missing and always absolute.
func DataDir() (string, error) {
	dir := os.Getenv("WATCHCOPY_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("no data directory, set WATCHCOPY_DATA_DIR: %w", err)
		}
		dir = filepath.Join(home, ".watchcopy")
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// DefaultPath is $WATCHCOPY_CONFIG, or watchcopy.ini in the data directory.
func DefaultPath() (string, error) {
	if p := os.Getenv("WATCHCOPY_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultFileName), nil
}
