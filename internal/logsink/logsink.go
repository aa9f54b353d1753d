package logsink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/your-org/watchcopy/internal/logrotation"
)

// Kind selects where log entries go.
type Kind string

const (
	KindFile    Kind = "file"
	KindConsole Kind = "console"
	KindEvent   Kind = "event" // syslog, or the Windows event log
	KindAll     Kind = "all"
)

var ErrUnknownKind = errors.New("unknown log sink")

// ParseKind accepts a sink name case-insensitively. An empty name is
// KindFile.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindFile, nil
	case KindFile, KindConsole, KindEvent, KindAll:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// TimestampLayout is inserted between a log file's name and its extension.
const TimestampLayout = "20060102150405"

// TimestampedPath turns /var/log/watchcopy.log into
// /var/log/watchcopy20250102150405.log.
func TimestampedPath(path string, now time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + now.Format(TimestampLayout) + ext
}

// Options describes the sink chosen at startup.
type Options struct {
	Kind     Kind
	FilePath string // before the timestamp is inserted
	Level    zerolog.Level
	Rotation logrotation.Options

	// Source names the process in the OS event log.
	Source string
	// Interactive adds the console to KindAll.
	Interactive bool
	// Console defaults to os.Stdout.
	Console io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Sink owns the writers behind Logger.
type Sink struct {
	Logger zerolog.Logger
	// Path is the log file in use, empty when no file is written.
	Path string

	closers []io.Closer
}

// Open builds the logger for opts. Close the Sink on shutdown.
func Open(opts Options) (*Sink, error) {
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Source == "" {
		opts.Source = "watchcopy"
	}

	s := &Sink{}
	var writers []io.Writer

	useFile, useConsole, useEvent := false, false, false
	switch opts.Kind {
	case KindFile, "":
		useFile = true
	case KindConsole:
		useConsole = true
	case KindEvent:
		useEvent = true
	case KindAll:
		useFile, useEvent = true, true
		useConsole = opts.Interactive
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}

	if useConsole {
		writers = append(writers, zerolog.ConsoleWriter{Out: opts.Console, TimeFormat: time.RFC3339})
	}

	if useFile {
		if opts.FilePath == "" {
			return nil, errors.New("log file path is empty")
		}
		path := TimestampedPath(opts.FilePath, opts.Now())
		rw, err := logrotation.New(path, opts.Rotation)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		s.Path = path
		s.closers = append(s.closers, rw)
		writers = append(writers, rw)
	}

	if useEvent {
		ew, err := newEventWriter(opts.Source)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		s.closers = append(s.closers, ew)
		writers = append(writers, ew)
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = zerolog.MultiLevelWriter(writers...)
	}

	s.Logger = zerolog.New(out).With().Timestamp().Logger().Level(opts.Level)
	return s, nil
}

// Close releases every writer. Entries logged afterwards are lost.
func (s *Sink) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// eventWriter is implemented per platform.
type eventWriter interface {
	zerolog.LevelWriter
	io.Closer
}
