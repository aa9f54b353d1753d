//go:build windows

package logsink

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows/svc/eventlog"
)

// Event IDs used for every entry; the message carries the detail.
const (
	eventInfo    = 1
	eventWarning = 2
	eventError   = 3
)

type windowsEventWriter struct {
	log *eventlog.Log
}

func newEventWriter(source string) (eventWriter, error) {
	// Needs admin rights; an already registered source keeps working.
	_ = eventlog.InstallAsEventCreate(source, eventlog.Error|eventlog.Warning|eventlog.Info)

	l, err := eventlog.Open(source)
	if err != nil {
		return nil, err
	}
	return &windowsEventWriter{log: l}, nil
}

func (w *windowsEventWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *windowsEventWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")

	var err error
	switch {
	case level == zerolog.TraceLevel, level == zerolog.DebugLevel:
		return len(p), nil
	case level == zerolog.WarnLevel:
		err = w.log.Warning(eventWarning, msg)
	case level == zerolog.ErrorLevel, level == zerolog.FatalLevel, level == zerolog.PanicLevel:
		err = w.log.Error(eventError, msg)
	default:
		err = w.log.Info(eventInfo, msg)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *windowsEventWriter) Close() error {
	return w.log.Close()
}
