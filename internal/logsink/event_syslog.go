//go:build !windows && !plan9

package logsink

import (
	"log/syslog"

	"github.com/rs/zerolog"
)

type syslogEventWriter struct {
	zerolog.LevelWriter
	w *syslog.Writer
}

func newEventWriter(source string) (eventWriter, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, source)
	if err != nil {
		return nil, err
	}
	return &syslogEventWriter{
		LevelWriter: zerolog.SyslogLevelWriter(w),
		w:           w,
	}, nil
}

func (s *syslogEventWriter) Close() error {
	return s.w.Close()
}
