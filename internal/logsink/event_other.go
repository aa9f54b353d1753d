//go:build plan9

package logsink

import "errors"

func newEventWriter(string) (eventWriter, error) {
	return nil, errors.New("no event log on this platform")
}
