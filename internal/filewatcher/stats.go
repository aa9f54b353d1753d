package filewatcher

import "sync/atomic"

// Stats counts dispatcher activity.
type Stats struct {
	eventsSeen atomic.Int64
	accepted   atomic.Int64
	ignored    atomic.Int64
	copied     atomic.Int64
	failed     atomic.Int64
	inFlight   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	EventsSeen int64 `json:"eventsSeen"`
	Accepted   int64 `json:"accepted"`
	Ignored    int64 `json:"ignored"`
	Copied     int64 `json:"copied"`
	Failed     int64 `json:"failed"`
	InFlight   int64 `json:"inFlight"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		EventsSeen: s.eventsSeen.Load(),
		Accepted:   s.accepted.Load(),
		Ignored:    s.ignored.Load(),
		Copied:     s.copied.Load(),
		Failed:     s.failed.Load(),
		InFlight:   s.inFlight.Load(),
	}
}

// Settled reports whether every accepted task has reached an outcome.
func (s StatsSnapshot) Settled() bool {
	return s.InFlight == 0 && s.Copied+s.Failed == s.Accepted
}
