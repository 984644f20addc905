package webrtcc

import (
	"context"
	"time"
)

// inactivityMonitor counts consecutive polls in which the inbound video
// byte counter did not move.
type inactivityMonitor struct {
	limit     int
	last      uint64
	unchanged int
}

// observe records a poll and reports whether the stream is stalled.
func (m *inactivityMonitor) observe(bytes uint64) bool {
	if bytes != m.last {
		m.last = bytes
		m.unchanged = 0
		return false
	}
	m.unchanged++
	return m.unchanged > m.limit
}

// watchInactivity polls source every interval until ctx ends or the counter
// has been flat for more than ticks polls, in which case onStall runs once.
func watchInactivity(ctx context.Context, interval time.Duration, ticks int, source func() uint64, onStall func(time.Duration)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m := inactivityMonitor{limit: ticks}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.observe(source()) {
				onStall(time.Duration(m.unchanged) * interval)
				return
			}
		}
	}
}
