package config

import "time"

// Playback policy. None of these are user configurable.
const (
	// ResolveConcurrency caps concurrent stream-info lookups across all tiles.
	ResolveConcurrency = 4

	// StaggerDense spaces first attempts when the grid plays substreams.
	StaggerDense = 400 * time.Millisecond
	// StaggerSparse spaces first attempts in main-stream mode.
	StaggerSparse = 200 * time.Millisecond

	// DefaultSTUNServer is used when the backend hands out no ICE servers.
	DefaultSTUNServer = "stun:stun.l.google.com:19302"
	// ICEGatherTimeout bounds the wait for ICE gathering before the offer is posted.
	ICEGatherTimeout = 500 * time.Millisecond
	// StatsInterval is the WebRTC inbound byte poll period.
	StatsInterval = 500 * time.Millisecond
	// InactivityTicks is the number of unchanged polls tolerated (about 5s).
	InactivityTicks = 10
	// ConnectTimeout fails a peer connection that never reaches connected.
	ConnectTimeout = 4 * time.Second
	// SignalingTimeout bounds the WHEP offer/answer round trip.
	SignalingTimeout = 10 * time.Second

	// RetryBaseDelay and RetryJitter shape the same-transport retry backoff.
	RetryBaseDelay = 5 * time.Second
	RetryJitter    = 3 * time.Second

	// RootMargin is how far outside the viewport a tile starts connecting.
	RootMargin = 100
	// VisibleThreshold is the minimum visible fraction of a tile.
	VisibleThreshold = 0.1

	// RefreshInterval limits operator reconnects per tile.
	RefreshInterval = 2 * time.Second

	// LogRetention is how long rotated log files are kept.
	LogRetention = 7 * 24 * time.Hour
)
