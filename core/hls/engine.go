package hls

import "github.com/cctvwall/cctvwall/core/playback"

// EventType identifies an engine event.
type EventType int

const (
	EventManifestParsed EventType = iota
	EventFragmentLoaded
	EventError
)

// ErrorType classifies engine errors the way recovery is decided.
type ErrorType string

const (
	NetworkError ErrorType = "network"
	MediaError   ErrorType = "media"
	OtherError   ErrorType = "other"
)

// Event is emitted by an Engine.
type Event struct {
	Type    EventType
	Fatal   bool
	Error   ErrorType
	Details string
	Err     error
}

// Engine is the HLS playback capability driven by Transport. It mirrors the
// small surface of a browser HLS library: load, attach, recover, destroy.
type Engine interface {
	LoadSource(url string)
	AttachMedia(sink playback.MediaSink)
	StartLoad()
	RecoverMediaError()
	SeekToLiveEdge()
	// Play starts delivering media to the attached sink.
	Play() error
	Destroy()
	// Events is closed after Destroy.
	Events() <-chan Event
}
