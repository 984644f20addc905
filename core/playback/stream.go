package playback

import (
	"sync"

	"github.com/cctvwall/cctvwall/models"
)

// Track is one remote track inside a MediaStream.
type Track struct {
	ID    string
	Kind  MediaKind
	Codec string
}

// MediaStream is a WebRTC media stream owned by the transport that created it.
//
// The owner holds one reference. A full-screen viewer may borrow the stream;
// a borrower only drops its own reference. The owner's stop function (which
// closes the peer connection) runs once, when the last reference goes away.
type MediaStream struct {
	id string

	mu            sync.Mutex
	tracks        []Track
	details       models.StreamDetails
	refs          int
	ownerReleased bool
	stopped       bool
	stop          func()
	sinks         map[int]MediaSink
	nextSink      int
}

// NewMediaStream creates a stream with a single owner reference.
func NewMediaStream(id string, stop func()) *MediaStream {
	return &MediaStream{id: id, refs: 1, stop: stop, sinks: map[int]MediaSink{}}
}

// AddSink subscribes sink to the stream's media. The returned func unsubscribes.
func (m *MediaStream) AddSink(sink MediaSink) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSink
	m.nextSink++
	m.sinks[id] = sink

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.sinks, id)
			m.mu.Unlock()
		})
	}
}

// WriteMedia fans a payload out to every subscribed sink.
func (m *MediaStream) WriteMedia(kind MediaKind, payload []byte) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	sinks := make([]MediaSink, 0, len(m.sinks))
	for _, s := range m.sinks {
		sinks = append(sinks, s)
	}
	m.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.WriteMedia(kind, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ID returns the stream id.
func (m *MediaStream) ID() string { return m.id }

// AddTrack registers a remote track.
func (m *MediaStream) AddTrack(t Track) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, t)
}

// Tracks returns a copy of the registered tracks.
func (m *MediaStream) Tracks() []Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Track(nil), m.tracks...)
}

// SetDetails records codec information.
func (m *MediaStream) SetDetails(d models.StreamDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details = d
}

// Details returns codec information.
func (m *MediaStream) Details() models.StreamDetails {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.details
}

// Active reports whether the tracks are still running.
func (m *MediaStream) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.stopped
}

// Refs returns the number of live references.
func (m *MediaStream) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Borrow lends the stream. It fails once the owner has let go.
func (m *MediaStream) Borrow() (*Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerReleased || m.stopped {
		return nil, false
	}
	m.refs++
	return &Lease{stream: m}, true
}

// Release drops the owner reference. Safe to call more than once.
func (m *MediaStream) Release() {
	m.mu.Lock()
	if m.ownerReleased {
		m.mu.Unlock()
		return
	}
	m.ownerReleased = true
	m.unref()
}

// unref must be called with m.mu held; it unlocks.
func (m *MediaStream) unref() {
	m.refs--
	if m.refs > 0 || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	stop := m.stop
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Lease is a borrower's reference to a MediaStream.
type Lease struct {
	once   sync.Once
	stream *MediaStream
}

// Stream returns the borrowed stream.
func (l *Lease) Stream() *MediaStream { return l.stream }

// Release detaches the borrower. It never stops tracks on its own account;
// if the owner is already gone the owner's stop function runs now.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.stream.mu.Lock()
		l.stream.unref()
	})
}
