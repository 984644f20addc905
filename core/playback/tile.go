package playback

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyAttached is returned when a second transport is attached to a tile.
var ErrAlreadyAttached = errors.New("surface already has a transport attached")

// Snapshot is the externally visible state of a tile.
type Snapshot struct {
	ID            string        `json:"id"`
	State         State         `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	Transport     TransportKind `json:"transport,omitempty"`
	Source        string        `json:"source,omitempty"`
	BytesReceived uint64        `json:"bytesReceived"`
	Codec         string        `json:"codec,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Tile is the Surface used by the console grid and the full-screen viewer.
type Tile struct {
	id    string
	bytes atomic.Uint64

	mu        sync.Mutex
	attached  *Attachment
	status    Status
	updatedAt time.Time
	listeners []func(Snapshot)
}

// NewTile returns a detached tile in the loading state.
func NewTile(id string) *Tile {
	return &Tile{id: id, status: Loading(), updatedAt: time.Now()}
}

// ID returns the tile id.
func (t *Tile) ID() string { return t.id }

// OnChange registers a listener for status and attachment changes.
func (t *Tile) OnChange(fn func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Attach records the transport feeding the tile.
func (t *Tile) Attach(a Attachment) error {
	t.mu.Lock()
	if t.attached != nil {
		t.mu.Unlock()
		return ErrAlreadyAttached
	}
	t.attached = &a
	t.mu.Unlock()

	t.notify()
	return nil
}

// SetStream records the MediaStream of the current WebRTC attachment.
func (t *Tile) SetStream(s *MediaStream) {
	t.mu.Lock()
	if t.attached != nil {
		t.attached.Stream = s
	}
	t.mu.Unlock()

	t.notify()
}

// Detach drops the current attachment. Detaching an empty tile is a no-op.
func (t *Tile) Detach() {
	t.mu.Lock()
	if t.attached == nil {
		t.mu.Unlock()
		return
	}
	t.attached = nil
	t.mu.Unlock()

	t.notify()
}

// Attached returns the current attachment, if any.
func (t *Tile) Attached() (Attachment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached == nil {
		return Attachment{}, false
	}
	return *t.attached, true
}

// SetStatus updates the overlay state.
func (t *Tile) SetStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.updatedAt = time.Now()
	t.mu.Unlock()

	t.notify()
}

// Status returns the overlay state.
func (t *Tile) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// WriteMedia counts received payload bytes.
func (t *Tile) WriteMedia(_ MediaKind, payload []byte) error {
	t.bytes.Add(uint64(len(payload)))
	return nil
}

// BytesReceived returns the total payload bytes seen by the tile.
func (t *Tile) BytesReceived() uint64 {
	return t.bytes.Load()
}

// Snapshot returns the current state.
func (t *Tile) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tile) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            t.id,
		State:         t.status.State,
		Reason:        t.status.Reason,
		BytesReceived: t.bytes.Load(),
		UpdatedAt:     t.updatedAt,
	}
	if t.attached != nil {
		snap.Transport = t.attached.Transport
		snap.Source = t.attached.Source
		if t.attached.Stream != nil {
			snap.Codec = t.attached.Stream.Details().VideoCodec
		}
	}
	return snap
}

func (t *Tile) notify() {
	t.mu.Lock()
	snap := t.snapshotLocked()
	listeners := append([]func(Snapshot){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
