package console

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/core/session"
)

// Viewer is a full-screen view of one tile's camera. It either borrows the
// tile's live WebRTC stream or runs its own main-stream session.
type Viewer struct {
	id      string
	tileID  string
	surface *playback.Tile

	lease       *playback.Lease
	unsubscribe func()
	session     *session.Session

	once sync.Once
}

// ID returns the viewer id.
func (v *Viewer) ID() string { return v.id }

// TileID returns the tile the viewer was opened from.
func (v *Viewer) TileID() string { return v.tileID }

// Borrowed reports whether the viewer shares the tile's stream.
func (v *Viewer) Borrowed() bool { return v.lease != nil }

// Snapshot returns the viewer surface state.
func (v *Viewer) Snapshot() playback.Snapshot { return v.surface.Snapshot() }

func (v *Viewer) close() {
	v.once.Do(func() {
		if v.lease != nil {
			v.unsubscribe()
			v.surface.Detach()
			v.lease.Release()
		}
		if v.session != nil {
			v.session.Stop()
		}
	})
}

// OpenViewer opens a full-screen viewer for a tile. A live WebRTC stream is
// lent rather than renegotiated; otherwise the viewer plays the main stream
// through a session of its own, reusing the tile's cached descriptor.
func (c *Console) OpenViewer(tileID string) (*Viewer, error) {
	t, ok := c.Tile(tileID)
	if !ok {
		return nil, ErrTileNotFound
	}

	id := uuid.NewString()
	v := &Viewer{id: id, tileID: tileID, surface: playback.NewTile(id)}
	v.surface.OnChange(func(s playback.Snapshot) {
		c.publish(Update{Kind: UpdateViewer, Snapshot: &s})
	})

	if lease, ok := t.session.BorrowStream(); ok {
		stream := lease.Stream()
		v.lease = lease
		if err := v.surface.Attach(playback.Attachment{
			Transport: playback.TransportWebRTC,
			Source:    "tile:" + tileID,
			Stream:    stream,
		}); err != nil {
			lease.Release()
			return nil, err
		}
		v.unsubscribe = stream.AddSink(v.surface)
		v.surface.SetStatus(playback.Status{State: playback.StateOnline})
	} else {
		opts := session.Options{AutoReconnect: c.opts.AutoReconnect}
		if desc, ok := t.session.Descriptor(); ok {
			opts.Descriptor = &desc
		}
		v.session = session.New(t.camera, v.surface, c.deps.Resolver, c.deps.Transports, opts)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		v.close()
		return nil, ErrClosed
	}
	c.viewers[v.id] = v
	c.mu.Unlock()

	if v.session != nil {
		v.session.Start()
	}

	c.logger.WithFields(log.Fields{"tile": tileID, "viewer": v.id, "borrowed": v.Borrowed()}).Infoln("viewer opened")
	return v, nil
}

// Viewer returns an open viewer by id.
func (c *Console) Viewer(id string) (*Viewer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.viewers[id]
	return v, ok
}

// CloseViewer closes a viewer. The tile keeps playing a borrowed stream.
func (c *Console) CloseViewer(id string) error {
	c.mu.Lock()
	v, ok := c.viewers[id]
	delete(c.viewers, id)
	c.mu.Unlock()

	if !ok {
		return ErrViewerNotFound
	}
	v.close()
	return nil
}
