package console

import (
	"golang.org/x/time/rate"

	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/core/session"
	"github.com/cctvwall/cctvwall/core/viewport"
	"github.com/cctvwall/cctvwall/models"
)

// Tile is one grid cell: a surface, the session driving it and the gate
// deciding when the session runs.
type Tile struct {
	camera  models.Camera
	index   int
	surface *playback.Tile
	session *session.Session
	signal  *viewport.ReportSignal
	gate    *viewport.Gate
	limiter *rate.Limiter
}

// ID returns the tile id, which is the camera id.
func (t *Tile) ID() string { return t.camera.ID }

// Index returns the grid position.
func (t *Tile) Index() int { return t.index }

// Camera returns the camera as loaded from the catalogue.
func (t *Tile) Camera() models.Camera { return t.camera }

// Snapshot returns the surface state.
func (t *Tile) Snapshot() playback.Snapshot { return t.surface.Snapshot() }

// BytesReceived returns the payload bytes delivered to the tile so far.
func (t *Tile) BytesReceived() uint64 { return t.surface.BytesReceived() }

// Active reports whether the viewport gate has started the session.
func (t *Tile) Active() bool { return t.gate.Active() }

func (t *Tile) close() {
	t.gate.Close()
	t.session.Stop()
}
