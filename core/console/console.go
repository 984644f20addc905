package console

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cctvwall/cctvwall/config"
	"github.com/cctvwall/cctvwall/core/hls"
	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/core/session"
	"github.com/cctvwall/cctvwall/core/streaminfo"
	"github.com/cctvwall/cctvwall/core/viewport"
	"github.com/cctvwall/cctvwall/core/webrtcc"
	"github.com/cctvwall/cctvwall/models"
)

var (
	// ErrTileNotFound is returned for an unknown tile id.
	ErrTileNotFound = errors.New("tile not found")
	// ErrViewerNotFound is returned for an unknown viewer id.
	ErrViewerNotFound = errors.New("viewer not found")
	// ErrRateLimited is returned when a tile is refreshed too often.
	ErrRateLimited = errors.New("refresh rate limited")
	// ErrClosed is returned once the console has shut down.
	ErrClosed = errors.New("console closed")
)

// Catalog lists cameras known to the backend.
type Catalog interface {
	List(ctx context.Context, location, nvrID string) ([]models.Camera, error)
}

// Options configures the grid.
type Options struct {
	Substream     bool
	AutoReconnect bool
	Policy        string
	// Stagger spaces out the first attempt of each tile by its grid index.
	Stagger bool
	// Cameras is a static catalogue. When empty the Catalog is queried.
	Cameras []models.Camera
}

// Deps are the collaborators shared by every tile.
type Deps struct {
	Queue      *streaminfo.RequestQueue
	Resolver   session.Resolver
	Catalog    Catalog
	Transports session.Transports
}

// UpdateKind tells subscribers what changed.
type UpdateKind string

const (
	UpdateTile   UpdateKind = "tile"
	UpdateViewer UpdateKind = "viewer"
	UpdateCamera UpdateKind = "camera"
)

// Update is pushed to subscribers on every tile, viewer or camera change.
type Update struct {
	Kind     UpdateKind         `json:"kind"`
	Snapshot *playback.Snapshot `json:"snapshot,omitempty"`
	Camera   *models.Camera     `json:"camera,omitempty"`
}

// Console is the grid root. It owns the request queue, the tiles and the
// full-screen viewers.
type Console struct {
	opts   Options
	deps   Deps
	logger *log.Entry

	mu        sync.RWMutex
	cameras   []models.Camera
	tiles     map[string]*Tile
	order     []string
	viewers   map[string]*Viewer
	listeners map[int]func(Update)
	nextID    int
	closed    bool
}

// OptionsFromConfig maps the configuration onto grid options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Substream:     cfg.Player.Substream,
		AutoReconnect: cfg.Player.AutoReconnect,
		Policy:        cfg.Viewport.Policy,
		Stagger:       true,
		Cameras:       cfg.Cameras,
	}
}

// NewFromConfig builds a console with the live backend, WHEP client and
// HLS loader.
func NewFromConfig(cfg *config.Config) (*Console, error) {
	timeout := time.Duration(cfg.Backend.RequestTimeout) * time.Second
	queue := streaminfo.NewRequestQueue(config.ResolveConcurrency)

	var rtc *webrtcc.Client
	if cfg.Player.WebRTC {
		opts := webrtcc.Options{Talk: cfg.Player.Talk}
		if cfg.Player.Talk {
			opts.Microphone = webrtcc.NewStaticMicrophone()
		}
		client, err := webrtcc.NewClient(opts)
		if err != nil {
			return nil, err
		}
		rtc = client
	}
	player := hls.NewLoaderPlayer(&http.Client{}, hls.DefaultConfig())

	return New(OptionsFromConfig(cfg), Deps{
		Queue:      queue,
		Resolver:   streaminfo.NewResolver(cfg.Backend.BaseURL, cfg.Backend.Token, timeout, queue),
		Catalog:    streaminfo.NewCatalog(cfg.Backend.BaseURL, cfg.Backend.Token, timeout),
		Transports: session.NewTransports(rtc, player),
	}), nil
}

// New creates an empty console. Call Load to build the grid.
func New(opts Options, deps Deps) *Console {
	if deps.Queue == nil {
		deps.Queue = streaminfo.NewRequestQueue(config.ResolveConcurrency)
	}
	return &Console{
		opts:      opts,
		deps:      deps,
		logger:    log.WithField("component", "console"),
		tiles:     map[string]*Tile{},
		viewers:   map[string]*Viewer{},
		listeners: map[int]func(Update){},
	}
}

// Load fetches the camera catalogue and rebuilds the grid. Tiles stay idle
// until their viewport signal reports them visible.
func (c *Console) Load(ctx context.Context) error {
	cameras := append([]models.Camera(nil), c.opts.Cameras...)
	if len(cameras) == 0 && c.deps.Catalog != nil {
		listed, err := c.deps.Catalog.List(ctx, streaminfo.AllFilter, streaminfo.AllFilter)
		if err != nil {
			return err
		}
		cameras = listed
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.tiles
	c.cameras = cameras
	c.tiles = make(map[string]*Tile, len(cameras))
	c.order = c.order[:0]
	for _, cam := range cameras {
		if _, dup := c.tiles[cam.ID]; dup {
			c.logger.WithField("camera", cam.ID).Warnln("duplicate camera id, skipping")
			continue
		}
		c.tiles[cam.ID] = c.newTile(cam, len(c.order))
		c.order = append(c.order, cam.ID)
	}
	tiles := c.orderedTilesLocked()
	c.mu.Unlock()

	for _, t := range old {
		t.close()
	}
	for _, t := range tiles {
		t.gate.Observe()
	}

	c.logger.Infof("loaded %d cameras", len(tiles))
	return nil
}

func (c *Console) newTile(cam models.Camera, index int) *Tile {
	surface := playback.NewTile(cam.ID)
	sess := session.New(cam, surface, c.deps.Resolver, c.deps.Transports, session.Options{
		Index:         index,
		Substream:     c.opts.Substream,
		Stagger:       c.opts.Stagger,
		AutoReconnect: c.opts.AutoReconnect,
	})
	signal := viewport.NewReportSignal()

	t := &Tile{
		camera:  cam,
		index:   index,
		surface: surface,
		session: sess,
		signal:  signal,
		gate:    viewport.NewGate(signal, sess, c.opts.Policy),
		limiter: rate.NewLimiter(rate.Every(config.RefreshInterval), 1),
	}

	logger := c.logger.WithField("tile", cam.ID)
	sess.SetHandler(session.Handler{
		OnStatus: func(st playback.Status) { c.observeStatus(cam.ID, st) },
		OnError: func(err error) {
			logger.Warnln("playback error:", err)
		},
	})
	surface.OnChange(func(s playback.Snapshot) {
		c.publish(Update{Kind: UpdateTile, Snapshot: &s})
	})
	return t
}

// observeStatus updates the camera's reachability from session state.
func (c *Console) observeStatus(id string, st playback.Status) {
	var status models.CameraStatus
	switch st.State {
	case playback.StateOnline:
		status = models.CameraOnline
	case playback.StateFailed:
		status = models.CameraOffline
	default:
		return
	}

	c.mu.Lock()
	var changed *models.Camera
	for i := range c.cameras {
		if c.cameras[i].ID == id && c.cameras[i].Status != status {
			c.cameras[i].Status = status
			cam := c.cameras[i]
			changed = &cam
			break
		}
	}
	c.mu.Unlock()

	if changed != nil {
		c.publish(Update{Kind: UpdateCamera, Camera: changed})
	}
}

// Subscribe registers fn for updates. The returned func unsubscribes.
func (c *Console) Subscribe(fn func(Update)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Console) publish(u Update) {
	c.mu.RLock()
	listeners := make([]func(Update), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}

// Queue returns the shared stream-info queue.
func (c *Console) Queue() *streaminfo.RequestQueue { return c.deps.Queue }

// Tile returns a tile by id.
func (c *Console) Tile(id string) (*Tile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tiles[id]
	return t, ok
}

// Tiles returns the tiles in grid order.
func (c *Console) Tiles() []*Tile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orderedTilesLocked()
}

func (c *Console) orderedTilesLocked() []*Tile {
	tiles := make([]*Tile, 0, len(c.order))
	for _, id := range c.order {
		tiles = append(tiles, c.tiles[id])
	}
	return tiles
}

// Snapshots returns the state of every tile in grid order.
func (c *Console) Snapshots() []playback.Snapshot {
	tiles := c.Tiles()
	snaps := make([]playback.Snapshot, 0, len(tiles))
	for _, t := range tiles {
		snaps = append(snaps, t.Snapshot())
	}
	return snaps
}

// Refresh reconnects a tile on operator request.
func (c *Console) Refresh(id string) error {
	t, ok := c.Tile(id)
	if !ok {
		return ErrTileNotFound
	}
	if !t.limiter.Allow() {
		return ErrRateLimited
	}
	t.session.Refresh()
	return nil
}

// ReportGeometry feeds a browser layout report into the tile's viewport
// signal and returns the computed visibility.
func (c *Console) ReportGeometry(id string, tile, view viewport.Rect) (viewport.Visibility, error) {
	t, ok := c.Tile(id)
	if !ok {
		return viewport.Visibility{}, ErrTileNotFound
	}
	return t.signal.Report(tile, view), nil
}

// HideTile marks a tile as not visible, e.g. when its page is hidden.
func (c *Console) HideTile(id string) error {
	t, ok := c.Tile(id)
	if !ok {
		return ErrTileNotFound
	}
	t.signal.Hide()
	return nil
}

// Close stops every viewer and tile. Safe to call more than once.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	tiles := c.orderedTilesLocked()
	viewers := make([]*Viewer, 0, len(c.viewers))
	for _, v := range c.viewers {
		viewers = append(viewers, v)
	}
	c.viewers = map[string]*Viewer{}
	c.listeners = map[int]func(Update){}
	c.mu.Unlock()

	for _, v := range viewers {
		v.close()
	}
	for _, t := range tiles {
		t.close()
	}
	c.logger.Infoln("console closed")
}
