package hls

import (
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cctvwall/cctvwall/core/playback"
)

// Player starts HLS transports. One player is shared by every tile.
type Player struct {
	newEngine func() Engine
}

// NewPlayer creates a player using newEngine for each transport.
func NewPlayer(newEngine func() Engine) *Player {
	return &Player{newEngine: newEngine}
}

// NewLoaderPlayer creates a player backed by the HTTP Loader.
func NewLoaderPlayer(client *http.Client, cfg Config) *Player {
	return NewPlayer(func() Engine { return NewLoader(client, cfg) })
}

// Transport is one HLS pipeline feeding a surface.
type Transport struct {
	engine Engine
	events playback.Events
	logger *log.Entry
	warn   *rate.Sometimes
	done   chan struct{}

	mu        sync.Mutex
	retrying  bool
	closed    bool
	destroyed bool
}

// Play loads url into a fresh engine attached to sink. It returns at once;
// status and fatal errors arrive through events.
func (p *Player) Play(url string, sink playback.MediaSink, events playback.Events) *Transport {
	t := &Transport{
		engine: p.newEngine(),
		events: events,
		logger: log.WithFields(log.Fields{"transport": "hls", "url": url}),
		warn:   &rate.Sometimes{First: 1, Interval: 10 * time.Second},
		done:   make(chan struct{}),
	}

	t.engine.AttachMedia(sink)
	go t.run()
	t.engine.LoadSource(url)

	return t
}

// Kind implements playback.Transport.
func (t *Transport) Kind() playback.TransportKind { return playback.TransportHLS }

func (t *Transport) run() {
	defer close(t.done)
	for ev := range t.engine.Events() {
		if !t.handle(ev) {
			return
		}
	}
}

// handle reacts to one engine event and reports whether to keep listening.
func (t *Transport) handle(ev Event) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	switch ev.Type {
	case EventManifestParsed:
		// Start from the live edge, not wherever the engine would begin.
		t.engine.SeekToLiveEdge()
		if err := t.engine.Play(); err != nil {
			t.logger.Warnln("autoplay rejected:", err)
		}
		t.setRetrying(false)
		t.events.Status(playback.StateOnline)

	case EventFragmentLoaded:
		if t.setRetrying(false) {
			t.events.Status(playback.StateOnline)
		}

	case EventError:
		if !ev.Fatal {
			t.warn.Do(func() {
				t.logger.WithField("details", ev.Details).Warnln("transient hls error:", ev.Err)
			})
			if !t.setRetrying(true) {
				t.events.Status(playback.StateRetrying)
			}
			return true
		}
		return t.recover(ev)
	}
	return true
}

func (t *Transport) recover(ev Event) bool {
	t.logger.WithFields(log.Fields{"type": ev.Error, "details": ev.Details}).Errorln("fatal hls error:", ev.Err)

	switch ev.Error {
	case NetworkError:
		t.engine.StartLoad()
	case MediaError:
		t.engine.RecoverMediaError()
	default:
		t.mu.Lock()
		t.destroyed = true
		t.mu.Unlock()
		t.engine.Destroy()
		t.events.Fail(&playback.PlaybackError{Type: string(ev.Error), Details: ev.Details, Err: ev.Err})
		return false
	}

	if !t.setRetrying(true) {
		t.events.Status(playback.StateRetrying)
	}
	return true
}

// setRetrying records the retrying flag and returns its previous value.
func (t *Transport) setRetrying(v bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.retrying
	t.retrying = v
	return prev
}

// Close destroys the engine. Safe to call more than once.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	destroyed := t.destroyed
	t.destroyed = true
	t.mu.Unlock()

	if !destroyed {
		t.engine.Destroy()
	}
	t.logger.Debugln("hls transport closed")
}
