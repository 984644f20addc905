package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/config"
	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/core/streaminfo"
	"github.com/cctvwall/cctvwall/models"
)

// Resolver produces stream descriptors for a camera.
type Resolver interface {
	ResolveCamera(ctx context.Context, cam models.Camera, substream bool) (models.StreamDescriptor, error)
}

// Transports creates the two transport kinds. Implementations must not call
// the events synchronously from the constructor or from Close.
type Transports interface {
	WebRTCSupported() bool
	WebRTC(desc models.StreamDescriptor, sink playback.MediaSink, events playback.Events) playback.Transport
	HLS(url string, sink playback.MediaSink, events playback.Events) playback.Transport
}

// Handler receives session notifications, in order and never under the
// session lock.
type Handler struct {
	OnStatus func(playback.Status)
	OnStream func(*playback.MediaStream)
	OnError  func(error)
}

// Options configures a Session.
type Options struct {
	// Index is the tile position, used for the first-attempt stagger.
	Index     int
	Substream bool
	// Stagger delays the very first attempt by (Index+1) x base delay.
	Stagger       bool
	AutoReconnect bool
	// Descriptor is a cached descriptor to play without resolving.
	Descriptor *models.StreamDescriptor

	RetryBase   time.Duration
	RetryJitter time.Duration
	// Jitter picks the random part of a retry delay; defaults to math/rand.
	Jitter func(max time.Duration) time.Duration
}

// Session drives one surface: resolve, select a transport, fall back,
// retry and tear down. All public methods are safe for concurrent use.
type Session struct {
	id         string
	camera     models.Camera
	surface    playback.Surface
	resolver   Resolver
	transports Transports
	opts       Options
	logger     *log.Entry

	emitMu sync.Mutex

	mu             sync.Mutex
	gen            uint64
	started        bool
	staggerPending bool
	status         playback.Status
	desc           *models.StreamDescriptor
	transport      playback.Transport
	transportKind  playback.TransportKind
	source         string
	stream         *playback.MediaStream
	cancelResolve  context.CancelFunc
	timer          *time.Timer
	handler        Handler
	outbox         []func()
}

// New creates a stopped session for cam rendering onto surface.
func New(cam models.Camera, surface playback.Surface, resolver Resolver, transports Transports, opts Options) *Session {
	if opts.RetryBase <= 0 {
		opts.RetryBase = config.RetryBaseDelay
	}
	if opts.RetryJitter < 0 {
		opts.RetryJitter = 0
	} else if opts.RetryJitter == 0 {
		opts.RetryJitter = config.RetryJitter
	}
	if opts.Jitter == nil {
		opts.Jitter = randomJitter
	}

	id := uuid.NewString()
	s := &Session{
		id:             id,
		camera:         cam,
		surface:        surface,
		resolver:       resolver,
		transports:     transports,
		opts:           opts,
		logger:         log.WithFields(log.Fields{"camera": cam.ID, "session": id}),
		staggerPending: opts.Stagger,
		status:         playback.Loading(),
	}
	if opts.Descriptor != nil {
		desc := *opts.Descriptor
		s.desc = &desc
	}
	return s
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Camera returns the camera this session plays.
func (s *Session) Camera() models.Camera { return s.camera }

// SetHandler swaps the notification handler without touching the transport.
func (s *Session) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Status returns the current state.
func (s *Session) Status() playback.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Started reports whether the session is active.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Descriptor returns the cached descriptor, if one has been resolved.
func (s *Session) Descriptor() (models.StreamDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.desc == nil {
		return models.StreamDescriptor{}, false
	}
	return *s.desc, true
}

// BorrowStream lends the live WebRTC MediaStream, if there is one.
func (s *Session) BorrowStream() (*playback.Lease, bool) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil, false
	}
	return stream.Borrow()
}

// Start activates the session. Starting a started session is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.gen++
	s.enterLoadingLocked()

	var delay time.Duration
	if s.staggerPending {
		s.staggerPending = false
		delay = streaminfo.StaggerDelay(s.opts.Index, s.opts.Substream)
	}
	s.scheduleLocked(delay, s.resolveLocked)
	s.unlockAndNotify()
}

// Stop cancels any in-flight resolution and tears the transport down.
// Stopping a stopped session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.gen++
	s.resetLocked()
	if s.opts.Descriptor == nil {
		s.desc = nil
	}
	s.unlockAndNotify()

	s.logger.Debugln("session stopped")
}

// Refresh is the operator reconnect: tear down, drop the cached descriptor,
// go back to loading and resolve again without any stagger. A session that
// was never started, or has been stopped, only forgets its descriptor so
// the next Start resolves afresh.
func (s *Session) Refresh() {
	s.mu.Lock()
	if !s.started {
		s.desc = nil
		s.mu.Unlock()
		s.logger.Debugln("refresh on idle session, descriptor dropped")
		return
	}
	s.staggerPending = false
	s.gen++
	s.resetLocked()
	s.desc = nil
	s.enterLoadingLocked()
	s.resolveLocked()
	s.unlockAndNotify()

	s.logger.Infoln("session refreshed")
}

// resetLocked cancels timers and resolution and releases the transport.
func (s *Session) resetLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancelResolve != nil {
		s.cancelResolve()
		s.cancelResolve = nil
	}
	s.teardownLocked()
}

// teardownLocked closes the current transport and detaches the surface.
// Callbacks still in flight from the old transport are invalidated.
func (s *Session) teardownLocked() {
	if s.transport == nil {
		return
	}
	s.gen++
	s.transport.Close()
	s.transport = nil
	s.stream = nil
	s.surface.Detach()
}

// scheduleLocked runs step under the lock after delay, unless the
// generation has moved on in the meantime.
func (s *Session) scheduleLocked(delay time.Duration, step func()) {
	if s.timer != nil {
		s.timer.Stop()
	}
	g := s.gen
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.gen != g {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		step()
		s.unlockAndNotify()
	})
}

func (s *Session) resolveLocked() {
	if s.desc != nil {
		s.selectLocked(*s.desc)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelResolve = cancel
	g := s.gen
	cam, substream := s.camera, s.opts.Substream

	go func() {
		desc, err := s.resolver.ResolveCamera(ctx, cam, substream)
		cancel()

		s.mu.Lock()
		if s.gen != g {
			s.mu.Unlock()
			return
		}
		s.cancelResolve = nil
		if err != nil {
			s.failLocked(err, s.opts.AutoReconnect, s.retryResolveLocked)
		} else {
			s.desc = &desc
			s.selectLocked(desc)
		}
		s.unlockAndNotify()
	}()
}

func (s *Session) retryResolveLocked() {
	s.setStatusLocked(playback.StateLoading, "")
	s.resolveLocked()
}

// selectLocked picks the transport for desc: WebRTC through the gateway
// when possible, then the HLS manifest, then the legacy direct URL.
func (s *Session) selectLocked(desc models.StreamDescriptor) {
	switch {
	case desc.MediaMTXEnabled && desc.WebRTCURL != "" && s.transports.WebRTCSupported():
		s.startLocked(playback.TransportWebRTC, desc.WebRTCURL)
	case desc.HLSURL != "":
		s.startLocked(playback.TransportHLS, desc.HLSURL)
	case desc.DirectURL != "":
		s.startLocked(playback.TransportHLS, desc.DirectURL)
	default:
		s.failLocked(&playback.NoSourceError{CameraID: s.camera.ID}, false, nil)
	}
}

// startLocked replaces the current transport. The old one is always torn
// down before the new one is created.
func (s *Session) startLocked(kind playback.TransportKind, source string) {
	s.teardownLocked()
	s.gen++
	g := s.gen

	if err := s.surface.Attach(playback.Attachment{Transport: kind, Source: source}); err != nil {
		s.logger.Errorln("surface refused attachment:", err)
		s.failLocked(err, false, nil)
		return
	}

	events := playback.Events{
		OnStatus: func(st playback.State) { s.onTransportStatus(g, st) },
		OnStream: func(m *playback.MediaStream) { s.onTransportStream(g, m) },
		OnError:  func(err error) { s.onTransportError(g, kind, err) },
	}

	s.transportKind = kind
	s.source = source
	if kind == playback.TransportWebRTC {
		s.transport = s.transports.WebRTC(*s.desc, s.surface, events)
	} else {
		s.transport = s.transports.HLS(source, s.surface, events)
	}

	s.logger.WithFields(log.Fields{"transport": kind, "source": source}).Infoln("transport started")
}

func (s *Session) onTransportStatus(g uint64, st playback.State) {
	// failures are decided in onTransportError
	if st == playback.StateFailed {
		return
	}
	s.mu.Lock()
	if s.gen != g {
		s.mu.Unlock()
		return
	}
	s.setStatusLocked(st, "")
	s.unlockAndNotify()
}

func (s *Session) onTransportStream(g uint64, m *playback.MediaStream) {
	s.mu.Lock()
	if s.gen != g {
		s.mu.Unlock()
		return
	}
	s.stream = m
	surface, h := s.surface, s.handler
	s.outbox = append(s.outbox, func() {
		surface.SetStream(m)
		if h.OnStream != nil {
			h.OnStream(m)
		}
	})
	s.unlockAndNotify()
}

// onTransportError applies the fallback policy: WebRTC falls back to HLS
// at once when a manifest is known, anything else retries the same
// transport after a jittered backoff.
func (s *Session) onTransportError(g uint64, kind playback.TransportKind, err error) {
	s.mu.Lock()
	if s.gen != g {
		s.mu.Unlock()
		return
	}

	s.teardownLocked()
	if kind == playback.TransportWebRTC && s.desc != nil && s.desc.HLSURL != "" {
		s.logger.Warnln("webrtc failed, falling back to hls:", err)
		s.setStatusLocked(playback.StateLoading, "")
		s.startLocked(playback.TransportHLS, s.desc.HLSURL)
	} else {
		source := s.source
		s.failLocked(err, playback.IsTransportFatal(err), func() {
			s.setStatusLocked(playback.StateLoading, "")
			s.startLocked(kind, source)
		})
	}
	s.unlockAndNotify()
}

// failLocked moves to failed and, when retry is set, schedules next after
// the jittered backoff.
func (s *Session) failLocked(err error, retry bool, next func()) {
	s.setStatusLocked(playback.StateFailed, err.Error())

	h := s.handler
	s.outbox = append(s.outbox, func() {
		if h.OnError != nil {
			h.OnError(err)
		}
	})

	if kind, ok := playback.KindOf(err); ok && kind == playback.KindNoSource {
		retry = false
	}
	if !retry || next == nil {
		s.logger.Warnln("session failed:", err)
		return
	}

	delay := s.opts.RetryBase + s.opts.Jitter(s.opts.RetryJitter)
	s.logger.WithField("retry_in", delay).Warnln("session failed:", err)
	s.scheduleLocked(delay, next)
}

func (s *Session) setStatusLocked(st playback.State, reason string) {
	next, changed, err := s.status.Next(st, reason)
	if err != nil {
		s.logger.Debugln(err)
		return
	}
	if !changed {
		return
	}
	s.status = next
	s.publishLocked(next)
}

// enterLoadingLocked moves to loading and always announces it, even when
// the session was already loading.
func (s *Session) enterLoadingLocked() {
	if s.status.State == playback.StateLoading {
		s.publishLocked(s.status)
		return
	}
	s.setStatusLocked(playback.StateLoading, "")
}

// publishLocked queues a status notification for the surface and handler.
func (s *Session) publishLocked(next playback.Status) {
	surface, h := s.surface, s.handler
	s.outbox = append(s.outbox, func() {
		surface.SetStatus(next)
		if h.OnStatus != nil {
			h.OnStatus(next)
		}
	})
}

// unlockAndNotify releases the lock and delivers queued notifications.
// Only one goroutine drains at a time so the order is preserved.
func (s *Session) unlockAndNotify() {
	s.mu.Unlock()

	for {
		if !s.emitMu.TryLock() {
			return
		}
		for {
			s.mu.Lock()
			out := s.outbox
			s.outbox = nil
			s.mu.Unlock()
			if len(out) == 0 {
				break
			}
			for _, fn := range out {
				fn()
			}
		}
		s.emitMu.Unlock()

		s.mu.Lock()
		pending := len(s.outbox) > 0
		s.mu.Unlock()
		if !pending {
			return
		}
	}
}
