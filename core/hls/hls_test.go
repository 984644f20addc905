package hls

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctvwall/cctvwall/core/playback"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   []string
	source  string
	playErr error
	events  chan Event
	once    sync.Once
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 16)}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) LoadSource(url string) {
	f.mu.Lock()
	f.source = url
	f.mu.Unlock()
	f.record("load")
}
func (f *fakeEngine) AttachMedia(playback.MediaSink) { f.record("attach") }
func (f *fakeEngine) StartLoad()                     { f.record("startLoad") }
func (f *fakeEngine) RecoverMediaError()             { f.record("recoverMedia") }
func (f *fakeEngine) SeekToLiveEdge()                { f.record("seekLive") }
func (f *fakeEngine) Play() error {
	f.record("play")
	return f.playErr
}
func (f *fakeEngine) Destroy() {
	f.once.Do(func() {
		f.record("destroy")
		close(f.events)
	})
}
func (f *fakeEngine) Events() <-chan Event { return f.events }

type statusLog struct {
	mu       sync.Mutex
	statuses []playback.State
	errs     []error
}

func (s *statusLog) events() playback.Events {
	return playback.Events{
		OnStatus: func(st playback.State) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.statuses = append(s.statuses, st)
		},
		OnError: func(err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.errs = append(s.errs, err)
		},
	}
}

func (s *statusLog) states() []playback.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]playback.State(nil), s.statuses...)
}

func (s *statusLog) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

type nopSink struct{}

func (nopSink) WriteMedia(playback.MediaKind, []byte) error { return nil }

func startFake(t *testing.T) (*fakeEngine, *Transport, *statusLog) {
	t.Helper()
	engine := newFakeEngine()
	log := &statusLog{}
	tr := NewPlayer(func() Engine { return engine }).Play("http://edge/hls/1.m3u8", nopSink{}, log.events())
	return engine, tr, log
}

func TestManifestParsedSeeksLiveEdgeAndPlays(t *testing.T) {
	engine, tr, log := startFake(t)
	defer tr.Close()

	engine.events <- Event{Type: EventManifestParsed}

	require.Eventually(t, func() bool { return len(log.states()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []playback.State{playback.StateOnline}, log.states())
	assert.Equal(t, []string{"attach", "load", "seekLive", "play"}, engine.Calls())
	assert.Equal(t, "http://edge/hls/1.m3u8", engine.source)
	assert.Equal(t, playback.TransportHLS, tr.Kind())
}

func TestAutoplayRejectionIsNotFatal(t *testing.T) {
	engine := newFakeEngine()
	engine.playErr = errors.New("autoplay blocked")
	log := &statusLog{}
	tr := NewPlayer(func() Engine { return engine }).Play("http://edge/1.m3u8", nopSink{}, log.events())
	defer tr.Close()

	engine.events <- Event{Type: EventManifestParsed}

	require.Eventually(t, func() bool { return len(log.states()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, playback.StateOnline, log.states()[0])
	assert.Empty(t, log.errors())
}

func TestNonFatalErrorIsRetryingThenOnline(t *testing.T) {
	engine, tr, log := startFake(t)
	defer tr.Close()

	engine.events <- Event{Type: EventManifestParsed}
	engine.events <- Event{Type: EventError, Error: NetworkError, Details: "fragLoadError"}
	engine.events <- Event{Type: EventError, Error: NetworkError, Details: "fragLoadError"}
	engine.events <- Event{Type: EventFragmentLoaded}
	engine.events <- Event{Type: EventFragmentLoaded}

	require.Eventually(t, func() bool { return len(log.states()) == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []playback.State{playback.StateOnline, playback.StateRetrying, playback.StateOnline}, log.states())
	assert.Empty(t, log.errors())
}

func TestFatalNetworkErrorRestartsLoad(t *testing.T) {
	engine, tr, log := startFake(t)
	defer tr.Close()

	engine.events <- Event{Type: EventError, Fatal: true, Error: NetworkError, Details: "manifestLoadError"}

	require.Eventually(t, func() bool { return len(log.states()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, playback.StateRetrying, log.states()[0])
	assert.Contains(t, engine.Calls(), "startLoad")
	assert.Empty(t, log.errors())
}

func TestFatalMediaErrorRecoversInPlace(t *testing.T) {
	engine, tr, log := startFake(t)
	defer tr.Close()

	engine.events <- Event{Type: EventError, Fatal: true, Error: MediaError, Details: "fragParsingError"}

	require.Eventually(t, func() bool { return len(log.states()) == 1 }, time.Second, time.Millisecond)
	assert.Contains(t, engine.Calls(), "recoverMedia")
	assert.NotContains(t, engine.Calls(), "destroy")
}

func TestOtherFatalErrorDestroysAndFails(t *testing.T) {
	engine, tr, log := startFake(t)
	defer tr.Close()

	engine.events <- Event{Type: EventError, Fatal: true, Error: OtherError, Details: "bufferAppendError", Err: errors.New("sink closed")}

	require.Eventually(t, func() bool { return len(log.errors()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []playback.State{playback.StateFailed}, log.states())

	var playErr *playback.PlaybackError
	require.ErrorAs(t, log.errors()[0], &playErr)
	assert.Equal(t, "bufferAppendError", playErr.Details)

	tr.Close()
	calls := engine.Calls()
	assert.Equal(t, "destroy", calls[len(calls)-1])
}

func TestCloseStopsEvents(t *testing.T) {
	engine, tr, log := startFake(t)
	tr.Close()
	tr.Close()

	assert.Contains(t, engine.Calls(), "destroy")
	<-tr.done
	assert.Empty(t, log.states())
}
