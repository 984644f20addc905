package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/grafov/m3u8"

	"github.com/cctvwall/cctvwall/core/playback"
)

var (
	// ErrNoMedia is returned by Play before AttachMedia.
	ErrNoMedia = errors.New("no media attached")
	// ErrDestroyed is returned by Play after Destroy.
	ErrDestroyed = errors.New("engine destroyed")
)

// Config tunes the loader. The defaults favour latency over robustness:
// a tiny buffer and a tight live edge, but many retries because the
// gateway may not have produced a playlist yet when playback starts.
type Config struct {
	MaxBufferDuration  time.Duration
	LiveSyncSegments   int
	MaxLatencySegments int

	ManifestRetries    int
	ManifestRetryDelay time.Duration
	LevelRetries       int
	LevelRetryDelay    time.Duration
	FragmentRetries    int
	FragmentRetryDelay time.Duration
	RequestTimeout     time.Duration

	// BadFragmentLimit consecutive unparseable fragments make a fatal media error.
	BadFragmentLimit int
}

// DefaultConfig returns the low-latency live profile.
func DefaultConfig() Config {
	return Config{
		MaxBufferDuration:  2 * time.Second,
		LiveSyncSegments:   1,
		MaxLatencySegments: 3,
		ManifestRetries:    30,
		ManifestRetryDelay: time.Second,
		LevelRetries:       30,
		LevelRetryDelay:    time.Second,
		FragmentRetries:    10,
		FragmentRetryDelay: 500 * time.Millisecond,
		RequestTimeout:     10 * time.Second,
		BadFragmentLimit:   3,
	}
}

type fragment struct {
	data     []byte
	duration time.Duration
}

// Loader is an Engine that polls a live playlist over HTTP and feeds
// MPEG-TS or fMP4 fragments to the attached sink.
type Loader struct {
	cfg    Config
	client *http.Client
	events chan Event

	wg sync.WaitGroup

	mu           sync.Mutex
	source       string
	sink         playback.MediaSink
	playing      bool
	seekLive     bool
	destroyed    bool
	cancel       context.CancelFunc
	buffered     []fragment
	badFragments int
}

// NewLoader creates a loader. A nil client uses http.DefaultClient.
func NewLoader(client *http.Client, cfg Config) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		cfg:    cfg,
		client: client,
		events: make(chan Event, 32),
	}
}

// Events implements Engine.
func (l *Loader) Events() <-chan Event { return l.events }

// LoadSource sets the manifest URL and starts loading.
func (l *Loader) LoadSource(source string) {
	l.mu.Lock()
	l.source = source
	l.mu.Unlock()
	l.StartLoad()
}

// AttachMedia sets the sink fragments are written to.
func (l *Loader) AttachMedia(sink playback.MediaSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// StartLoad (re)starts loading from the manifest, dropping any load in flight.
func (l *Loader) StartLoad() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed || l.source == "" {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	source := l.source

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.load(ctx, source)
	}()
}

// RecoverMediaError resets the parser state and resumes at the live edge.
func (l *Loader) RecoverMediaError() {
	l.mu.Lock()
	l.badFragments = 0
	l.seekLive = true
	l.buffered = nil
	l.mu.Unlock()
	l.StartLoad()
}

// SeekToLiveEdge makes the next playlist refresh jump to the live sync point.
func (l *Loader) SeekToLiveEdge() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seekLive = true
	l.buffered = nil
}

// Play flushes buffered fragments and delivers new ones as they arrive.
func (l *Loader) Play() error {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return ErrDestroyed
	}
	if l.sink == nil {
		l.mu.Unlock()
		return ErrNoMedia
	}
	l.playing = true
	sink, buffered := l.sink, l.buffered
	l.buffered = nil
	l.mu.Unlock()

	for _, f := range buffered {
		if err := sink.WriteMedia(playback.MediaSegment, f.data); err != nil {
			return err
		}
	}
	return nil
}

// Destroy stops loading and closes the event channel.
func (l *Loader) Destroy() {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	if l.cancel != nil {
		l.cancel()
	}
	l.buffered = nil
	l.mu.Unlock()

	l.wg.Wait()
	close(l.events)
}

func (l *Loader) emit(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

func (l *Loader) load(ctx context.Context, source string) {
	body, err := l.fetchWithRetry(ctx, source, l.cfg.ManifestRetries, l.cfg.ManifestRetryDelay, "manifestLoadError")
	if err != nil {
		return
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		l.emit(ctx, Event{Type: EventError, Fatal: true, Error: NetworkError, Details: "manifestParsingError", Err: err})
		return
	}

	levelURL := source
	var media *m3u8.MediaPlaylist
	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		if len(master.Variants) == 0 || master.Variants[0] == nil {
			l.emit(ctx, Event{Type: EventError, Fatal: true, Error: NetworkError, Details: "manifestParsingError", Err: errors.New("master playlist has no variants")})
			return
		}
		levelURL = resolveURI(source, master.Variants[0].URI)
	case m3u8.MEDIA:
		media = playlist.(*m3u8.MediaPlaylist)
	}

	l.emit(ctx, Event{Type: EventManifestParsed})

	pos := &position{}
	for {
		if media == nil {
			body, err := l.fetchWithRetry(ctx, levelURL, l.cfg.LevelRetries, l.cfg.LevelRetryDelay, "levelLoadError")
			if err != nil {
				return
			}
			media, err = decodeMedia(body)
			if err != nil {
				l.emit(ctx, Event{Type: EventError, Fatal: true, Error: NetworkError, Details: "levelParsingError", Err: err})
				return
			}
		}

		progressed, err := l.consume(ctx, levelURL, media, pos)
		if err != nil {
			return
		}
		if media.Closed && !progressed {
			return
		}

		wait := time.Duration(media.TargetDuration * float64(time.Second))
		if wait <= 0 {
			wait = time.Second
		}
		if !progressed {
			wait /= 2
		}
		media = nil

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// position is the next media sequence number to load.
type position struct {
	next    uint64
	started bool
}

// consume loads the fragments of media that have not been loaded yet.
func (l *Loader) consume(ctx context.Context, levelURL string, media *m3u8.MediaPlaylist, pos *position) (bool, error) {
	segments := liveSegments(media)
	if len(segments) == 0 {
		return false, nil
	}

	first := media.SeqNo
	last := first + uint64(len(segments)) - 1

	l.mu.Lock()
	seekLive := l.seekLive
	l.seekLive = false
	l.mu.Unlock()

	behind := uint64(0)
	if pos.next <= last {
		behind = last + 1 - pos.next
	}
	if seekLive || !pos.started || pos.next < first || behind > uint64(l.cfg.MaxLatencySegments) {
		pos.next = liveSyncPoint(first, last, l.cfg.LiveSyncSegments)
		pos.started = true
	}

	progressed := false
	for ; pos.next <= last; pos.next++ {
		seg := segments[pos.next-first]

		data, err := l.fetchWithRetry(ctx, resolveURI(levelURL, seg.URI), l.cfg.FragmentRetries, l.cfg.FragmentRetryDelay, "fragLoadError")
		if err != nil {
			return progressed, err
		}

		if !validFragment(data) {
			if fatal := l.noteBadFragment(); fatal {
				err := fmt.Errorf("fragment %d is neither MPEG-TS nor fMP4", pos.next)
				l.emit(ctx, Event{Type: EventError, Fatal: true, Error: MediaError, Details: "fragParsingError", Err: err})
				return progressed, err
			}
			l.emit(ctx, Event{Type: EventError, Error: MediaError, Details: "fragParsingError"})
			continue
		}
		l.resetBadFragments()

		if err := l.deliver(ctx, fragment{data: data, duration: time.Duration(seg.Duration * float64(time.Second))}); err != nil {
			l.emit(ctx, Event{Type: EventError, Fatal: true, Error: OtherError, Details: "bufferAppendError", Err: err})
			return progressed, err
		}

		progressed = true
		l.emit(ctx, Event{Type: EventFragmentLoaded})
	}

	return progressed, nil
}

func liveSyncPoint(first, last uint64, syncSegments int) uint64 {
	if syncSegments < 1 {
		syncSegments = 1
	}
	if last+1-first <= uint64(syncSegments) {
		return first
	}
	return last + 1 - uint64(syncSegments)
}

// liveSegments returns the populated prefix of the playlist's segment ring.
func liveSegments(media *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	var out []*m3u8.MediaSegment
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		out = append(out, seg)
	}
	return out
}

func decodeMedia(body []byte) (*m3u8.MediaPlaylist, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, errors.New("expected a media playlist")
	}
	return playlist.(*m3u8.MediaPlaylist), nil
}

func (l *Loader) noteBadFragment() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.badFragments++
	return l.badFragments >= l.cfg.BadFragmentLimit
}

func (l *Loader) resetBadFragments() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.badFragments = 0
}

// deliver writes a fragment to the sink, or buffers it until Play.
func (l *Loader) deliver(ctx context.Context, f fragment) error {
	l.mu.Lock()
	if !l.playing {
		l.buffered = append(l.buffered, f)
		l.trimBufferLocked()
		l.mu.Unlock()
		return nil
	}
	sink := l.sink
	l.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	return sink.WriteMedia(playback.MediaSegment, f.data)
}

func (l *Loader) trimBufferLocked() {
	var total time.Duration
	for _, f := range l.buffered {
		total += f.duration
	}
	for len(l.buffered) > 1 && total > l.cfg.MaxBufferDuration {
		total -= l.buffered[0].duration
		l.buffered = l.buffered[1:]
	}
}

func (l *Loader) fetchWithRetry(ctx context.Context, target string, retries int, delay time.Duration, details string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := l.get(ctx, target)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt < retries {
			l.emit(ctx, Event{Type: EventError, Error: NetworkError, Details: details, Err: err})
		}
	}

	l.emit(ctx, Event{Type: EventError, Fatal: true, Error: NetworkError, Details: details, Err: lastErr})
	return nil, lastErr
}

func (l *Loader) get(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func resolveURI(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

const tsSyncByte = 0x47

var fmp4Boxes = map[string]bool{
	"ftyp": true,
	"styp": true,
	"moof": true,
	"moov": true,
	"sidx": true,
	"emsg": true,
}

// validFragment checks for an MPEG-TS sync byte or a leading fMP4 box.
func validFragment(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if data[0] == tsSyncByte {
		return len(data) <= 188 || data[188] == tsSyncByte
	}
	return len(data) >= 8 && fmp4Boxes[string(data[4:8])]
}
