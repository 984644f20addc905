package hls

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctvwall/cctvwall/core/playback"
)

type bufferSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *bufferSink) WriteMedia(kind playback.MediaKind, p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, append([]byte(nil), p...))
	return nil
}

func (b *bufferSink) all() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.payloads...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ManifestRetries = 2
	cfg.ManifestRetryDelay = time.Millisecond
	cfg.LevelRetries = 2
	cfg.LevelRetryDelay = time.Millisecond
	cfg.FragmentRetries = 1
	cfg.FragmentRetryDelay = time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

func mediaPlaylist(seq, count int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:1\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", seq)
	for i := seq; i < seq+count; i++ {
		fmt.Fprintf(&b, "#EXTINF:1.000,\nseg%d.ts\n", i)
	}
	return b.String()
}

// waitFor drains loader events until match returns true.
func waitFor(t *testing.T, l *Loader, match func(Event) bool) []Event {
	t.Helper()
	var seen []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-l.Events():
			require.True(t, ok, "events closed")
			seen = append(seen, ev)
			if match(ev) {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out, saw %d events", len(seen))
		}
	}
}

func TestLoaderStartsAtLiveEdge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(mediaPlaylist(10, 3)))
	})
	mux.HandleFunc("/live/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/live/"), "seg%d.ts", &n)
		_, _ = w.Write([]byte{tsSyncByte, byte(n)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &bufferSink{}
	l := NewLoader(srv.Client(), testConfig())
	defer l.Destroy()

	l.AttachMedia(sink)
	l.LoadSource(srv.URL + "/live/index.m3u8")

	waitFor(t, l, func(ev Event) bool { return ev.Type == EventManifestParsed })
	waitFor(t, l, func(ev Event) bool { return ev.Type == EventFragmentLoaded })
	require.NoError(t, l.Play())

	require.Eventually(t, func() bool { return len(sink.all()) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{tsSyncByte, 12}, sink.all()[0])
}

func TestLoaderFollowsFirstVariant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nlow/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2000000\nhigh/index.m3u8\n"))
	})
	mux.HandleFunc("/low/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(mediaPlaylist(1, 1)))
	})
	mux.HandleFunc("/low/seg1.ts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0, 0, 0, 16, 'm', 'o', 'o', 'f'})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	l := NewLoader(srv.Client(), testConfig())
	defer l.Destroy()
	l.AttachMedia(&bufferSink{})
	l.LoadSource(srv.URL + "/master.m3u8")

	events := waitFor(t, l, func(ev Event) bool { return ev.Type == EventFragmentLoaded })
	for _, ev := range events {
		assert.NotEqual(t, EventError, ev.Type)
	}
}

func TestLoaderManifestRetriesThenFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := NewLoader(srv.Client(), testConfig())
	defer l.Destroy()
	l.LoadSource(srv.URL + "/missing.m3u8")

	events := waitFor(t, l, func(ev Event) bool { return ev.Fatal })
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, NetworkError, ev.Error)
		assert.Equal(t, "manifestLoadError", ev.Details)
	}
	assert.False(t, events[0].Fatal)
	assert.True(t, events[2].Fatal)
}

func TestLoaderBadFragmentsBecomeFatalMediaError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(mediaPlaylist(0, 3)))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not video</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.LiveSyncSegments = 3
	l := NewLoader(srv.Client(), cfg)
	defer l.Destroy()
	l.LoadSource(srv.URL + "/index.m3u8")

	events := waitFor(t, l, func(ev Event) bool { return ev.Fatal })
	last := events[len(events)-1]
	assert.Equal(t, MediaError, last.Error)
	assert.Equal(t, "fragParsingError", last.Details)

	var nonFatal int
	for _, ev := range events {
		if ev.Type == EventError && !ev.Fatal {
			nonFatal++
		}
	}
	assert.Equal(t, 2, nonFatal)
}

func TestLoaderPlayRequiresMedia(t *testing.T) {
	l := NewLoader(nil, testConfig())
	assert.ErrorIs(t, l.Play(), ErrNoMedia)
	l.Destroy()
	l.Destroy()
	assert.ErrorIs(t, l.Play(), ErrDestroyed)

	_, open := <-l.Events()
	assert.False(t, open)
}

func TestValidFragment(t *testing.T) {
	ts := make([]byte, 376)
	ts[0], ts[188] = tsSyncByte, tsSyncByte
	assert.True(t, validFragment(ts))

	ts[188] = 0
	assert.False(t, validFragment(ts))

	assert.True(t, validFragment([]byte{0, 0, 0, 24, 'f', 't', 'y', 'p'}))
	assert.False(t, validFragment([]byte{0, 0, 0, 24, 'm', 'd', 'a', 't'}))
	assert.False(t, validFragment(nil))
}

func TestLiveSyncPoint(t *testing.T) {
	assert.Equal(t, uint64(12), liveSyncPoint(10, 12, 1))
	assert.Equal(t, uint64(11), liveSyncPoint(10, 12, 2))
	assert.Equal(t, uint64(10), liveSyncPoint(10, 12, 5))
}
