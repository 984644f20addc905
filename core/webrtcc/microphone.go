package webrtcc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// StaticMicrophone hands out Opus tracks that a push-to-talk source writes
// RTP into. Each Open returns a fresh track.
type StaticMicrophone struct {
	mu     sync.Mutex
	tracks map[string]*webrtc.TrackLocalStaticRTP
}

// NewStaticMicrophone creates an empty microphone.
func NewStaticMicrophone() *StaticMicrophone {
	return &StaticMicrophone{tracks: map[string]*webrtc.TrackLocalStaticRTP{}}
}

// Open creates a new local audio track.
func (m *StaticMicrophone) Open() (MicrophoneTrack, error) {
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "cctvwall-"+id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.tracks[id] = track
	m.mu.Unlock()

	return &staticTrack{id: id, track: track, mic: m}, nil
}

// Active returns the number of open tracks.
func (m *StaticMicrophone) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

type staticTrack struct {
	id    string
	once  sync.Once
	track *webrtc.TrackLocalStaticRTP
	mic   *StaticMicrophone
}

func (t *staticTrack) Track() webrtc.TrackLocal { return t.track }

func (t *staticTrack) Stop() {
	t.once.Do(func() {
		t.mic.mu.Lock()
		delete(t.mic.tracks, t.id)
		t.mic.mu.Unlock()
	})
}

// Write sends a marshalled RTP packet to every open track.
func (m *StaticMicrophone) Write(packet []byte) error {
	m.mu.Lock()
	tracks := make([]*webrtc.TrackLocalStaticRTP, 0, len(m.tracks))
	for _, t := range m.tracks {
		tracks = append(tracks, t)
	}
	m.mu.Unlock()

	for _, t := range tracks {
		if _, err := t.Write(packet); err != nil {
			return err
		}
	}
	return nil
}
