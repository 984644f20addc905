package playback

// TransportKind names the transport attached to a surface.
type TransportKind string

const (
	TransportWebRTC TransportKind = "webrtc"
	TransportHLS    TransportKind = "hls"
)

// MediaKind tells the sink what a payload carries.
type MediaKind int

const (
	MediaVideo MediaKind = iota
	MediaAudio
	// MediaSegment is a muxed HLS fragment.
	MediaSegment
)

// MediaSink receives media payloads from a transport.
type MediaSink interface {
	WriteMedia(kind MediaKind, payload []byte) error
}

// Attachment describes what is currently feeding a surface.
type Attachment struct {
	Transport TransportKind
	Source    string
	Stream    *MediaStream
}

// Surface is the rendering contract a session drives: a media sink plus the
// overlay state. At most one attachment may be live at a time.
type Surface interface {
	MediaSink
	Attach(a Attachment) error
	// SetStream records the MediaStream once a WebRTC track arrives.
	SetStream(s *MediaStream)
	Detach()
	SetStatus(s Status)
}

// Events is the callback set a transport reports through.
type Events struct {
	OnStatus func(State)
	OnStream func(*MediaStream)
	OnError  func(error)
}

// Status forwards a state change, ignoring a nil callback.
func (e Events) Status(s State) {
	if e.OnStatus != nil {
		e.OnStatus(s)
	}
}

// Stream forwards a ready MediaStream, ignoring a nil callback.
func (e Events) Stream(m *MediaStream) {
	if e.OnStream != nil {
		e.OnStream(m)
	}
}

// Fail reports a fatal error: status failed followed by the error callback.
func (e Events) Fail(err error) {
	e.Status(StateFailed)
	if e.OnError != nil {
		e.OnError(err)
	}
}

// Transport is one live connection attached to a surface.
// Close releases every resource and is idempotent.
type Transport interface {
	Kind() TransportKind
	Close()
}
