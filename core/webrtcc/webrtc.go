package webrtcc

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/models"
)

// Client creates WHEP playback connections. One client is shared by every tile.
type Client struct {
	api        *webrtc.API
	httpClient *http.Client
	talk       bool
	mic        Microphone
	timing     Timing
}

// NewClient builds the pion API with the default codecs and interceptors.
func NewClient(opts Options) (*Client, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(interceptorRegistry),
			webrtc.WithSettingEngine(settingEngine),
		),
		httpClient: httpClient,
		talk:       opts.Talk,
		mic:        opts.Microphone,
		timing:     opts.Timing.withDefaults(),
	}, nil
}

// Transport is one WHEP playback connection.
type Transport struct {
	client *Client
	desc   models.StreamDescriptor
	sink   playback.MediaSink
	events playback.Events
	logger *log.Entry

	ctx    context.Context
	cancel context.CancelFunc

	videoBytes atomic.Uint64

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	stream       *playback.MediaStream
	mic          MicrophoneTrack
	removeSink   func()
	location     string
	connectTimer *time.Timer
	connected    bool
	failed       bool
	closed       bool
}

// Connect starts negotiating against desc.WebRTCURL and returns at once.
// Progress and failures are reported through events; the caller owns the
// returned transport and must Close it.
func (c *Client) Connect(desc models.StreamDescriptor, sink playback.MediaSink, events playback.Events) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		client: c,
		desc:   desc,
		sink:   sink,
		events: events,
		logger: log.WithFields(log.Fields{"transport": "webrtc", "stream": desc.StreamID}),
		ctx:    ctx,
		cancel: cancel,
	}
	go t.run()
	return t
}

// Kind implements playback.Transport.
func (t *Transport) Kind() playback.TransportKind { return playback.TransportWebRTC }

func (t *Transport) run() {
	if err := t.negotiate(); err != nil {
		if t.ctx.Err() != nil {
			return
		}
		t.fail(err)
		return
	}

	go watchInactivity(t.ctx, t.client.timing.StatsInterval, t.client.timing.InactivityTicks, t.inboundVideoBytes, func(stalled time.Duration) {
		t.fail(&playback.InactivityError{Stalled: stalled})
	})
}

func (t *Transport) negotiate() error {
	peerConnection, err := t.client.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(t.desc.ICEServers),
	})
	if err != nil {
		return &playback.NegotiationError{Reason: "creating peer connection", Err: err}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = peerConnection.Close()
		return context.Canceled
	}
	t.pc = peerConnection
	t.mu.Unlock()

	if _, err := peerConnection.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return &playback.NegotiationError{Reason: "adding video transceiver", Err: err}
	}

	if err := t.addAudio(peerConnection); err != nil {
		return &playback.NegotiationError{Reason: "adding audio transceiver", Err: err}
	}

	peerConnection.OnTrack(t.onTrack)
	peerConnection.OnICEConnectionStateChange(t.onICEState)

	offer, err := peerConnection.CreateOffer(nil)
	if err != nil {
		return &playback.NegotiationError{Reason: "creating offer", Err: err}
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConnection)
	if err = peerConnection.SetLocalDescription(offer); err != nil {
		return &playback.NegotiationError{Reason: "setting local description", Err: err}
	}

	// Post whatever candidates we have once the cap elapses.
	select {
	case <-gatherComplete:
	case <-time.After(t.client.timing.GatherTimeout):
		t.logger.Debugln("ICE gathering still running, sending partial offer")
	case <-t.ctx.Done():
		return t.ctx.Err()
	}

	// The offer outlives Close so a session the server creates meanwhile
	// can still be deleted.
	signalCtx, cancel := context.WithTimeout(context.Background(), t.client.timing.SignalingTimeout)
	defer cancel()

	answer, location, err := postOffer(signalCtx, t.client.httpClient, t.desc.WebRTCURL, peerConnection.LocalDescription().SDP)
	if err != nil {
		if t.ctx.Err() != nil {
			return t.ctx.Err()
		}
		return err
	}

	t.mu.Lock()
	closed := t.closed
	if !closed {
		t.location = location
	}
	t.mu.Unlock()

	if closed {
		if location != "" {
			deleteSession(signalCtx, t.client.httpClient, location)
		}
		return context.Canceled
	}

	if err := peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		SDP:  answer,
		Type: webrtc.SDPTypeAnswer,
	}); err != nil {
		return &playback.NegotiationError{Reason: "setting remote description", Err: err}
	}

	t.mu.Lock()
	if !t.closed && !t.connected {
		t.connectTimer = time.AfterFunc(t.client.timing.ConnectTimeout, t.onConnectTimeout)
	}
	t.mu.Unlock()

	return nil
}

// addAudio offers the microphone in talk mode and degrades to receive-only
// audio when it cannot be opened.
func (t *Transport) addAudio(peerConnection *webrtc.PeerConnection) error {
	if t.client.talk && t.client.mic != nil {
		if err := t.addMicrophone(peerConnection); err != nil {
			t.logger.Warnln("microphone unavailable, continuing receive-only:", err)
		} else {
			return nil
		}
	}

	_, err := peerConnection.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (t *Transport) addMicrophone(peerConnection *webrtc.PeerConnection) error {
	mic, err := t.client.mic.Open()
	if err != nil {
		return err
	}

	transceiver, err := peerConnection.AddTransceiverFromTrack(mic.Track(), webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		mic.Stop()
		return err
	}

	t.mu.Lock()
	t.mic = mic
	t.mu.Unlock()

	go drainRTCP(transceiver.Sender())
	return nil
}

// drainRTCP keeps the sender's interceptors running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *Transport) onTrack(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	info := trackInfo(remoteTrack)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	first := t.stream == nil
	if first {
		t.stream = playback.NewMediaStream(uuid.NewString(), t.closePeer)
		t.removeSink = t.stream.AddSink(t.sink)
	}
	stream := t.stream
	t.mu.Unlock()

	stream.AddTrack(info)
	stream.SetDetails(streamDetails(stream.Tracks()))
	t.logger.WithField("codec", info.Codec).Debugln("remote track started")

	if first {
		t.emit(func() {
			t.events.Stream(stream)
			t.events.Status(playback.StateOnline)
		})
	}

	go t.readTrack(remoteTrack, stream, info.Kind)
}

// readTrack forwards payloads to every sink of the stream until the peer
// connection closes.
func (t *Transport) readTrack(remoteTrack *webrtc.TrackRemote, stream *playback.MediaStream, kind playback.MediaKind) {
	for {
		pkt, _, err := remoteTrack.ReadRTP()
		if err != nil {
			return
		}
		if kind == playback.MediaVideo {
			t.videoBytes.Add(uint64(len(pkt.Payload)))
		}
		if err := stream.WriteMedia(kind, pkt.Payload); err != nil {
			t.logger.Debugln("sink rejected media:", err)
		}
	}
}

func (t *Transport) onICEState(state webrtc.ICEConnectionState) {
	t.logger.Debugln("ICE connection state:", state.String())

	switch state {
	case webrtc.ICEConnectionStateFailed:
		t.fail(&playback.NegotiationError{Reason: "ICE connection failed"})
	case webrtc.ICEConnectionStateDisconnected:
		t.emit(func() { t.events.Status(playback.StateRetrying) })
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		t.mu.Lock()
		t.connected = true
		if t.connectTimer != nil {
			t.connectTimer.Stop()
		}
		t.mu.Unlock()
		t.emit(func() { t.events.Status(playback.StateOnline) })
	}
}

func (t *Transport) onConnectTimeout() {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		t.fail(&playback.NegotiationError{Reason: "connection timeout"})
	}
}

// inboundVideoBytes reads the received video byte count from the stats
// report, falling back to what the track readers have seen.
func (t *Transport) inboundVideoBytes() uint64 {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()

	var total uint64
	if pc != nil {
		for _, s := range pc.GetStats() {
			switch stats := s.(type) {
			case webrtc.InboundRTPStreamStats:
				if stats.Kind == "video" {
					total += stats.BytesReceived
				}
			case *webrtc.InboundRTPStreamStats:
				if stats.Kind == "video" {
					total += stats.BytesReceived
				}
			}
		}
	}

	if read := t.videoBytes.Load(); read > total {
		return read
	}
	return total
}

// BytesReceived returns the inbound video byte count.
func (t *Transport) BytesReceived() uint64 {
	return t.inboundVideoBytes()
}

// emit runs fn unless the transport has been closed.
func (t *Transport) emit(fn func()) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if !closed {
		fn()
	}
}

// fail reports the first fatal error. Later errors are dropped.
func (t *Transport) fail(err error) {
	t.mu.Lock()
	if t.closed || t.failed {
		t.mu.Unlock()
		return
	}
	t.failed = true
	if t.connectTimer != nil {
		t.connectTimer.Stop()
	}
	t.mu.Unlock()

	t.logger.Warnln("webrtc transport failed:", err)
	t.events.Fail(err)
}

// Close tears the connection down. The peer connection closes when the
// last borrower of the MediaStream lets go. Safe to call more than once.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancel()
	if t.connectTimer != nil {
		t.connectTimer.Stop()
	}
	stream, mic, removeSink := t.stream, t.mic, t.removeSink
	t.mu.Unlock()

	if removeSink != nil {
		removeSink()
	}

	if mic != nil {
		mic.Stop()
	}

	if stream != nil {
		stream.Release()
	} else {
		t.closePeer()
	}

	t.logger.Debugln("webrtc transport closed")
}

// closePeer closes the peer connection and ends the WHEP session.
func (t *Transport) closePeer() {
	t.mu.Lock()
	pc, location := t.pc, t.location
	t.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			t.logger.Debugln("closing peer connection:", err)
		}
	}

	if location != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), t.client.timing.SignalingTimeout)
			defer cancel()
			deleteSession(ctx, t.client.httpClient, location)
		}()
	}
}
