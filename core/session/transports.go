package session

import (
	"github.com/cctvwall/cctvwall/core/hls"
	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/core/webrtcc"
	"github.com/cctvwall/cctvwall/models"
)

type liveTransports struct {
	rtc    *webrtcc.Client
	player *hls.Player
}

// NewTransports wires the WHEP client and the HLS player. A nil client
// means WebRTC is unavailable and every session goes straight to HLS.
func NewTransports(rtc *webrtcc.Client, player *hls.Player) Transports {
	return &liveTransports{rtc: rtc, player: player}
}

func (t *liveTransports) WebRTCSupported() bool { return t.rtc != nil }

func (t *liveTransports) WebRTC(desc models.StreamDescriptor, sink playback.MediaSink, events playback.Events) playback.Transport {
	return t.rtc.Connect(desc, sink, events)
}

func (t *liveTransports) HLS(url string, sink playback.MediaSink, events playback.Events) playback.Transport {
	return t.player.Play(url, sink, events)
}
