package models

// ICEServer is a STUN/TURN entry handed out by the backend.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// StreamDescriptor is the resolved transport information for one camera.
type StreamDescriptor struct {
	WebRTCURL       string      `json:"webRtcUrl,omitempty"`
	HLSURL          string      `json:"hlsUrl,omitempty"`
	RTSPURL         string      `json:"rtspUrl,omitempty"`
	StreamID        string      `json:"streamId,omitempty"`
	MediaMTXEnabled bool        `json:"mediamtxEnabled"`
	ICEServers      []ICEServer `json:"iceServers,omitempty"`

	// DirectURL is a legacy proxied media URL taken from the camera itself.
	DirectURL string `json:"-"`
}

// HasSource reports whether anything in the descriptor can be played.
// RTSP is kept for completeness only.
func (d StreamDescriptor) HasSource() bool {
	return d.WebRTCURL != "" || d.HLSURL != "" || d.DirectURL != ""
}

// StreamDetails describes the media carried by a live WebRTC session.
type StreamDetails struct {
	VideoCodec string `json:"videoCodec"`
	AudioCodec string `json:"audioCodec"`
	VideoOnly  bool   `json:"videoOnly"`
}
