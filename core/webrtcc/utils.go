package webrtcc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"

	"github.com/cctvwall/cctvwall/config"
	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/models"
)

const unknownString = "Unknown"

// codecName extracts the codec from a mime type such as "video/H264".
func codecName(mimeType, kind string) string {
	if !strings.HasPrefix(strings.ToLower(mimeType), kind+"/") {
		return ""
	}
	name := mimeType[len(kind)+1:]
	if name == "" {
		return unknownString
	}
	return name
}

func getVideoCodec(track *webrtc.TrackRemote) string {
	return codecName(track.Codec().RTPCodecCapability.MimeType, "video")
}

func getAudioCodec(track *webrtc.TrackRemote) string {
	return codecName(track.Codec().RTPCodecCapability.MimeType, "audio")
}

// iceServers converts the backend list, falling back to the public STUN server.
func iceServers(servers []models.ICEServer) []webrtc.ICEServer {
	var out []webrtc.ICEServer
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	if len(out) == 0 {
		out = []webrtc.ICEServer{{URLs: []string{config.DefaultSTUNServer}}}
	}
	return out
}

// postOffer performs the WHEP exchange and returns the answer SDP and the
// session resource location, if the server sent one.
func postOffer(ctx context.Context, client *http.Client, endpoint, offer string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", "", &playback.NegotiationError{Reason: "building offer request", Err: err}
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", &playback.NegotiationError{Reason: "posting offer", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", &playback.NegotiationError{Reason: "offer rejected", StatusCode: resp.StatusCode}
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", &playback.NegotiationError{Reason: "reading answer", Err: err}
	}
	if err := validateAnswer(answer); err != nil {
		return "", "", err
	}

	return string(answer), resolveLocation(endpoint, resp.Header.Get("Location")), nil
}

func validateAnswer(answer []byte) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(answer); err != nil {
		return &playback.NegotiationError{Reason: "invalid answer sdp", Err: err}
	}
	if len(desc.MediaDescriptions) == 0 {
		return &playback.NegotiationError{Reason: "answer has no media"}
	}
	return nil
}

func resolveLocation(endpoint, location string) string {
	if location == "" {
		return ""
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	u, err := base.Parse(location)
	if err != nil {
		return ""
	}
	return u.String()
}

// deleteSession ends the WHEP session on the gateway. Errors are ignored,
// the gateway expires sessions on its own.
func deleteSession(ctx context.Context, client *http.Client, location string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, location, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
