package webrtcc

import (
	"github.com/pion/webrtc/v3"

	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/models"
)

// trackInfo describes a remote track for the MediaStream.
func trackInfo(track *webrtc.TrackRemote) playback.Track {
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		return playback.Track{ID: track.ID(), Kind: playback.MediaAudio, Codec: getAudioCodec(track)}
	}
	return playback.Track{ID: track.ID(), Kind: playback.MediaVideo, Codec: getVideoCodec(track)}
}

// streamDetails summarises the tracks received so far.
func streamDetails(tracks []playback.Track) models.StreamDetails {
	details := models.StreamDetails{VideoOnly: true}
	for _, t := range tracks {
		switch t.Kind {
		case playback.MediaVideo:
			if details.VideoCodec == "" {
				details.VideoCodec = t.Codec
			}
		case playback.MediaAudio:
			if details.AudioCodec == "" {
				details.AudioCodec = t.Codec
			}
			details.VideoOnly = false
		}
	}
	return details
}
