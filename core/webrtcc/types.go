package webrtcc

import (
	"net/http"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/cctvwall/cctvwall/config"
)

type (
	// Timing holds the connection policy durations.
	Timing struct {
		GatherTimeout    time.Duration
		StatsInterval    time.Duration
		InactivityTicks  int
		ConnectTimeout   time.Duration
		SignalingTimeout time.Duration
	}

	// Options configures a Client.
	Options struct {
		// Talk offers the microphone as a send-recv audio track.
		Talk       bool
		Microphone Microphone
		HTTPClient *http.Client
		Timing     Timing
	}
)

type (
	// Microphone opens a local audio capture for talk mode.
	Microphone interface {
		Open() (MicrophoneTrack, error)
	}

	// MicrophoneTrack is an open capture. Stop releases the device.
	MicrophoneTrack interface {
		Track() webrtc.TrackLocal
		Stop()
	}
)

// DefaultTiming returns the production policy.
func DefaultTiming() Timing {
	return Timing{
		GatherTimeout:    config.ICEGatherTimeout,
		StatsInterval:    config.StatsInterval,
		InactivityTicks:  config.InactivityTicks,
		ConnectTimeout:   config.ConnectTimeout,
		SignalingTimeout: config.SignalingTimeout,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.GatherTimeout <= 0 {
		t.GatherTimeout = d.GatherTimeout
	}
	if t.StatsInterval <= 0 {
		t.StatsInterval = d.StatsInterval
	}
	if t.InactivityTicks <= 0 {
		t.InactivityTicks = d.InactivityTicks
	}
	if t.ConnectTimeout <= 0 {
		t.ConnectTimeout = d.ConnectTimeout
	}
	if t.SignalingTimeout <= 0 {
		t.SignalingTimeout = d.SignalingTimeout
	}
	return t
}
