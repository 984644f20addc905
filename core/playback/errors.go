package playback

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies playback failures.
type ErrorKind int

const (
	KindResolution ErrorKind = iota
	KindNegotiation
	KindInactivity
	KindPlayback
	KindNoSource
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindNegotiation:
		return "negotiation"
	case KindInactivity:
		return "inactivity"
	case KindPlayback:
		return "playback"
	case KindNoSource:
		return "no_source"
	default:
		return "unknown"
	}
}

// ResolutionError is a failed stream-info lookup.
type ResolutionError struct {
	Ref string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving stream %s: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// NegotiationError is a rejected SDP exchange or an ICE connection that never came up.
type NegotiationError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *NegotiationError) Error() string {
	msg := "webrtc negotiation failed: " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// InactivityError is a connection that is up but carries no video bytes.
type InactivityError struct {
	Stalled time.Duration
}

func (e *InactivityError) Error() string {
	return fmt.Sprintf("webrtc data inactivity (no video for %s)", e.Stalled)
}

// PlaybackError is a fatal HLS error that the engine could not recover from.
type PlaybackError struct {
	Type    string
	Details string
	Err     error
}

func (e *PlaybackError) Error() string {
	msg := fmt.Sprintf("hls %s error: %s", e.Type, e.Details)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// NoSourceError means the descriptor offers nothing playable.
type NoSourceError struct {
	CameraID string
}

func (e *NoSourceError) Error() string {
	return fmt.Sprintf("camera %s: no valid stream source", e.CameraID)
}

// KindOf classifies err. The second result is false for foreign errors.
func KindOf(err error) (ErrorKind, bool) {
	var (
		resolution  *ResolutionError
		negotiation *NegotiationError
		inactivity  *InactivityError
		play        *PlaybackError
		noSource    *NoSourceError
	)
	switch {
	case errors.As(err, &noSource):
		return KindNoSource, true
	case errors.As(err, &resolution):
		return KindResolution, true
	case errors.As(err, &negotiation):
		return KindNegotiation, true
	case errors.As(err, &inactivity):
		return KindInactivity, true
	case errors.As(err, &play):
		return KindPlayback, true
	}
	return 0, false
}

// IsTransportFatal reports whether err ends the current transport and
// should trigger the fallback or retry policy.
func IsTransportFatal(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return true
	}
	return kind == KindNegotiation || kind == KindInactivity || kind == KindPlayback
}
