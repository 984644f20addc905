package streaminfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/models"
)

const (
	streamPathPrefix = "/api/stream/"
	infoSuffix       = "/info"
)

// Resolver turns camera stream references into transport descriptors.
// Every backend lookup goes through the shared RequestQueue.
type Resolver struct {
	baseURL    string
	token      string
	httpClient *http.Client
	queue      *RequestQueue
}

// NewResolver creates a resolver for the backend at baseURL.
func NewResolver(baseURL, token string, timeout time.Duration, queue *RequestQueue) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		queue: queue,
	}
}

// IsDirectURL reports whether ref can be played as is, without a lookup.
func IsDirectURL(ref string) bool {
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return !strings.HasSuffix(u.Path, infoSuffix)
}

// ResolveCamera returns the descriptor for a camera. Cameras with an NVR
// channel, given or derived from a /api/stream/{nvr}/{ch}/ path, are looked
// up on the backend. Only URLs with no channel reference play as is.
func (r *Resolver) ResolveCamera(ctx context.Context, cam models.Camera, substream bool) (models.StreamDescriptor, error) {
	fillChannel(&cam)
	if cam.NVRID != "" {
		return r.Resolve(ctx, cam.NVRID, cam.Channel, substream)
	}

	if cam.StreamURL != "" && !IsDirectURL(cam.StreamURL) {
		return r.fetch(ctx, cam.ID, r.absolute(cam.StreamURL), substream)
	}

	if IsDirectURL(cam.StreamURL) {
		return models.StreamDescriptor{DirectURL: r.absolute(cam.StreamURL)}, nil
	}

	return models.StreamDescriptor{}, &playback.ResolutionError{
		Ref: cam.ID,
		Err: errors.New("camera has neither a stream url nor an nvr reference"),
	}
}

// Resolve fetches the stream info for an NVR channel.
func (r *Resolver) Resolve(ctx context.Context, nvrID string, channel int, substream bool) (models.StreamDescriptor, error) {
	endpoint := fmt.Sprintf("%s%s%s/%d%s",
		r.baseURL, streamPathPrefix, url.PathEscape(nvrID), channel, infoSuffix)
	return r.fetch(ctx, fmt.Sprintf("%s/%d", nvrID, channel), endpoint, substream)
}

func (r *Resolver) fetch(ctx context.Context, ref, endpoint string, substream bool) (models.StreamDescriptor, error) {
	var desc models.StreamDescriptor

	err := r.queue.Do(ctx, func(ctx context.Context) error {
		u, err := url.Parse(endpoint)
		if err != nil {
			return errors.Wrap(err, "parsing stream info url")
		}
		q := u.Query()
		q.Set("substream", strconv.FormatBool(substream))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return errors.Wrap(err, "building stream info request")
		}
		r.authorize(req)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "requesting stream info")
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return errors.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
			return errors.Wrap(err, "decoding stream info")
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.StreamDescriptor{}, ctx.Err()
		}
		return models.StreamDescriptor{}, &playback.ResolutionError{Ref: ref, Err: err}
	}

	desc.HLSURL = r.absolute(desc.HLSURL)
	log.WithFields(log.Fields{
		"ref":      ref,
		"mediamtx": desc.MediaMTXEnabled,
		"webrtc":   desc.WebRTCURL != "",
		"hls":      desc.HLSURL != "",
	}).Debug("stream info resolved")

	return desc, nil
}

// absolute resolves backend-relative paths against the base URL.
func (r *Resolver) absolute(ref string) string {
	if ref == "" || strings.Contains(ref, "://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return r.baseURL + ref
}

func (r *Resolver) authorize(req *http.Request) {
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
}
