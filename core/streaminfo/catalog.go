package streaminfo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cctvwall/cctvwall/models"
)

// AllFilter matches every location or NVR.
const AllFilter = "All"

// Catalog lists cameras from the backend.
type Catalog struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewCatalog creates a camera catalogue client.
func NewCatalog(baseURL, token string, timeout time.Duration) *Catalog {
	return &Catalog{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List returns the cameras visible at location, optionally restricted to one NVR.
func (c *Catalog) List(ctx context.Context, location, nvrID string) ([]models.Camera, error) {
	if location == "" {
		location = AllFilter
	}
	if nvrID == "" {
		nvrID = AllFilter
	}

	q := url.Values{}
	q.Set("location", location)
	q.Set("nvrId", nvrID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream/list?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building camera list request")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "requesting camera list")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("camera list returned status %d", resp.StatusCode)
	}

	var cameras []models.Camera
	if err := json.NewDecoder(resp.Body).Decode(&cameras); err != nil {
		return nil, errors.Wrap(err, "decoding camera list")
	}

	for i := range cameras {
		fillChannel(&cameras[i])
	}

	return cameras, nil
}

// fillChannel derives NVR id and channel from /api/stream/{nvrId}/{channel}/... paths.
func fillChannel(cam *models.Camera) {
	if cam.NVRID != "" || cam.StreamURL == "" {
		return
	}
	u, err := url.Parse(cam.StreamURL)
	if err != nil {
		return
	}
	idx := strings.Index(u.Path, streamPathPrefix)
	if idx < 0 {
		return
	}
	parts := strings.Split(strings.TrimPrefix(u.Path[idx:], streamPathPrefix), "/")
	if len(parts) < 2 {
		return
	}
	channel, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}
	cam.NVRID = parts[0]
	cam.Channel = channel
}
