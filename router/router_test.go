package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctvwall/cctvwall/controllers"
	"github.com/cctvwall/cctvwall/core/console"
	"github.com/cctvwall/cctvwall/core/playback"
	"github.com/cctvwall/cctvwall/metrics"
	"github.com/cctvwall/cctvwall/models"
)

type idleResolver struct{}

func (idleResolver) ResolveCamera(context.Context, models.Camera, bool) (models.StreamDescriptor, error) {
	return models.StreamDescriptor{}, nil
}

type idleTransports struct{}

func (idleTransports) WebRTCSupported() bool { return false }

func (idleTransports) WebRTC(models.StreamDescriptor, playback.MediaSink, playback.Events) playback.Transport {
	return nil
}

func (idleTransports) HLS(string, playback.MediaSink, playback.Events) playback.Transport {
	return nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := console.New(console.Options{
		Cameras: []models.Camera{{ID: "cam-1", Location: "HQ"}, {ID: "cam-2", Location: "Depot"}},
	}, console.Deps{Resolver: idleResolver{}, Transports: idleTransports{}})
	require.NoError(t, c.Load(context.Background()))
	controllers.Setup(c, nil)

	hub := controllers.NewHub(c)
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.NewCollector(c, nil).Register(reg))

	handler, err := New(hub, reg)
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		hub.Close()
		c.Close()
	})
	return server
}

func TestRoutes(t *testing.T) {
	server := newServer(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/cameras", http.StatusOK},
		{http.MethodGet, "/api/overview", http.StatusOK},
		{http.MethodGet, "/api/tiles", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/tiles/cam-1/history", http.StatusOK},
		{http.MethodGet, "/api/tiles/nope/history", http.StatusNotFound},
		{http.MethodPost, "/api/tiles/nope/refresh", http.StatusNotFound},
		{http.MethodDelete, "/api/viewers/nope", http.StatusNotFound},
		{http.MethodGet, "/api/tiles/cam-1/refresh", http.StatusMethodNotAllowed},
		{http.MethodOptions, "/api/tiles", http.StatusNoContent},
		{http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, server.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/api/cameras")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsExposed(t *testing.T) {
	server := newServer(t)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "cctvwall_streaminfo_running"))
}
