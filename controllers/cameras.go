package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const defaultHistoryWindow = 10 * time.Minute

// GetCameras returns the catalogue filtered by location and nvr.
func GetCameras(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	WriteResponse(w, _console.Cameras(q.Get("location"), q.Get("nvr")))
}

// GetOverview returns online/offline counts grouped by location.
func GetOverview(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, j{
		"overview":  _console.Overview(),
		"locations": _console.Locations(),
		"nvrs":      _console.NVRs(r.URL.Query().Get("location")),
	})
}

// GetTiles returns the state of every tile in grid order.
func GetTiles(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, _console.Snapshots())
}

// GetTileHistory returns the inbound bitrate of a tile. The window is
// given in minutes and defaults to ten.
func GetTileHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := _console.Tile(id); !ok {
		writeJSON(w, http.StatusNotFound, j{"error": "tile not found"})
		return
	}

	window := defaultHistoryWindow
	if v := r.URL.Query().Get("minutes"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			BadRequestHandler(w, errors.Errorf("invalid minutes %q", v))
			return
		}
		window = time.Duration(minutes) * time.Minute
	}

	if _history == nil {
		WriteResponse(w, []interface{}{})
		return
	}

	now := time.Now()
	points, err := _history.Bitrate(id, now.Add(-window), now)
	if err != nil {
		InternalErrorHandler(w, errors.Wrap(err, "unable to read bitrate history"))
		return
	}
	WriteResponse(w, points)
}
