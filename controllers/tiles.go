package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/cctvwall/cctvwall/core/viewport"
)

type geometryRequest struct {
	Tile     viewport.Rect `json:"tile"`
	Viewport viewport.Rect `json:"viewport"`
	// Hidden reports the tile as gone regardless of geometry.
	Hidden bool `json:"hidden"`
}

// ReportGeometry feeds a tile layout report from the browser into the
// tile's viewport gate.
func ReportGeometry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req geometryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestHandler(w, err)
		return
	}

	if req.Hidden {
		if err := _console.HideTile(id); err != nil {
			writeError(w, err)
			return
		}
		WriteResponse(w, viewport.Visibility{})
		return
	}

	vis, err := _console.ReportGeometry(id, req.Tile, req.Viewport)
	if err != nil {
		writeError(w, err)
		return
	}
	WriteResponse(w, vis)
}

// OpenViewer opens a full-screen viewer for a tile.
func OpenViewer(w http.ResponseWriter, r *http.Request) {
	v, err := _console.OpenViewer(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, j{
		"id":       v.ID(),
		"tileId":   v.TileID(),
		"borrowed": v.Borrowed(),
		"snapshot": v.Snapshot(),
	})
}

// GetViewer returns the state of an open viewer.
func GetViewer(w http.ResponseWriter, r *http.Request) {
	v, ok := _console.Viewer(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, j{"error": "viewer not found"})
		return
	}
	WriteResponse(w, j{
		"id":       v.ID(),
		"tileId":   v.TileID(),
		"borrowed": v.Borrowed(),
		"snapshot": v.Snapshot(),
	})
}
