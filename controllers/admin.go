package controllers

import (
	"net/http"
)

// RefreshTile will force-reconnect a single tile.
func RefreshTile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := _console.Refresh(id); err != nil {
		writeError(w, err)
		return
	}
	WriteSimpleResponse(w, true, "refreshing "+id)
}

// CloseViewer will close a full-screen viewer.
func CloseViewer(w http.ResponseWriter, r *http.Request) {
	if err := _console.CloseViewer(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
