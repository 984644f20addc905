package controllers

import (
	"net/http"

	"github.com/cctvwall/cctvwall/metrics"
)

// GetHealth returns host usage, tile states and queue occupancy.
func GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, metrics.CollectHealth(_console))
}
