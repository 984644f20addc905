package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/core/console"
	"github.com/cctvwall/cctvwall/metrics"
)

var (
	_console *console.Console
	_history *metrics.History
)

// Setup hands the handlers the running console and the bitrate history.
// history may be nil, in which case history requests are answered empty.
func Setup(c *console.Console, history *metrics.History) {
	_console = c
	_history = history
}

type j map[string]interface{}

// WriteSimpleResponse will return a message as a response.
func WriteSimpleResponse(w http.ResponseWriter, success bool, message string) {
	status := http.StatusOK
	if !success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, j{"success": success, "message": message})
}

// WriteResponse will return an object as a JSON encoded response.
func WriteResponse(w http.ResponseWriter, response interface{}) {
	writeJSON(w, http.StatusOK, response)
}

// BadRequestHandler will return a 400 with the error message.
func BadRequestHandler(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, j{"error": err.Error()})
}

// InternalErrorHandler will return a 500 with the error message.
func InternalErrorHandler(w http.ResponseWriter, err error) {
	log.Errorln(err)
	writeJSON(w, http.StatusInternalServerError, j{"error": err.Error()})
}

// writeError maps console errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, console.ErrTileNotFound), errors.Is(err, console.ErrViewerNotFound):
		writeJSON(w, http.StatusNotFound, j{"error": err.Error()})
	case errors.Is(err, console.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, j{"error": err.Error()})
	case errors.Is(err, console.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, j{"error": err.Error()})
	default:
		InternalErrorHandler(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnln("unable to write response:", err)
	}
}
