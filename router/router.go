package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/controllers"
)

const shutdownTimeout = 5 * time.Second

// New builds the route table. REST responses are compressed; the
// websocket and metrics endpoints are not.
func New(hub *controllers.Hub, gatherer prometheus.Gatherer) (http.Handler, error) {
	api := http.NewServeMux()

	// Catalogue
	api.HandleFunc("GET /api/cameras", controllers.GetCameras)
	api.HandleFunc("GET /api/overview", controllers.GetOverview)

	// Tiles
	api.HandleFunc("GET /api/tiles", controllers.GetTiles)
	api.HandleFunc("POST /api/tiles/{id}/refresh", controllers.RefreshTile)
	api.HandleFunc("POST /api/tiles/{id}/geometry", controllers.ReportGeometry)
	api.HandleFunc("GET /api/tiles/{id}/history", controllers.GetTileHistory)

	// Full-screen viewer
	api.HandleFunc("POST /api/tiles/{id}/viewer", controllers.OpenViewer)
	api.HandleFunc("GET /api/viewers/{id}", controllers.GetViewer)
	api.HandleFunc("DELETE /api/viewers/{id}", controllers.CloseViewer)

	api.HandleFunc("GET /api/health", controllers.GetHealth)

	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", withCORS(compress(api)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", hub.ServeWS)

	return mux, nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves handler on port until ctx ends, then shuts down gracefully.
func Start(ctx context.Context, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("web server is listening on port %d", port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
