package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"streetroll/pkg/logging"
	"streetroll/pkg/metrics"
	"streetroll/pkg/version"
)

// Handlers groups the endpoint handlers mounted by NewServer.
type Handlers struct {
	Routes  *RouteHandler
	Stream  *StreamHandler
	Stats   *StatsHandler
	History *HistoryHandler
	Config  *ConfigHandler
	Metrics *metrics.Collector
}

// NewServer creates and configures the HTTP server.
// shutdown is invoked asynchronously by POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Session and routes
	mux.HandleFunc("POST /api/explore", h.Routes.HandleExplore)
	mux.HandleFunc("POST /api/routes/more", h.Routes.HandleMore)
	mux.HandleFunc("GET /api/routes", h.Routes.HandleList)
	mux.HandleFunc("DELETE /api/routes", h.Routes.HandleReset)
	mux.HandleFunc("GET /api/routes/{id}", h.Routes.HandleGet)
	mux.HandleFunc("POST /api/routes/{id}/cancel", h.Routes.HandleCancel)

	// 3. Progress stream
	if h.Stream != nil {
		mux.Handle("GET /api/routes/stream", h.Stream)
	}

	// 4. Diagnostics
	mux.Handle("GET /api/stats", h.Stats)
	if h.History != nil {
		mux.HandleFunc("GET /api/history", h.History.HandleList)
	}
	if h.Config != nil {
		mux.HandleFunc("/api/config", h.Config.HandleConfig)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}

	// 5. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      withRequestLog(mux, h.Metrics),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// withRequestLog writes one line per request to the request log and records metrics.
func withRequestLog(next http.Handler, mc *metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		mc.ObserveHTTP(r.Method, pattern, rec.status, elapsed)
		logging.RequestLogger.Info("API",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed)
	})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
