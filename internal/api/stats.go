package api

import (
	"net/http"
	"runtime"
	"time"

	"streetroll/pkg/model"
	"streetroll/pkg/tracker"
)

// StatsHandler reports provider usage and session state.
type StatsHandler struct {
	tracker  *tracker.Tracker
	explorer Explorer
	started  time.Time
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(t *tracker.Tracker, e Explorer) *StatsHandler {
	return &StatsHandler{
		tracker:  t,
		explorer: e,
		started:  time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIZeroResult int64 `json:"api_zero"`
	APIFailures   int64 `json:"api_errors"`
	RateLimited   int64 `json:"rate_limited"`
	HitRate       int64 `json:"hit_rate"`
}

type ServerStats struct {
	UptimeSec  int64  `json:"uptime_sec"`
	MemoryMB   uint64 `json:"memory_mb"`
	Goroutines int    `json:"goroutines"`
}

type StatsResponse struct {
	Server    ServerStats                 `json:"server"`
	Routes    map[model.RouteStatus]int   `json:"routes"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Server: ServerStats{
			UptimeSec:  int64(time.Since(h.started).Seconds()),
			MemoryMB:   bToMb(mem.Alloc),
			Goroutines: runtime.NumGoroutine(),
		},
		Routes:    make(map[model.RouteStatus]int),
		Providers: make(map[string]ProviderStatsDTO),
	}

	for _, route := range h.explorer.Routes(0) {
		resp.Routes[route.Status]++
	}

	for provider, stats := range snapshot {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			APISuccess:    stats.APISuccess,
			APIZeroResult: stats.APIZeroResult,
			APIFailures:   stats.APIFailures,
			RateLimited:   stats.RateLimited,
			HitRate:       hitRate,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
