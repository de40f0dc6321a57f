package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"streetroll/pkg/config"
	"streetroll/pkg/store"
)

// ConfigHandler handles the runtime-adjustable settings.
type ConfigHandler struct {
	store   store.StateStore
	cfgProv config.Provider
	appCfg  *config.Config
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(st store.StateStore, cfg config.Provider) *ConfigHandler {
	return &ConfigHandler{
		store:   st,
		cfgProv: cfg,
		appCfg:  cfg.AppConfig(),
	}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	LastCity            string `json:"last_city"`
	InitialRoutes       int    `json:"initial_routes"`
	MoreRoutes          int    `json:"more_routes"`
	MinImagesForDisplay int    `json:"min_images_for_display"`
	SampleCount         int    `json:"sample_count"`
	MaxImages           int    `json:"max_images"`
	TracingEnabled      bool   `json:"tracing_enabled"`
}

// ConfigRequest represents the config API request for updates.
// Pointers distinguish zero from missing.
type ConfigRequest struct {
	InitialRoutes       *int `json:"initial_routes,omitempty"`
	MoreRoutes          *int `json:"more_routes,omitempty"`
	MinImagesForDisplay *int `json:"min_images_for_display,omitempty"`
}

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.HandleGetConfig(w, r)
	case http.MethodPut, http.MethodPost:
		h.HandleSetConfig(w, r)
	case http.MethodDelete:
		h.HandleResetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGetConfig returns the current configuration.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.getConfigResponse(r.Context()))
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	return ConfigResponse{
		LastCity:            h.cfgProv.LastCity(ctx),
		InitialRoutes:       h.cfgProv.InitialRoutes(ctx),
		MoreRoutes:          h.cfgProv.MoreRoutes(ctx),
		MinImagesForDisplay: h.cfgProv.MinImagesForDisplay(ctx),
		SampleCount:         h.appCfg.Pipeline.SampleCount,
		MaxImages:           h.appCfg.Pipeline.MaxImages,
		TracingEnabled:      h.appCfg.Tracing.Enabled,
	}
}

// HandleSetConfig validates and persists the submitted settings, then returns the result.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.Body.Close() }()

	var req ConfigRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updates, err := req.updates()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for key, val := range updates {
		if err := h.store.SetState(r.Context(), key, val); err != nil {
			slog.Error("Failed to save setting", "key", key, "error", err)
			http.Error(w, "Failed to save setting", http.StatusInternalServerError)
			return
		}
	}

	h.HandleGetConfig(w, r)
}

// HandleResetConfig drops the runtime overrides so the file values apply again.
// The last explored city is kept.
func (h *ConfigHandler) HandleResetConfig(w http.ResponseWriter, r *http.Request) {
	for _, key := range []string{config.KeyInitialRoutes, config.KeyMoreRoutes, config.KeyMinImagesForDisplay} {
		if err := h.store.DeleteState(r.Context(), key); err != nil {
			slog.Error("Failed to clear setting", "key", key, "error", err)
			http.Error(w, "Failed to clear setting", http.StatusInternalServerError)
			return
		}
	}
	h.HandleGetConfig(w, r)
}

// updates validates the request and maps it to state store entries.
func (req *ConfigRequest) updates() (map[string]string, error) {
	out := make(map[string]string)
	if v := req.InitialRoutes; v != nil {
		if *v < 1 || *v > 50 {
			return nil, fmt.Errorf("initial_routes must be between 1 and 50")
		}
		out[config.KeyInitialRoutes] = strconv.Itoa(*v)
	}
	if v := req.MoreRoutes; v != nil {
		if *v < 1 || *v > 50 {
			return nil, fmt.Errorf("more_routes must be between 1 and 50")
		}
		out[config.KeyMoreRoutes] = strconv.Itoa(*v)
	}
	if v := req.MinImagesForDisplay; v != nil {
		if *v < 0 {
			return nil, fmt.Errorf("min_images_for_display must not be negative")
		}
		out[config.KeyMinImagesForDisplay] = strconv.Itoa(*v)
	}
	return out, nil
}
