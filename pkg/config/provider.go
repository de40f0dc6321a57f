package config

import (
	"context"
	"strconv"

	"streetroll/pkg/store"
)

// Provider exposes the settings that can be changed at runtime.
// Values persisted in the state store win over the static file.
type Provider interface {
	LastCity(ctx context.Context) string
	SetLastCity(ctx context.Context, city string) error
	InitialRoutes(ctx context.Context) int
	MoreRoutes(ctx context.Context) int
	MinImagesForDisplay(ctx context.Context) int

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider. st may be nil.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

// LastCity returns the most recently explored city, or the configured default.
func (p *UnifiedProvider) LastCity(ctx context.Context) string {
	return p.getString(ctx, KeyLastCity, p.base.Explorer.DefaultCity)
}

func (p *UnifiedProvider) SetLastCity(ctx context.Context, city string) error {
	if p.store == nil {
		return nil
	}
	return p.store.SetState(ctx, KeyLastCity, city)
}

func (p *UnifiedProvider) InitialRoutes(ctx context.Context) int {
	return p.getPositiveInt(ctx, KeyInitialRoutes, p.base.Explorer.InitialRoutes)
}

func (p *UnifiedProvider) MoreRoutes(ctx context.Context) int {
	return p.getPositiveInt(ctx, KeyMoreRoutes, p.base.Explorer.MoreRoutes)
}

func (p *UnifiedProvider) MinImagesForDisplay(ctx context.Context) int {
	return p.getInt(ctx, KeyMinImagesForDisplay, p.base.Explorer.MinImagesForDisplay)
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getInt(ctx context.Context, key string, fallback int) int {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				return i
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) getPositiveInt(ctx context.Context, key string, fallback int) int {
	if v := p.getInt(ctx, key, fallback); v > 0 {
		return v
	}
	return fallback
}
