package main

import (
	"log/slog"

	"streetroll/pkg/aggregator"
	"streetroll/pkg/batch"
	"streetroll/pkg/cache"
	"streetroll/pkg/config"
	"streetroll/pkg/geocode"
	"streetroll/pkg/imagery"
	"streetroll/pkg/metrics"
	"streetroll/pkg/pipeline"
	"streetroll/pkg/request"
	"streetroll/pkg/routing"
	"streetroll/pkg/session"
	"streetroll/pkg/store"
	"streetroll/pkg/tracker"
)

// Services are the long-lived components shared by the API handlers.
type Services struct {
	Requests *request.Client
	Settings *config.UnifiedProvider
	Sessions *session.Manager
}

func initServices(cfg *config.Config, st *store.SQLiteStore, mc *metrics.Collector) *Services {
	opts := []request.Option{request.WithTimeout(cfg.Request.Timeout.Std())}
	for name, l := range cfg.Request.Providers {
		opts = append(opts, request.WithLimit(name, request.Limit{Workers: l.Workers, Gap: l.Gap.Std()}))
	}
	if cfg.Geocoding.UserAgent != "" {
		opts = append(opts, request.WithUserAgent(cfg.Geocoding.UserAgent))
	}
	geoCache := cache.NewMemory(cfg.Geocoding.CacheTTL.Std(), cfg.Geocoding.CacheSize)
	reqClient := request.New(geoCache, tracker.New(), opts...)

	matcher := imagery.NewMatcher(
		imagery.NewClient(reqClient, cfg.Imagery.BaseURL, cfg.Imagery.AccessToken, cfg.Imagery.Limit),
		imagery.Options{
			SearchHalfSide: cfg.Imagery.SearchHalfSide,
			MaxDistance:    cfg.Imagery.MaxDistance,
			MaxHeadingDiff: cfg.Imagery.MaxHeadingDiff,
			Backoff: request.Backoff{
				Base:       cfg.Imagery.BackoffBase.Std(),
				MaxRetries: cfg.Imagery.MaxRetries,
			},
		},
		mc,
	)
	orch := batch.New(matcher, cfg.Pipeline.BatchSize, cfg.Pipeline.BatchPause.Std(), mc)
	agg := aggregator.New(aggregator.Options{
		MaxImages:     cfg.Pipeline.MaxImages,
		MinDistanceKm: cfg.Pipeline.MinImageDistance.Km(),
	}, mc)
	fetcher := pipeline.New(orch, agg, cfg.Pipeline.SampleCount)

	settings := config.NewProvider(cfg, st)
	mgr := session.NewManager(session.Deps{
		Geocoder: geocode.NewClient(reqClient, cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent),
		Router:   routing.NewClient(reqClient, cfg.Routing.BaseURL, cfg.Routing.Profile),
		Fetcher:  fetcher,
		Store:    st,
		Config:   settings,
		Metrics:  mc,
	})

	slog.Debug("Services initialized",
		"imagery", cfg.Imagery.BaseURL,
		"routing", cfg.Routing.BaseURL,
		"geocoding", cfg.Geocoding.BaseURL,
		"batch_size", orch.Size(),
	)

	return &Services{
		Requests: reqClient,
		Settings: settings,
		Sessions: mgr,
	}
}
