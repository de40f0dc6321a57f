package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvMapillaryToken names the environment variable holding the imagery access token.
const EnvMapillaryToken = "MAPILLARY_ACCESS_TOKEN"

// Config holds the application configuration.
type Config struct {
	Request   RequestConfig   `yaml:"request"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Server    ServerConfig    `yaml:"server"`
	Imagery   ImageryConfig   `yaml:"imagery"`
	Routing   RoutingConfig   `yaml:"routing"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Explorer  ExplorerConfig  `yaml:"explorer"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// RequestConfig holds outbound HTTP settings.
type RequestConfig struct {
	Timeout   Duration                 `yaml:"timeout"`
	Providers map[string]ProviderLimit `yaml:"providers"`
}

// ProviderLimit bounds the traffic sent to one upstream provider.
type ProviderLimit struct {
	Workers int      `yaml:"workers"`
	Gap     Duration `yaml:"gap"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path             string   `yaml:"path"`
	HistoryRetention Duration `yaml:"history_retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string `yaml:"address"`
	MaxConnections int    `yaml:"max_connections"`
}

// ImageryConfig holds settings for the street-level imagery provider.
type ImageryConfig struct {
	BaseURL        string   `yaml:"base_url"`
	AccessToken    string   `yaml:"access_token"`
	SearchHalfSide float64  `yaml:"search_half_side"` // degrees
	Limit          int      `yaml:"limit"`
	MaxDistance    float64  `yaml:"max_distance"` // degrees
	MaxHeadingDiff float64  `yaml:"max_heading_diff"`
	MaxRetries     int      `yaml:"max_retries"`
	BackoffBase    Duration `yaml:"backoff_base"`
}

// RoutingConfig holds settings for the route geometry provider.
type RoutingConfig struct {
	BaseURL string `yaml:"base_url"`
	Profile string `yaml:"profile"`
}

// GeocodingConfig holds settings for city lookup and reverse geocoding.
type GeocodingConfig struct {
	BaseURL   string   `yaml:"base_url"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	CacheSize int      `yaml:"cache_size"`
}

// PipelineConfig holds settings for the per-route image fetch.
type PipelineConfig struct {
	SampleCount      int      `yaml:"sample_count"`
	BatchSize        int      `yaml:"batch_size"`
	BatchPause       Duration `yaml:"batch_pause"`
	MaxImages        int      `yaml:"max_images"`
	MinImageDistance Distance `yaml:"min_image_distance"`
}

// ExplorerConfig holds settings for the multi-route session.
type ExplorerConfig struct {
	DefaultCity         string `yaml:"default_city"`
	InitialRoutes       int    `yaml:"initial_routes"`
	MoreRoutes          int    `yaml:"more_routes"`
	MinImagesForDisplay int    `yaml:"min_images_for_display"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "stdout", "otlp"
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Timeout: Duration(30 * time.Second),
			Providers: map[string]ProviderLimit{
				"mapillary": {Workers: 10},
				"osrm":      {Workers: 1, Gap: Duration(200 * time.Millisecond)},
				"nominatim": {Workers: 1, Gap: Duration(1 * time.Second)},
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:             "data/streetroll.db",
			HistoryRetention: Duration(30 * Day),
		},
		Server: ServerConfig{
			Address:        "localhost:8080",
			MaxConnections: 256,
		},
		Imagery: ImageryConfig{
			BaseURL:        "https://graph.mapillary.com",
			SearchHalfSide: 0.0002,
			Limit:          50,
			MaxDistance:    0.0002,
			MaxHeadingDiff: 30,
			MaxRetries:     3,
			BackoffBase:    Duration(1 * time.Second),
		},
		Routing: RoutingConfig{
			BaseURL: "https://router.project-osrm.org",
			Profile: "driving",
		},
		Geocoding: GeocodingConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			CacheTTL:  Duration(1 * time.Hour),
			CacheSize: 2000,
		},
		Pipeline: PipelineConfig{
			SampleCount:      50,
			BatchSize:        10,
			BatchPause:       Duration(500 * time.Millisecond),
			MaxImages:        100,
			MinImageDistance: Distance(30),
		},
		Explorer: ExplorerConfig{
			InitialRoutes:       5,
			MoreRoutes:          3,
			MinImagesForDisplay: 5,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "stdout",
			Endpoint:    "localhost:4317",
			ServiceName: "streetroll",
			SampleRatio: 1.0,
		},
	}
}

// Load reads the configuration from path, writing defaults if the file does not exist.
// The imagery token falls back to the environment and is never written back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if cfg.Imagery.AccessToken == "" {
		cfg.Imagery.AccessToken = os.Getenv(EnvMapillaryToken)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every setting that would make the pipeline misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.SampleCount < 1 {
		errs = append(errs, fmt.Errorf("pipeline.sample_count must be positive, got %d", c.Pipeline.SampleCount))
	}
	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize))
	}
	if c.Pipeline.MaxImages < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_images must be positive, got %d", c.Pipeline.MaxImages))
	}
	if c.Pipeline.BatchPause < 0 {
		errs = append(errs, errors.New("pipeline.batch_pause must not be negative"))
	}
	if c.Imagery.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("imagery.max_retries must not be negative, got %d", c.Imagery.MaxRetries))
	}
	if c.Imagery.MaxHeadingDiff < 0 || c.Imagery.MaxHeadingDiff > 180 {
		errs = append(errs, fmt.Errorf("imagery.max_heading_diff must be within [0, 180], got %v", c.Imagery.MaxHeadingDiff))
	}
	switch c.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# StreetRoll Configuration
# ------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)
# The Mapillary token may be left empty and supplied as MAPILLARY_ACCESS_TOKEN.

`)
	data = append(header, data...)

	reExporter := regexp.MustCompile(`(?m)^(\s+)exporter:`)
	data = reExporter.ReplaceAll(data, []byte("${1}# Options: stdout, otlp\n${1}exporter:"))

	reHalfSide := regexp.MustCompile(`(?m)^(\s+)search_half_side:`)
	data = reHalfSide.ReplaceAll(data, []byte("${1}# Degrees, not meters\n${1}search_half_side:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
