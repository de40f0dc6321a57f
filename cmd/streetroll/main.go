package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"streetroll/internal/api"
	"streetroll/pkg/config"
	"streetroll/pkg/db"
	"streetroll/pkg/db/maintenance"
	"streetroll/pkg/logging"
	"streetroll/pkg/metrics"
	"streetroll/pkg/observability"
	"streetroll/pkg/probe"
	"streetroll/pkg/store"
	"streetroll/pkg/version"
)

const defaultConfigPath = "configs/streetroll.yaml"

var (
	configPath = flag.String("config", defaultConfigPath, "Path to the YAML config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	// Secrets such as MAPILLARY_ACCESS_TOKEN may live in a local .env file.
	_ = godotenv.Load()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("StreetRoll Started", "version", version.Version)

	shutdownTracing, err := observability.InitTracing(ctx, appCfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.DB.HistoryRetention.Std()); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	mc, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	svcs := initServices(appCfg, st, mc)
	go svcs.Sessions.Run(ctx)

	// Startup Probes
	probes := []probe.Probe{
		probe.Database(dbConn),
		probe.ImageryToken(appCfg.Imagery.AccessToken),
		probe.Endpoint("Geocoder", svcs.Requests, appCfg.Geocoding.BaseURL+"/status"),
	}
	results := probe.Run(ctx, probes)
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	return runServer(ctx, appCfg, svcs, st, mc)
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func runServer(ctx context.Context, cfg *config.Config, svcs *Services, st *store.SQLiteStore, mc *metrics.Collector) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Routes:  api.NewRouteHandler(svcs.Sessions, svcs.Settings),
		Stream:  api.NewStreamHandler(svcs.Sessions),
		Stats:   api.NewStatsHandler(svcs.Requests.Tracker(), svcs.Sessions),
		History: api.NewHistoryHandler(st),
		Config:  api.NewConfigHandler(st, svcs.Settings),
		Metrics: mc,
	}, shutdownFunc)

	return runServerLifecycle(ctx, srv, cfg.Server.MaxConnections, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, maxConns int, quit chan os.Signal) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}

	slog.Info("Starting server", "addr", ln.Addr().String())
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
