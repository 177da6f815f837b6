package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-activity/internal/api"
	"github.com/miradorstack/mirador-activity/internal/cache"
	"github.com/miradorstack/mirador-activity/internal/config"
	"github.com/miradorstack/mirador-activity/internal/engine"
	"github.com/miradorstack/mirador-activity/internal/metrics"
	"github.com/miradorstack/mirador-activity/internal/repo"
	"github.com/miradorstack/mirador-activity/internal/services"
	"github.com/miradorstack/mirador-activity/internal/utils"
	ttlcache "github.com/miradorstack/mirador-activity/pkg/cache"
)

// store is what both drivers provide to the pipeline and the service facade.
type store interface {
	engine.Store
	services.Catalog
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-activity",
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.String("grpc_address", cfg.Server.GRPCAddress),
		slog.String("store", cfg.Store.Driver),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("driver", cfg.Store.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	results, err := cache.NewResultCache(cfg.Pipeline.CacheSize)
	if err != nil {
		logger.Error("failed to create result cache", slog.Any("error", err))
		os.Exit(1)
	}
	compiler, err := engine.NewCompiler(cfg.Pipeline.Dialect)
	if err != nil {
		logger.Error("failed to create compiler", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(logger, st, nil, results, compiler, engine.Options{
		LabelKey:         cfg.Pipeline.LabelKey,
		TimeColumn:       cfg.Pipeline.TimeColumn,
		ClassName:        cfg.Pipeline.ClassName,
		RequestTimeout:   cfg.Pipeline.RequestTimeout,
		SamplingInterval: cfg.Preprocess.SamplingInterval,
		FallbackInterval: cfg.Preprocess.FallbackInterval,
	})
	if err := metrics.RegisterCache(prometheus.DefaultRegisterer, func() metrics.CacheStats {
		s := pipeline.CacheStats()
		return metrics.CacheStats{Hits: s.Hits, Misses: s.Misses, Evictions: s.Evictions, Entries: s.Len}
	}); err != nil {
		logger.Error("failed to register cache metrics", slog.Any("error", err))
		os.Exit(1)
	}

	activityService := services.NewActivityService(logger, st, pipeline)
	router := api.NewRouter(logger, activityService, api.RouterOptions{
		Dialect:   cfg.Pipeline.Dialect,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})

	server, err := api.NewServer(cfg.Server, router)
	if err != nil {
		logger.Error("failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go server.WatchHealth(ctx, logger, 15*time.Second, activityService.Healthy)

	go func() {
		logger.Info("serving classifiers",
			slog.String("http_address", server.HTTPAddress()),
			slog.String("grpc_address", server.GRPCAddress()),
		)
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-activity stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		sqlite, err := repo.NewSQLiteStore(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.SQLite.SeedRows > 0 {
			points := repo.SyntheticDeviceMotion(cfg.Store.SQLite.SeedRows, time.Now().Add(-time.Hour), cfg.Pipeline.LabelKey)
			if err := sqlite.WritePoints(ctx, points); err != nil {
				sqlite.Close()
				return nil, nil, err
			}
			logger.Info("seeded sqlite store", slog.Int("points", len(points)), slog.String("measurement", repo.DeviceMotionMeasurement))
		}
		return sqlite, func() { sqlite.Close() }, nil
	default:
		influx := repo.NewInfluxClient(repo.InfluxConfig{
			BaseURL:  cfg.Store.InfluxDB.URL,
			Database: cfg.Store.InfluxDB.Database,
			Username: cfg.Store.InfluxDB.Username,
			Password: cfg.Store.InfluxDB.Password,
			Timeout:  cfg.Store.InfluxDB.Timeout,
		}, ttlcache.NewTTLCache(cfg.Store.DiscoveryEntries, cfg.Store.DiscoveryTTL))
		return influx, func() {}, nil
	}
}
