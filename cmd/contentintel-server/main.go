// Package main provides the standalone sitengine server binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tributary-ai-services/sitengine/middleware"
	"github.com/Tributary-ai-services/sitengine/pkg/catalog"
	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
	"github.com/Tributary-ai-services/sitengine/pkg/logging"
	"github.com/Tributary-ai-services/sitengine/pkg/metrics"
	"github.com/Tributary-ai-services/sitengine/pkg/pipeline"
	"github.com/Tributary-ai-services/sitengine/pkg/resultcache"
	"github.com/Tributary-ai-services/sitengine/pkg/stream"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/sitengine.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("sitengine v%s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("sitengine server starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("service_id", cfg.Service.ID),
		zap.String("environment", cfg.Service.Environment),
	)

	collector := metrics.NewCollector()

	// Engine
	patterns, err := classify.NewPatternCache(cfg.Classification.RegexCacheSize)
	if err != nil {
		return fmt.Errorf("creating pattern cache: %w", err)
	}
	engine := classify.NewEngine(
		classify.WithParallelism(cfg.Classification.Parallelism),
		classify.WithPatternCache(patterns),
		classify.WithLogger(logging.WithComponent(logger, "engine")),
		classify.WithObserver(collector),
	)

	// Detector catalog
	cat := catalog.NewStatic(classify.DetectorSet{Detectors: classify.SamplePresets()})
	if dir := cfg.Classification.CatalogDir; dir != "" {
		cat, err = catalog.New(dir, logging.WithComponent(logger, "catalog"))
		if err != nil {
			return fmt.Errorf("loading detector catalog: %w", err)
		}
		// Compiled patterns of removed detectors are no longer useful
		cat.OnReload(func(classify.DetectorSet) { patterns.Purge() })
		if invalid := engine.FindInvalidDetectors(cat.Current()); len(invalid) > 0 {
			collector.InvalidDetectors(invalid)
			logger.Warn("catalog contains detectors with invalid patterns", zap.Int("count", len(invalid)))
		}
	} else {
		logger.Info("no catalog_dir configured, serving sample presets")
	}

	// Result cache
	cache, err := resultcache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("creating result cache: %w", err)
	}

	// Streamer
	var streamer stream.Streamer
	if cfg.Streaming.Enabled {
		kafkaLogger := logging.WithComponent(logger, "kafka")
		kafka, err := stream.NewKafkaStreamer(stream.ConfigFromSettings(cfg.Streaming),
			stream.WithDeliveryHandler(func(d stream.Delivery) {
				collector.EventDelivered(d.Topic, d.SensitiveTypeID, d.Err)
				if d.Err != nil {
					kafkaLogger.Warn("kafka delivery failed",
						zap.String("event_id", d.EventID),
						zap.String("run_id", d.RunID),
						zap.String("topic", d.Topic),
						zap.String("sensitive_type_id", d.SensitiveTypeID),
						zap.Error(d.Err),
					)
				}
			}),
		)
		if err != nil {
			return fmt.Errorf("creating kafka streamer: %w", err)
		}
		streamer = kafka
	} else {
		local := stream.NewLocalStreamer(stream.ConfigFromSettings(cfg.Streaming))
		streamLogger := logging.WithComponent(logger, "stream")
		local.OnPublish(func(topic string, event stream.ClassificationEvent) {
			streamLogger.Debug("classification event",
				zap.String("topic", topic),
				zap.String("run_id", event.RunID),
				zap.String("sensitive_type_id", event.SensitiveTypeID),
				zap.Int("count", event.Count),
				zap.Int("confidence", event.ConfidenceLevel),
			)
		})
		streamer = local
	}

	processor := pipeline.NewProcessor(engine,
		pipeline.WithConfig(pipeline.ConfigFromSettings(cfg)),
		pipeline.WithCatalog(cat),
		pipeline.WithCache(cache),
		pipeline.WithStreamer(streamer),
		pipeline.WithRecorder(collector),
		pipeline.WithLogger(logging.WithComponent(logger, "pipeline")),
	)
	defer func() {
		if err := processor.Close(); err != nil {
			logger.Error("failed to close processor", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Catalog hot reload
	if cfg.Classification.WatchCatalog && cat.Dir() != "" {
		watcher := catalog.NewWatcher(cat, 0, logging.WithComponent(logger, "catalog"))
		g.Go(func() error {
			// Losing hot reload is not fatal; the loaded catalog keeps serving
			if err := watcher.Watch(gctx); err != nil {
				logger.Error("catalog watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	// Expired entries of the in-memory cache
	if mem, ok := cache.(*resultcache.MemoryCache); ok && cfg.Cache.TTL > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Cache.TTL)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := mem.Purge(); n > 0 {
						logger.Debug("purged expired cache entries", zap.Int("count", n))
					}
				}
			}
		})
	}

	// HTTP server (Gin)
	gin.SetMode(gin.ReleaseMode)
	httpConfig := middleware.DefaultHTTPConfig()
	httpConfig.LivePath = cfg.Health.LivePath
	httpConfig.ReadyPath = cfg.Health.ReadyPath
	handler := middleware.NewHTTPHandler(processor, httpConfig,
		middleware.WithHTTPLogger(logging.WithComponent(logger, "http")),
		middleware.WithHTTPRecorder(collector),
		middleware.WithReadiness(readiness(cache)),
	)
	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.HTTP.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}
	serveHTTP(gctx, g, httpServer, "http", logger)

	// Metrics server (Prometheus)
	metricsMux := http.NewServeMux()
	metricsMux.Handle(cfg.Server.Metrics.Path, collector.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Metrics.Port),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveHTTP(gctx, g, metricsServer, "metrics", logger)

	// gRPC server
	grpcConfig := middleware.DefaultGRPCConfig()
	grpcConfig.MaxRecvMsgSize = cfg.Server.GRPC.MaxRecvMsgSize
	grpcConfig.MaxSendMsgSize = cfg.Server.GRPC.MaxSendMsgSize
	grpcServer, healthServer := middleware.NewGRPCServer(processor, grpcConfig,
		logging.WithComponent(logger, "grpc"), collector)

	lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Server.GRPC.Port))
	if err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("listening for grpc: %w", err)
	}
	g.Go(func() error {
		logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("sitengine server stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// serveHTTP runs srv in g and shuts it down when ctx ends
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, name string, logger *zap.Logger) {
	g.Go(func() error {
		logger.Info(name+" server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// readiness reports the cache backend's reachability when it has one
func readiness(cache resultcache.Cache) func(ctx context.Context) error {
	pinger, ok := cache.(interface{ Ping(ctx context.Context) error })
	if !ok {
		return nil
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("result cache: %w", err)
		}
		return nil
	}
}
