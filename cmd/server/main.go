// Package main provides the STI API HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/sti-api/internal/adapter/cache"
	"go.ngs.io/sti-api/internal/adapter/store/netcdf"
	"go.ngs.io/sti-api/internal/adapter/store/s3"
	"go.ngs.io/sti-api/internal/adapter/store/sti"
	"go.ngs.io/sti-api/internal/config"
	"go.ngs.io/sti-api/internal/domain"
	httpHandler "go.ngs.io/sti-api/internal/http"
	"go.ngs.io/sti-api/internal/logging"
	"go.ngs.io/sti-api/internal/observability"
	"go.ngs.io/sti-api/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("sti-api version %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	gin.SetMode(gin.ReleaseMode)

	logging.Info().
		Str("version", version).
		Str("bucket", cfg.S3.Bucket).
		Str("region", cfg.S3.Region).
		Str("prefix", cfg.STI.BasePrefix).
		Str("cache_dir", cfg.Cache.Dir).
		Msg("Starting STI API server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	objectStore, err := s3.New(ctx, s3.Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create S3 client")
	}

	metrics := observability.NewMetrics()
	keys := domain.KeyBuilder{
		Bucket:     cfg.S3.Bucket,
		BasePrefix: cfg.STI.BasePrefix,
		IndexName:  cfg.STI.IndexName,
		RegionName: cfg.STI.RegionName,
	}

	// One decode lock for the whole process.
	decoder := sti.NewSerialDecoder(netcdf.NewDecoder(), metrics)

	metadata := cache.New[[]string](cfg.Cache.MetadataTTL,
		cache.WithMaxEntries(cfg.Cache.MetadataSize),
		cache.WithLookupHook(func(hit bool) {
			if hit {
				metrics.MetadataCache.WithLabelValues("hit").Inc()
			} else {
				metrics.MetadataCache.WithLabelValues("miss").Inc()
			}
		}),
	)
	catalog := sti.NewCatalog(objectStore, keys, metadata, metrics)

	localCache := sti.NewLocalCache(objectStore, keys, decoder, sti.CacheConfig{
		Dir:         cfg.Cache.Dir,
		MinSize:     cfg.Cache.MinFileSize,
		LockTimeout: cfg.Cache.LockTimeout,
	}, metrics)
	loader := sti.NewLoader(localCache, decoder, cfg.STI.IndexName, cfg.Cache.LateDecodeRefetch, metrics)

	stiUC := usecase.NewSTIUseCase(catalog, loader, keys, loader.Canonical())

	router := httpHandler.SetupRouter(stiUC, httpHandler.RouterConfig{
		CORSOrigins: cfg.Security.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("STI API Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  sti-api [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  CONFIG_PATH             Optional YAML config file")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  S3_BUCKET_NAME          Bucket holding STI files (default: pangu-mvp-data)")
	fmt.Println("  AWS_REGION              Bucket region (default: us-east-1)")
	fmt.Println("  S3_ENDPOINT             Custom S3 endpoint, e.g. MinIO (optional)")
	fmt.Println("  STI_BASE_PREFIX         Key prefix of the STI tree (default: indices/sti/)")
	fmt.Println("  STI_INDEX_NAME          Index and canonical variable name (default: sti)")
	fmt.Println("  STI_REGION_NAME         Region used in file names (default: chile)")
	fmt.Println("  CACHE_DIR               Local file cache directory (default: system temp dir)")
	fmt.Println("  METADATA_CACHE_TTL      Run/step listing cache TTL (default: 5m)")
	fmt.Println("  LOCK_TIMEOUT            Cache file lock timeout (default: 60s)")
	fmt.Println("  LATE_DECODE_REFETCH     Refetches after a cached file fails to decode (default: 1)")
	fmt.Println("  CORS_ORIGINS            Comma-separated list of allowed origins (default: *)")
	fmt.Println("  LOG_LEVEL, LOG_FORMAT   Logging (default: info, json)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                    Health check")
	fmt.Println("  GET /metrics                   Prometheus metrics")
	fmt.Println("  GET /v1/sti/runs               List runs")
	fmt.Println("  GET /v1/sti/runs/:run/steps    List steps of a run")
	fmt.Println("  GET /v1/sti/latest             Latest run and its steps")
	fmt.Println("  GET /v1/sti/grid               Bounding-box subset")
	fmt.Println("  GET /v1/sti/summary            Grid statistics")
	fmt.Println("  GET /v1/sti/point              Value at a point")
	fmt.Println("  GET /v1/sti/source             Remote key and existence")
	fmt.Println()
}
