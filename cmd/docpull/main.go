// Package main wires together the docpull service binary.
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

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tangentleman/docpull/internal/api"
	"github.com/tangentleman/docpull/internal/batch"
	"github.com/tangentleman/docpull/internal/blob/gcs"
	"github.com/tangentleman/docpull/internal/blob/local"
	blobmemory "github.com/tangentleman/docpull/internal/blob/memory"
	"github.com/tangentleman/docpull/internal/breaker"
	"github.com/tangentleman/docpull/internal/cache"
	"github.com/tangentleman/docpull/internal/classify"
	"github.com/tangentleman/docpull/internal/clock/system"
	"github.com/tangentleman/docpull/internal/config"
	"github.com/tangentleman/docpull/internal/discovery"
	"github.com/tangentleman/docpull/internal/fetcher"
	collyfetcher "github.com/tangentleman/docpull/internal/fetcher/colly"
	headlessfetcher "github.com/tangentleman/docpull/internal/fetcher/headless"
	"github.com/tangentleman/docpull/internal/id/token"
	"github.com/tangentleman/docpull/internal/kv"
	kvmemory "github.com/tangentleman/docpull/internal/kv/memory"
	kvpostgres "github.com/tangentleman/docpull/internal/kv/postgres"
	"github.com/tangentleman/docpull/internal/logging"
	"github.com/tangentleman/docpull/internal/metrics"
	"github.com/tangentleman/docpull/internal/orchestrator"
	pubmemory "github.com/tangentleman/docpull/internal/publisher/memory"
	pubgcp "github.com/tangentleman/docpull/internal/publisher/pubsub"
	"github.com/tangentleman/docpull/internal/registry"
	"github.com/tangentleman/docpull/internal/scrape"
	"github.com/tangentleman/docpull/internal/sites"
	"github.com/tangentleman/docpull/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := newKVStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init kv store: %w", err)
	}
	defer store.Close()

	siteRegistry, err := sites.NewRegistry(cfg.Sites)
	if err != nil {
		return fmt.Errorf("load sites: %w", err)
	}

	clock := system.New()
	contentCache := cache.New(store, clock)
	tracker := breaker.New(store, clock, cfg.Scraper.ErrorThreshold, cfg.ErrorExpiry())
	jobRegistry := registry.New(store, clock, token.New(), logger.Named("registry"))
	classifier := classify.New(siteRegistry, contentCache, logger.Named("classify"))
	planner := batch.NewPlanner(cfg.Scraper.WorkerBudget)

	pageFetcher, closeFetchers, err := newFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("init fetchers: %w", err)
	}
	defer closeFetchers()

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer closePublisher()

	w := worker.New(jobRegistry, contentCache, tracker, pageFetcher, siteRegistry, archive, logger.Named("worker"))
	orch := orchestrator.New(classifier, planner, jobRegistry, w, tracker, publisher, orchestrator.Config{
		DefaultMaxAge:   cfg.DefaultMaxAge(),
		Delay:           cfg.Delay(),
		CompletionTopic: cfg.PubSub.TopicName,
	}, logger.Named("orchestrator"))

	apiServer := api.NewServer(api.Deps{
		Orchestrator: orch,
		Registry:     jobRegistry,
		Sites:        siteRegistry,
		Cache:        contentCache,
		Fetcher:      pageFetcher,
		Links:        discovery.New(pageFetcher, siteRegistry, logger.Named("discovery")),
		Clock:        clock,
	}, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	// Workers run detached; give in-flight batches a chance to report.
	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout with workers in flight")
	}
	logger.Info("shutdown complete")
	return nil
}

type closableStore interface {
	kv.Store
	Close()
}

func newKVStore(ctx context.Context, cfg config.Config) (closableStore, error) {
	if cfg.DB.DSN == "" {
		return kvmemory.NewStore(), nil
	}
	return kvpostgres.NewStore(ctx, kvpostgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: int32(cfg.DB.MaxConns), // #nosec G115 -- bounded small config value.
		MinConns: int32(cfg.DB.MinConns), // #nosec G115
	})
}

func newFetcher(cfg config.Config, logger *zap.Logger) (scrape.PageFetcher, func(), error) {
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	var browser scrape.PageFetcher = headlessfetcher.NewNoop()
	closeFn := func() {}
	if cfg.Headless.Enabled {
		chromed, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			browser = chromed
			closeFn = chromed.Close
		}
	}
	return fetcher.NewMux(plain, browser), closeFn, nil
}

func newArchive(ctx context.Context, cfg config.Config) (scrape.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return blobmemory.NewBlobStore(), nil
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return pubmemory.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := pubgcp.New(client)
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("pubsub close failed", zap.Error(err))
		}
	}, nil
}
