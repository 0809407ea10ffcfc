// Command api runs the curator backend HTTP service.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curator-backend/internal/config"
	"curator-backend/internal/infrastructure/cache"
	"curator-backend/internal/infrastructure/dynamodb"
	"curator-backend/internal/infrastructure/embedding"
	"curator-backend/internal/infrastructure/folderlock"
	"curator-backend/internal/infrastructure/observability"
	"curator-backend/internal/infrastructure/vectorindex"
	httpapi "curator-backend/internal/interfaces/http"
	"curator-backend/internal/repository"
	"curator-backend/internal/repository/memory"
	"curator-backend/internal/service/discovery"
	"curator-backend/internal/service/duplicate"
	"curator-backend/internal/service/matching"
	"curator-backend/internal/service/routing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.New(cfg.Metrics.Namespace, registry)

	artifacts, folders, audit, err := buildRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer, ok := audit.(interface{ Close() }); ok {
		defer closer.Close()
	}
	review := memory.NewReviewQueue()

	var index vectorindex.Index = vectorindex.NewMemoryIndex(logger)
	index = vectorindex.NewBreakerIndex(vectorindex.NewRetryIndex(index, cfg.Retry, logger), logger)

	var embedder embedding.Provider = embedding.NewStubProvider(cfg.Embedding.Dimensions, cfg.Embedding.Model)
	embedder = embedding.NewRateLimitedProvider(embedder, cfg.Embedding)

	matcher := matching.NewService(index, folders, cfg.Matching, logger)
	duplicates := duplicate.NewService(index, artifacts, cfg.Matching, cfg.Routing.DuplicateThreshold, logger)
	disc := discovery.NewService(index, folders, cache.New(cfg.Cache, logger), cfg.Discovery, logger)

	engine := routing.NewEngine(routing.Dependencies{
		Duplicates:  duplicates,
		Matcher:     matcher,
		Index:       index,
		Artifacts:   artifacts,
		Folders:     folders,
		Audit:       audit,
		Review:      review,
		Locks:       folderlock.NewGuard(),
		Metrics:     metrics,
		Logger:      logger,
		OnPlacement: func(folderID string) { disc.InvalidateFolder(folderID) },
	}, cfg.Routing, cfg.Clustering)

	watcher, err := config.NewWatcher(configPath, cfg, logger)
	if err != nil {
		logger.Warn("configuration hot reload disabled", zap.Error(err))
	} else {
		watcher.Subscribe(engine.ApplyConfig)
		watcher.Start()
		defer watcher.Stop()
	}

	handler := httpapi.NewHandler(engine, disc, matcher, folders, artifacts, audit, embedder, logger)
	router := httpapi.NewRouter(handler, cfg, registry, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("databaseProvider", cfg.Database.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (
	repository.ArtifactRepository, repository.FolderRepository, repository.AuditRepository, error,
) {
	switch cfg.Database.Provider {
	case "dynamodb":
		client, err := dynamodb.NewClient(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		return dynamodb.NewArtifactRepository(client, cfg.Database.ArtifactTable),
			dynamodb.NewFolderRepository(client, cfg.Database.FolderTable),
			dynamodb.NewAuditRepository(client, cfg.Database.AuditTable, logger),
			nil
	default:
		return memory.NewArtifactRepository(),
			memory.NewFolderRepository(),
			memory.NewAuditRepository(logger),
			nil
	}
}

func buildLogger(cfg config.Logging) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
