// Package main wires together the progress service binary.
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

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coursekit/genprogress/internal/api"
	"github.com/coursekit/genprogress/internal/archive"
	"github.com/coursekit/genprogress/internal/config"
	"github.com/coursekit/genprogress/internal/ingest"
	"github.com/coursekit/genprogress/internal/logging"
	"github.com/coursekit/genprogress/internal/notify"
	"github.com/coursekit/genprogress/internal/notify/sinks"
	"github.com/coursekit/genprogress/internal/registry"
	"github.com/coursekit/genprogress/internal/store"
	storememory "github.com/coursekit/genprogress/internal/store/memory"
	"github.com/coursekit/genprogress/internal/store/postgres"
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
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoClose, err := buildRepository(ctx, cfg)
	if err != nil {
		logger.Fatal("snapshot repository init failed", zap.Error(err))
	}
	defer repoClose()

	blobStore, archiveClose, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}
	defer archiveClose()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(promReg)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}

	hubSinks := []notify.Sink{
		sinks.NewLogSink(logger.Named("updates")),
		promSink,
		sinks.NewStoreSink(repo, logger.Named("store_sink")),
	}
	if cfg.PubSub.Enabled && cfg.PubSub.TopicID != "" {
		publisher, pubErr := sinks.NewTopicPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if pubErr != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(pubErr))
		}
		hubSinks = append(hubSinks, sinks.NewPubSubSink(publisher))
	}

	hub := notify.NewHub(notify.Config{
		BufferSize:      cfg.Hub.BufferSize,
		MaxBatchUpdates: cfg.Hub.MaxBatchUpdates,
		MaxBatchWait:    cfg.Hub.MaxBatchWait(),
		SinkTimeout:     cfg.Hub.SinkTimeout(),
		Logger:          logger.Named("hub"),
	}, hubSinks...)

	reg := registry.New(registry.Config{
		Emitter: hub,
		Archive: blobStore,
		Logger:  logger.Named("registry"),
	})

	if cfg.PubSub.Enabled {
		receiver, recvErr := ingest.NewGoogleReceiver(ctx, cfg.PubSub.ProjectID, cfg.PubSub.SubscriptionID)
		if recvErr != nil {
			logger.Fatal("pubsub receiver init failed", zap.Error(recvErr))
		}
		defer func() {
			if closeErr := receiver.Close(); closeErr != nil {
				logger.Warn("pubsub receiver close failed", zap.Error(closeErr))
			}
		}()
		subscriber := ingest.NewSubscriber(receiver, reg, logger.Named("ingest"))
		go func() {
			logger.Info("event ingestion started",
				zap.String("subscription", cfg.PubSub.SubscriptionID))
			if runErr := subscriber.Run(ctx); runErr != nil {
				logger.Error("event ingestion stopped", zap.Error(runErr))
				stop()
			}
		}()
	}

	runHandler := api.NewRunHandler(reg, repo, logger.Named("api"))
	apiServer := api.NewServer(
		runHandler,
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		api.AuthConfig{Enabled: cfg.Auth.Enabled, APIKey: cfg.Auth.APIKey},
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildRepository(ctx context.Context, cfg config.Config) (store.SnapshotRepository, func(), error) {
	switch cfg.Store.Provider {
	case "memory":
		return storememory.New(), func() {}, nil
	case "postgres":
		rs, err := postgres.NewRunStore(ctx, postgres.Config{
			DSN:      cfg.Store.DSN,
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store provider %q", cfg.Store.Provider)
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (archive.Store, func(), error) {
	switch cfg.Archive.Provider {
	case "none":
		return nil, func() {}, nil
	case "memory":
		return archive.NewMemoryStore(), func() {}, nil
	case "local":
		ls, err := archive.NewLocalStore(cfg.Archive.BaseDir)
		if err != nil {
			return nil, nil, err
		}
		return ls, func() {}, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		gs, err := archive.NewGCSStore(client, cfg.Archive.Bucket)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return gs, func() {
			if closeErr := gs.Close(); closeErr != nil {
				zap.L().Warn("gcs client close failed", zap.Error(closeErr))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}
