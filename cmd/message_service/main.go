package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lynqchat/golang_services/internal/message_service/adapters/blobstore"
	"github.com/lynqchat/golang_services/internal/message_service/adapters/events"
	"github.com/lynqchat/golang_services/internal/message_service/app"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/lynqchat/golang_services/internal/message_service/repository/memory"
	mongorepo "github.com/lynqchat/golang_services/internal/message_service/repository/mongo"
	pgrepo "github.com/lynqchat/golang_services/internal/message_service/repository/postgres"
	"github.com/lynqchat/golang_services/internal/platform/cache"
	"github.com/lynqchat/golang_services/internal/platform/config"
	"github.com/lynqchat/golang_services/internal/platform/database"
	"github.com/lynqchat/golang_services/internal/platform/logger"
	"github.com/lynqchat/golang_services/internal/platform/messagebroker"
	prefapp "github.com/lynqchat/golang_services/internal/preference_service/app"
	prefdomain "github.com/lynqchat/golang_services/internal/preference_service/domain"
	prefmemory "github.com/lynqchat/golang_services/internal/preference_service/repository/memory"
	prefredis "github.com/lynqchat/golang_services/internal/preference_service/repository/redis"
	"github.com/lynqchat/golang_services/internal/public_api_service/middleware"
	httptransport "github.com/lynqchat/golang_services/internal/public_api_service/transport/http"
)

const serviceName = "message-service"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)
	log.Info("Starting service...", "message_store", cfg.MessageStore, "blob_store", cfg.BlobStore, "feed_source", cfg.FeedSource)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	exit := func(msg string, err error) {
		log.Error(msg, "error", err)
		mainCancel()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		os.Exit(1)
	}

	repo, storeStream, closeStore, err := openMessageStore(mainCtx, cfg, log)
	if err != nil {
		exit("Failed to open message store", err)
	}
	closers = append(closers, closeStore)

	blobs, err := openBlobStore(mainCtx, cfg, log)
	if err != nil {
		exit("Failed to open blob store", err)
	}

	prefRepo, closePrefs, err := openPreferenceStore(mainCtx, cfg)
	if err != nil {
		exit("Failed to open preference store", err)
	}
	closers = append(closers, closePrefs)

	var (
		publishers events.Fanout
		natsClient *messagebroker.NATSClient
	)
	if cfg.NATSEnabled || cfg.FeedSource == "nats" {
		natsClient, err = messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
		if err != nil {
			exit("Failed to connect to NATS", err)
		}
		closers = append(closers, natsClient.Close)
		publishers = append(publishers, events.NewNATSPublisher(natsClient))
		log.Info("NATS connection initialized", "url", cfg.NATSUrl)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messagebroker.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				log.Warn("Kafka producer close failed", "error", err)
			}
		})
		publishers = append(publishers, events.NewKafkaPublisher(producer))
		log.Info("Kafka producer initialized", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	feedStream := storeStream
	if cfg.FeedSource == "nats" {
		feedStream = events.NewNATSChangeStream(natsClient, log)
	}

	scheduler := app.NewDestructScheduler(repo, blobs, publishers, nil, log)
	pipeline := app.NewPipeline(repo, blobs, scheduler, publishers, nil, log)
	receipts := app.NewReadReceiptTracker(repo, publishers, nil, log)
	searcher := app.NewSearcher(repo, log)
	feed := app.NewFeed(repo, domain.FeedLimit, log)
	prefs := prefapp.NewPreferenceService(prefRepo, log)

	validate := validator.New()
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Messages:    httptransport.NewMessageHandler(pipeline, receipts, searcher, prefs, validate, cfg.MaxUploadBytes, log),
		Feed:        httptransport.NewFeedHandler(feed, receipts, 0, log),
		Preferences: httptransport.NewPreferenceHandler(prefs, validate, log),
		JWTSecret:   []byte(cfg.JWTAccessSecret),
		RateLimiter: middleware.NewUserRateLimiter(cfg.SendRatePerMinute),
		BlobBreaker: blobs,
		Logger:      log,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("Starting self-destruct scheduler...")
		return scheduler.Run(groupCtx)
	})

	g.Go(func() error {
		log.Info("Starting live feed...")
		return feed.Run(groupCtx, feedStream)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed to serve", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating HTTP server graceful shutdown...")
		feed.Close()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
			return err
		}
		log.Info("HTTP server has been shut down.")
		return nil
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig)
	case groupErr = <-watchGroup(g):
		if groupErr != nil {
			log.Error("A critical component failed, initiating shutdown", "error", groupErr)
		}
	}

	log.Info("Attempting graceful shutdown...")
	mainCancel()

	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		log.Error("Error during graceful shutdown of components", "error", waitErr)
	}
	if pending := scheduler.Pending(); pending > 0 {
		log.Warn("Self-destruct tasks dropped at shutdown", "count", pending)
	}
	log.Info("Service shutdown complete.")
}

// openMessageStore returns the configured repository and the change stream of that backend.
func openMessageStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.MessageRepository, domain.ChangeStream, func(), error) {
	switch cfg.MessageStore {
	case "memory":
		repo := memory.NewMessageRepository()
		log.Warn("Using in-memory message store; messages are lost on restart")
		return repo, repo, func() {}, nil

	case "mongo":
		client, err := database.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		repo := mongorepo.NewMessageRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection), log)
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		log.Info("MongoDB message store initialized", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return repo, repo, closeFn, nil

	case "postgres":
		pool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := pgrepo.NewMessageRepository(pool, log)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("PostgreSQL message store initialized")
		return repo, pgrepo.NewListener(pool, log), pool.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown message store %q", cfg.MessageStore)
}

func openBlobStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*blobstore.BreakerStore, error) {
	var store domain.BlobStore
	switch cfg.BlobStore {
	case "memory":
		store = blobstore.NewMemoryStore()
	case "s3":
		s3Store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
		log.Info("S3 blob store initialized", "bucket", cfg.S3Bucket, "region", cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown blob store %q", cfg.BlobStore)
	}
	return blobstore.NewBreakerStore(store, blobstore.BreakerSettings{
		Name:        "blob-" + cfg.BlobStore,
		MaxFailures: cfg.BlobBreakerFailures,
		OpenTimeout: cfg.BlobBreakerTimeout,
	}, log), nil
}

func openPreferenceStore(ctx context.Context, cfg *config.Config) (prefdomain.PreferenceRepository, func(), error) {
	switch cfg.PreferenceStore {
	case "memory":
		return prefmemory.NewPreferenceRepository(), func() {}, nil
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return prefredis.NewPreferenceRepository(client), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown preference store %q", cfg.PreferenceStore)
}

// watchGroup returns a channel that receives the result of g.Wait().
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
		close(errCh)
	}()
	return errCh
}
