package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/api"
	"github.com/listings/media-pipeline/internal/config"
	"github.com/listings/media-pipeline/internal/lock"
	"github.com/listings/media-pipeline/internal/logging"
	"github.com/listings/media-pipeline/internal/media"
	"github.com/listings/media-pipeline/internal/repository/mongo"
	"github.com/listings/media-pipeline/internal/service"
	"github.com/listings/media-pipeline/internal/storage"
)

// @title Listings API
// @version 1.0
// @description Property listings with image galleries.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logrus.Fatalf("Could not load config: %v", err)
	}
	log := logging.New(cfg.Log)
	log.Info("Starting listings media server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(ctx, cfg.Database.URI)
	if err != nil {
		log.Fatalf("Could not connect to MongoDB: %v", err)
	}
	defer func() {
		log.Info("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.WithError(err).Error("Failed to disconnect MongoDB")
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)

	// --- Ensure Indexes ---
	go func() {
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
			log.WithError(err).Error("Index creation failed")
			return
		}
		log.Info("Index creation process completed.")
	}()

	// --- Initialize Storage ---
	blobStore, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	// --- Initialize Repositories ---
	listingRepo := mongo.NewMongoListingRepository(appDB)
	orphanRepo := mongo.NewMongoOrphanRepository(appDB)

	// --- Initialize Media Pipeline ---
	coordinator := media.NewCoordinator(blobStore,
		media.WithBatchTimeout(cfg.Upload.BatchTimeout),
		media.WithMaxFileSize(cfg.Upload.MaxFileSize),
		media.WithMaxConcurrency(cfg.Upload.MaxConcurrency),
		media.WithCoordinatorLogger(log),
	)
	supervisor := media.NewSupervisor(coordinator, blobStore, orphanRepo,
		media.WithRollbackTimeout(cfg.Upload.RollbackTimeout),
		media.WithSupervisorLogger(log),
	)

	// --- Initialize Services ---
	listingService := service.NewListingService(listingRepo, supervisor, blobStore, log)

	locker, closeLocker := newLocker(ctx, cfg.Redis, log)
	defer closeLocker()
	sweeper := service.NewOrphanSweeper(orphanRepo, supervisor, locker, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize, log)
	go sweeper.Run(ctx)

	// --- Initialize Gin Engine ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log))
	// Whole batches are buffered in memory before the upload starts.
	router.MaxMultipartMemory = cfg.Upload.MaxFileSize

	api.SetupRoutes(router, cfg.JWT.Secret, listingService, cfg.Upload.MaxFileSize)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Leaves room for the upload batch and its rollback.
		WriteTimeout: cfg.Upload.BatchTimeout + cfg.Upload.RollbackTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("Server starting on %s", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe Error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exiting.")
}

// newLocker uses Redis when an address is configured so the sweeper runs on
// one instance at a time, and an in-process lock otherwise.
func newLocker(ctx context.Context, cfg config.RedisConfig, log logrus.FieldLogger) (lock.Locker, func()) {
	if cfg.Address == "" {
		log.Info("No Redis address configured, sweeper lock is in-process")
		return lock.NewLocalLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable at startup, sweeps will fail until it recovers")
	}
	return lock.NewRedisLocker(client), func() { _ = client.Close() }
}
