// Command proxy-gateway serves the client-facing HTTP surface of the
// caching, validating Maven proxy.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/lodestone/internal/blobstore"
	"github.com/lgulliver/lodestone/internal/coordinator"
	"github.com/lgulliver/lodestone/internal/downloader"
	"github.com/lgulliver/lodestone/internal/fsck"
	"github.com/lgulliver/lodestone/internal/metadatastore"
	"github.com/lgulliver/lodestone/internal/metadatastore/memory"
	"github.com/lgulliver/lodestone/internal/metadatastore/redisstore"
	"github.com/lgulliver/lodestone/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	log.Info().Msg("starting lodestone proxy gateway")

	d, err := downloader.New(cfg.Upstream.BaseURI, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct upstream downloader")
	}

	blobs, err := blobstore.NewLocal(cfg.Storage.LocalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	metadataStore, closeMetadata := newMetadataStore(cfg)
	defer closeMetadata()

	coord := coordinator.New(d, blobs, metadataStore)

	sweeper := fsck.New(blobs, metadataStore, cfg.Fsck.GracePeriod, cfg.Fsck.LogOnly)
	stopSweeper := sweeper.RunPeriodically(cfg.Fsck.Interval)
	defer stopSweeper()

	router := setupRouter(cfg, coord)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server shutdown complete")
	}
}

// newMetadataStore picks the metadata store implementation cfg names. The
// returned closer releases any Redis connection opened.
func newMetadataStore(cfg *config.Config) (metadatastore.MetadataStore, func()) {
	if cfg.MetadataBackend == "memory" {
		log.Info().Msg("using in-memory metadata store")
		return memory.New(cfg.Retry.Window), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("using redis-backed metadata store")
	return redisstore.New(client, cfg.Retry.Window), func() { client.Close() }
}

func setupRouter(cfg *config.Config, coord *coordinator.Coordinator) *gin.Engine {
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "lodestone-proxy-gateway",
			"time":    time.Now().UTC(),
		})
	})

	repoRoutes(router, coord)

	return router
}
