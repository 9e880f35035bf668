// Command fsck runs the blob store orphan sweep against the configured
// metadata store, either once or on a recurring interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lgulliver/lodestone/internal/blobstore"
	"github.com/lgulliver/lodestone/internal/fsck"
	"github.com/lgulliver/lodestone/internal/metadatastore"
	"github.com/lgulliver/lodestone/internal/metadatastore/memory"
	"github.com/lgulliver/lodestone/internal/metadatastore/redisstore"
	"github.com/lgulliver/lodestone/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		logOnly = flag.Bool("log-only", false, "Report reclaimable directories without deleting them")
		once    = flag.Bool("once", false, "Run a single sweep and exit instead of running on cfg's interval")
		grace   = flag.Duration("grace", 0, "Override the configured grace period (0 keeps the configured value)")
	)
	flag.Parse()

	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	if *logOnly {
		cfg.Fsck.LogOnly = true
	}
	if *grace > 0 {
		cfg.Fsck.GracePeriod = *grace
	}

	blobs, err := blobstore.NewLocal(cfg.Storage.LocalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	metadataStore, closeMetadata := newMetadataStore(cfg)
	defer closeMetadata()

	sweeper := fsck.New(blobs, metadataStore, cfg.Fsck.GracePeriod, cfg.Fsck.LogOnly)

	if *once {
		if err := sweeper.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("fsck sweep failed")
		}
		return
	}

	fmt.Printf("running fsck every %s (grace=%s, log_only=%v); press ctrl-c to stop\n",
		cfg.Fsck.Interval, cfg.Fsck.GracePeriod, cfg.Fsck.LogOnly)

	if err := sweeper.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("initial fsck sweep failed")
	}
	stop := sweeper.RunPeriodically(cfg.Fsck.Interval)
	defer stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("stopping fsck")
}

// newMetadataStore picks the metadata store implementation cfg names. The
// returned closer releases any Redis connection opened.
func newMetadataStore(cfg *config.Config) (metadatastore.MetadataStore, func()) {
	if cfg.MetadataBackend == "memory" {
		log.Warn().Msg("fsck against an in-memory metadata store only makes sense within this process's lifetime")
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

	return redisstore.New(client, cfg.Retry.Window), func() { client.Close() }
}
