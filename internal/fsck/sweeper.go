// Package fsck drives the blob store's orphan sweep against the metadata
// store acting as the reference oracle, either as a one-shot run or on a
// recurring ticker.
package fsck

import (
	"context"
	"time"

	"github.com/lgulliver/lodestone/internal/blobstore"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically (or on demand) runs a blob store's Fsck against a
// reference oracle.
type Sweeper struct {
	blobs       blobstore.BlobStore
	refs        blobstore.ReferenceOracle
	gracePeriod time.Duration
	logOnly     bool
}

// New returns a Sweeper that reclaims blob directories older than
// gracePeriod and unreferenced according to refs. When logOnly is set,
// reclaimable directories are reported but never deleted.
func New(blobs blobstore.BlobStore, refs blobstore.ReferenceOracle, gracePeriod time.Duration, logOnly bool) *Sweeper {
	return &Sweeper{blobs: blobs, refs: refs, gracePeriod: gracePeriod, logOnly: logOnly}
}

// Run performs a single sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	start := time.Now()
	err := s.blobs.Fsck(ctx, s.gracePeriod, s.logOnly, s.refs)
	log.Info().Dur("duration", time.Since(start)).Bool("log_only", s.logOnly).Err(err).Msg("fsck sweep complete")
	return err
}

// RunPeriodically runs a sweep every interval until the returned stop
// function is called. The first sweep fires after interval has elapsed,
// not immediately - callers wanting an immediate sweep should call Run
// once themselves first.
func (s *Sweeper) RunPeriodically(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.Run(context.Background()); err != nil {
					log.Error().Err(err).Msg("fsck sweep failed")
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
