// Package importer replays legacy per-user result blobs from storage
// through the ingestion pipeline. It runs as a background service
// beside the API server.
package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mlcommons/mobile-results/pkg/api/storage"
	"github.com/mlcommons/mobile-results/pkg/ingest"
)

// defaultConcurrency is the number of blobs ingested in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Importer is a background service that periodically scans legacy blob
// storage and ingests any documents not yet stored.
type Importer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Importer = (*importer)(nil)

type importer struct {
	log         logrus.FieldLogger
	pipeline    *ingest.Pipeline
	reader      storage.Reader
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup

	// processed remembers keys already replayed this process so
	// repeated passes do not re-read every blob. The store's
	// uuid conflict handling keeps replays idempotent regardless.
	mu        sync.Mutex
	processed map[string]struct{}
}

// NewImporter creates a new background legacy importer.
func NewImporter(
	log logrus.FieldLogger,
	pipeline *ingest.Pipeline,
	reader storage.Reader,
	interval time.Duration,
	concurrency int,
) Importer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &importer{
		log:         log.WithField("component", "importer"),
		pipeline:    pipeline,
		reader:      reader,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
		processed:   make(map[string]struct{}),
	}
}

// Start launches a background goroutine that runs an immediate import
// pass and then ticks at the configured interval. The first pass is
// asynchronous so the caller is not blocked.
func (imp *importer) Start(ctx context.Context) error {
	imp.log.WithFields(logrus.Fields{
		"interval":    imp.interval.String(),
		"concurrency": imp.concurrency,
	}).Info("Starting legacy importer")

	imp.wg.Add(1)

	go func() {
		defer imp.wg.Done()

		imp.runPass(ctx)

		ticker := time.NewTicker(imp.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				imp.runPass(ctx)
			case <-imp.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the importer goroutine to stop and waits for it.
func (imp *importer) Stop() error {
	close(imp.done)
	imp.wg.Wait()

	imp.log.Info("Legacy importer stopped")

	return nil
}

// runPass executes one full import pass over legacy storage.
func (imp *importer) runPass(ctx context.Context) {
	start := time.Now()

	keys, err := imp.reader.ListResultKeys(ctx)
	if err != nil {
		imp.log.WithError(err).Warn("Listing legacy result blobs failed")

		return
	}

	pending := imp.pendingKeys(keys)

	imp.log.WithFields(logrus.Fields{
		"storage_blobs": len(keys),
		"pending_blobs": len(pending),
	}).Info("Import pass started")

	if len(pending) == 0 {
		return
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(imp.concurrency)

	var created, skipped atomic.Int64

	for _, key := range pending {
		key := key

		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-imp.done:
				return nil
			default:
			}

			wasCreated, err := imp.importBlob(gCtx, key)
			if err != nil {
				imp.log.WithError(err).
					WithField("key", key).
					Warn("Failed to import legacy blob")

				return nil //nolint:nilerr // log and continue
			}

			if wasCreated {
				created.Add(1)
			} else {
				skipped.Add(1)
			}

			imp.markProcessed(key)

			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		imp.log.WithError(err).Warn("Import pass aborted")

		return
	}

	imp.log.WithFields(logrus.Fields{
		"created":  created.Load(),
		"skipped":  skipped.Load(),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Import pass completed")
}

// importBlob reads one legacy blob and runs it through the ingestion
// pipeline. The reported flag is true when a new row was stored.
func (imp *importer) importBlob(
	ctx context.Context, key string,
) (bool, error) {
	data, err := imp.reader.GetResult(ctx, key)
	if err != nil {
		return false, err
	}

	if data == nil {
		// Deleted between listing and reading. Nothing to do.
		return false, nil
	}

	receipt, err := imp.pipeline.Ingest(ctx, principalFromKey(key), data)
	if err != nil {
		return false, err
	}

	return receipt.Created, nil
}

func (imp *importer) pendingKeys(keys []string) []string {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	pending := make([]string, 0, len(keys))

	for _, key := range keys {
		if _, ok := imp.processed[key]; !ok {
			pending = append(pending, key)
		}
	}

	return pending
}

func (imp *importer) markProcessed(key string) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	imp.processed[key] = struct{}{}
}

// principalFromKey recovers the uploader from the legacy blob layout,
// where each user's documents live under "{user}/...". Blobs at the
// root are attributed to the migration itself.
func principalFromKey(key string) string {
	if idx := strings.IndexByte(key, '/'); idx > 0 {
		return key[:idx]
	}

	return "legacy-import"
}
