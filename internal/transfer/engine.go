package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hookstore/hookstore/internal/chunker"
	"github.com/hookstore/hookstore/internal/endpoint"
	"github.com/hookstore/hookstore/internal/storage"
)

// ErrOperationFailed is returned when an upload or download is aborted.
// Partial locators and scratch data are always discarded; no partially
// transferred file is ever committed or left on disk.
var ErrOperationFailed = errors.New("transfer operation failed")

// Engine orchestrates chunked transfers: it fans uploads out across the
// endpoint pool in bounded batches and fans downloads out into
// ordinal-indexed scratch storage before the merge.
type Engine struct {
	pool             *endpoint.Pool
	client           endpoint.Client
	workDir          string
	batchSize        int
	fetchConcurrency int
	retry            Policy
	tracker          *Tracker
	log              *logrus.Logger
}

// NewEngine creates a transfer engine. batchSize bounds concurrent
// uploads per batch; fetchConcurrency bounds concurrent downloads, with
// zero meaning all locators at once.
func NewEngine(pool *endpoint.Pool, client endpoint.Client, workDir string, batchSize, fetchConcurrency int, retry Policy, log *logrus.Logger) *Engine {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Engine{
		pool:             pool,
		client:           client,
		workDir:          workDir,
		batchSize:        batchSize,
		fetchConcurrency: fetchConcurrency,
		retry:            retry,
		tracker:          NewTracker(),
		log:              log,
	}
}

// Tracker exposes progress for in-flight operations.
func (e *Engine) Tracker() *Tracker {
	return e.tracker
}

// Upload splits src into chunks of chunkSize and uploads them in
// batches of at most batchSize concurrent calls, each routed through
// the pool by its ordinal. The returned locators are in ordinal order.
// If any chunk in a batch fails after retries, in-flight siblings are
// cancelled, the locators gathered so far are discarded, and the whole
// upload fails.
func (e *Engine) Upload(ctx context.Context, src io.Reader, name string, size, chunkSize int64) ([]string, error) {
	total := chunker.ChunkCount(size, chunkSize)

	opID := uuid.New().String()
	e.tracker.Start(opID, name, "upload", total, size)
	defer e.tracker.Finish(opID)

	splitter, err := chunker.NewSplitter(src, chunkSize)
	if err != nil {
		return nil, err
	}

	locators := make([]string, total)
	produced := 0
	batch := make([]chunker.Chunk, 0, e.batchSize)

	for {
		c, err := splitter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if c.Ordinal >= total {
			return nil, fmt.Errorf("%w: source longer than declared size %d", ErrOperationFailed, size)
		}
		produced++
		batch = append(batch, c)
		if len(batch) == e.batchSize {
			if err := e.uploadBatch(ctx, opID, name, batch, locators); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := e.uploadBatch(ctx, opID, name, batch, locators); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
		}
	}

	if produced != total {
		return nil, fmt.Errorf("%w: source yielded %d chunks, expected %d for size %d", ErrOperationFailed, produced, total, size)
	}

	e.log.WithFields(logrus.Fields{
		"file":   name,
		"chunks": total,
		"bytes":  size,
	}).Info("upload complete")
	return locators, nil
}

// uploadBatch uploads one batch concurrently and waits for the whole
// batch. The first failure cancels its siblings.
func (e *Engine) uploadBatch(ctx context.Context, opID, name string, batch []chunker.Chunk, locators []string) error {
	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var errOnce sync.Once
	var batchErr error

	for _, c := range batch {
		wg.Add(1)
		go func(c chunker.Chunk) {
			defer wg.Done()

			target, err := e.pool.Assign(c.Ordinal)
			if err != nil {
				errOnce.Do(func() {
					batchErr = err
					cancel()
				})
				return
			}

			chunkName := fmt.Sprintf("%s.%d", name, c.Ordinal)
			var locator string
			err = e.retry.run(bctx, func() error {
				u, err := e.client.Upload(bctx, target, chunkName, bytes.NewReader(c.Data))
				if err != nil {
					return err
				}
				locator = u
				return nil
			})
			if err != nil {
				errOnce.Do(func() {
					batchErr = fmt.Errorf("upload chunk %d: %v", c.Ordinal, err)
					cancel()
				})
				return
			}

			locators[c.Ordinal] = locator
			e.tracker.Add(opID, 1, int64(len(c.Data)))
			e.log.WithFields(logrus.Fields{
				"file":     name,
				"ordinal":  c.Ordinal,
				"endpoint": target,
				"bytes":    len(c.Data),
			}).Debug("chunk uploaded")
		}(c)
	}

	wg.Wait()
	return batchErr
}

// Download fetches every locator into operation-scoped scratch storage
// and merges the chunks into outputPath in ordinal order. Any chunk
// failure aborts the whole download, cancels in-flight fetches, and
// leaves neither a partial output file nor scratch data behind.
func (e *Engine) Download(ctx context.Context, locators []string, name string, size int64, outputPath string) error {
	opID := uuid.New().String()
	e.tracker.Start(opID, name, "download", len(locators), size)
	defer e.tracker.Finish(opID)

	scratch, err := storage.NewScratchStore(e.workDir)
	if err != nil {
		return err
	}
	defer scratch.Cleanup()

	if err := e.fetchAll(ctx, opID, locators, scratch); err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	if err := chunker.Merge(scratch, len(locators), size, outputPath); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"file":   name,
		"chunks": len(locators),
		"bytes":  size,
		"output": outputPath,
	}).Info("download complete")
	return nil
}

// fetchAll retrieves every locator concurrently, bounded by the
// configured fetch concurrency, carrying the ordinal with each fetch so
// completion order never affects merge order.
func (e *Engine) fetchAll(ctx context.Context, opID string, locators []string, scratch *storage.ScratchStore) error {
	if len(locators) == 0 {
		return nil
	}

	limit := e.fetchConcurrency
	if limit <= 0 || limit > len(locators) {
		limit = len(locators)
	}
	sem := make(chan struct{}, limit)

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var errOnce sync.Once
	var fetchErr error

	for ordinal, locator := range locators {
		wg.Add(1)
		go func(ordinal int, locator string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-fctx.Done():
				return
			}
			defer func() { <-sem }()

			err := e.retry.run(fctx, func() error {
				return e.fetchChunk(fctx, opID, locator, ordinal, scratch)
			})
			if err != nil {
				errOnce.Do(func() {
					fetchErr = fmt.Errorf("fetch chunk %d: %v", ordinal, err)
					cancel()
				})
			}
		}(ordinal, locator)
	}

	wg.Wait()
	return fetchErr
}

// fetchChunk streams one locator into its scratch slot. A retried fetch
// truncates the slot, so partial bodies never accumulate.
func (e *Engine) fetchChunk(ctx context.Context, opID, locator string, ordinal int, scratch *storage.ScratchStore) error {
	body, err := e.client.Fetch(ctx, locator)
	if err != nil {
		return err
	}
	defer body.Close()

	n, err := scratch.Put(ordinal, body)
	if err != nil {
		return err
	}

	e.tracker.Add(opID, 1, n)
	e.log.WithFields(logrus.Fields{
		"ordinal": ordinal,
		"bytes":   n,
	}).Debug("chunk fetched")
	return nil
}
