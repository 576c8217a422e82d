package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hookstore/hookstore/internal/chunker"
	"github.com/hookstore/hookstore/internal/history"
	"github.com/hookstore/hookstore/internal/idalloc"
	"github.com/hookstore/hookstore/internal/registry"
	"github.com/hookstore/hookstore/internal/transfer"
)

// Entry is one row of the user-facing file listing.
type Entry struct {
	ID       int
	Filename string
	Size     int64
}

// FileSystem ties the registry, id allocator, and transfer engine into
// the user-facing store and retrieve operations.
type FileSystem struct {
	reg       *registry.Registry
	alloc     *idalloc.Allocator
	engine    *transfer.Engine
	hist      *history.Store // optional
	chunkSize int64
	log       *logrus.Logger
}

// New creates a FileSystem. hist may be nil to disable history logging.
func New(reg *registry.Registry, alloc *idalloc.Allocator, engine *transfer.Engine, hist *history.Store, chunkSize int64, log *logrus.Logger) *FileSystem {
	return &FileSystem{
		reg:       reg,
		alloc:     alloc,
		engine:    engine,
		hist:      hist,
		chunkSize: chunkSize,
		log:       log,
	}
}

// UploadFile splits the file at path into chunks, uploads every chunk,
// and commits the record to the registry only after all chunks have
// locators. On any failure nothing is committed.
func (fs *FileSystem) UploadFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file %s: %w", path, err)
	}
	size := info.Size()

	taken, err := fs.reg.IDs()
	if err != nil {
		return 0, err
	}
	id, err := fs.alloc.Allocate(taken)
	if err != nil {
		return 0, err
	}

	started := time.Now()
	opID := uuid.New().String()

	locators, err := fs.engine.Upload(ctx, f, strconv.Itoa(id), size, fs.chunkSize)
	if err != nil {
		fs.recordHistory(opID, id, info.Name(), history.DirectionUpload, history.StatusFailed, size, 0, started)
		return 0, err
	}

	rec := registry.FileRecord{
		Filename: info.Name(),
		Size:     size,
		URLs:     locators,
	}
	// The id was drawn from a snapshot; a concurrent upload may have
	// committed it since. Reallocate instead of overwriting.
	for {
		err = fs.reg.PutIfAbsent(id, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, registry.ErrIDTaken) {
			fs.recordHistory(opID, id, info.Name(), history.DirectionUpload, history.StatusFailed, size, len(locators), started)
			return 0, err
		}
		taken, err = fs.reg.IDs()
		if err != nil {
			return 0, err
		}
		id, err = fs.alloc.Allocate(taken)
		if err != nil {
			return 0, err
		}
	}

	fs.recordHistory(opID, id, info.Name(), history.DirectionUpload, history.StatusCompleted, size, len(locators), started)
	fs.log.WithFields(logrus.Fields{
		"id":     id,
		"file":   info.Name(),
		"bytes":  size,
		"chunks": len(locators),
	}).Info("file stored")
	return id, nil
}

// DownloadFile looks up id and reassembles the file into downloadDir,
// returning the output path. An unknown id yields registry.ErrNotFound
// without touching the filesystem.
func (fs *FileSystem) DownloadFile(ctx context.Context, id int, downloadDir string) (string, error) {
	rec, err := fs.reg.Get(id)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory %s: %w", downloadDir, err)
	}
	outputPath := filepath.Join(downloadDir, rec.Filename)

	started := time.Now()
	opID := uuid.New().String()

	if err := fs.engine.Download(ctx, rec.URLs, rec.Filename, rec.Size, outputPath); err != nil {
		fs.recordHistory(opID, id, rec.Filename, history.DirectionDownload, history.StatusFailed, rec.Size, len(rec.URLs), started)
		return "", err
	}

	fs.recordHistory(opID, id, rec.Filename, history.DirectionDownload, history.StatusCompleted, rec.Size, len(rec.URLs), started)
	fs.log.WithFields(logrus.Fields{
		"id":     id,
		"file":   rec.Filename,
		"output": outputPath,
	}).Info("file retrieved")
	return outputPath, nil
}

// List returns all stored files ordered by identifier.
func (fs *FileSystem) List() ([]Entry, error) {
	records, err := fs.reg.List()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(records))
	for id, rec := range records {
		entries = append(entries, Entry{ID: id, Filename: rec.Filename, Size: rec.Size})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Import merges an exported registry document into the registry.
// Imported records overwrite existing ones with the same id.
func (fs *FileSystem) Import(path string) (int, error) {
	count, err := fs.reg.ImportFrom(path)
	if err != nil {
		return 0, err
	}
	fs.log.WithFields(logrus.Fields{
		"path":    path,
		"records": count,
	}).Info("registry import complete")
	return count, nil
}

// Export writes a snapshot of the given ids into dir.
func (fs *FileSystem) Export(dir string, ids []int, baseName string) (string, error) {
	path, err := fs.reg.ExportTo(dir, ids, baseName)
	if err != nil {
		return "", err
	}
	fs.log.WithFields(logrus.Fields{
		"path":    path,
		"records": len(ids),
	}).Info("registry export complete")
	return path, nil
}

// ChunkCount reports how many chunks a file of the given size uploads as.
func (fs *FileSystem) ChunkCount(size int64) int {
	return chunker.ChunkCount(size, fs.chunkSize)
}

// Tracker exposes progress for in-flight transfers.
func (fs *FileSystem) Tracker() *transfer.Tracker {
	return fs.engine.Tracker()
}

// recordHistory appends to the transfer log when one is configured.
// Logging failures are reported but never fail the transfer itself.
func (fs *FileSystem) recordHistory(opID string, id int, name, direction, status string, bytes int64, chunks int, started time.Time) {
	if fs.hist == nil {
		return
	}
	rec := history.NewTransferRecord(opID, id, name, direction, status, bytes, chunks, started)
	if err := fs.hist.PutTransfer(rec); err != nil {
		fs.log.WithError(err).Warn("failed to record transfer history")
	}
}
