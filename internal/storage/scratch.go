package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// ScratchStore holds in-flight chunk data for a single transfer
// operation, indexed by chunk ordinal. Every operation gets its own
// directory under the configured work dir so concurrent transfers never
// collide, and Cleanup removes the whole directory on every exit path.
type ScratchStore struct {
	dir string
}

// NewScratchStore creates an operation-scoped scratch directory under baseDir.
func NewScratchStore(baseDir string) (*ScratchStore, error) {
	dir := filepath.Join(baseDir, "op-"+uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &ScratchStore{dir: dir}, nil
}

// Put stores the data for the given ordinal, replacing any previous
// content. It returns the number of bytes written.
func (s *ScratchStore) Put(ordinal int, data io.Reader) (int64, error) {
	f, err := os.Create(s.chunkPath(ordinal))
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch file for chunk %d: %w", ordinal, err)
	}
	n, err := io.Copy(f, data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write chunk %d to scratch: %w", ordinal, err)
	}
	return n, nil
}

// Get retrieves the stored chunk for the given ordinal.
func (s *ScratchStore) Get(ordinal int) (io.ReadCloser, error) {
	f, err := os.Open(s.chunkPath(ordinal))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("chunk %d not found in scratch", ordinal)
		}
		return nil, fmt.Errorf("failed to open scratch file for chunk %d: %w", ordinal, err)
	}
	return f, nil
}

// Dir returns the scratch directory for this operation.
func (s *ScratchStore) Dir() string {
	return s.dir
}

// Cleanup removes the scratch directory and everything in it.
func (s *ScratchStore) Cleanup() error {
	return os.RemoveAll(s.dir)
}

func (s *ScratchStore) chunkPath(ordinal int) string {
	return filepath.Join(s.dir, strconv.Itoa(ordinal))
}
