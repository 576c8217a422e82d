package chunker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hookstore/hookstore/internal/storage"
)

// ErrIncompleteTransfer is returned when a merge cannot reassemble the
// full original byte sequence from the scratch chunks.
var ErrIncompleteTransfer = errors.New("incomplete transfer")

// Merge concatenates scratch chunks 0..count-1 into outputPath in
// ordinal order. The output is staged as a temporary file next to the
// final path and renamed into place only once every chunk has been
// written and the byte total matches totalSize, so a failed merge never
// leaves a partial artifact behind.
func Merge(scratch *storage.ScratchStore, count int, totalSize int64, outputPath string) error {
	dir := filepath.Dir(outputPath)
	out, err := os.CreateTemp(dir, ".merge-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file in %s: %w", dir, err)
	}
	tmpPath := out.Name()

	committed := false
	defer func() {
		if !committed {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	var written int64
	for ordinal := 0; ordinal < count; ordinal++ {
		n, err := appendChunk(out, scratch, ordinal)
		if err != nil {
			return fmt.Errorf("%w: chunk %d: %v", ErrIncompleteTransfer, ordinal, err)
		}
		written += n
	}

	if written != totalSize {
		return fmt.Errorf("%w: merged %d bytes, expected %d", ErrIncompleteTransfer, written, totalSize)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finalize output file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	committed = true
	return nil
}

func appendChunk(out io.Writer, scratch *storage.ScratchStore, ordinal int) (int64, error) {
	rc, err := scratch.Get(ordinal)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, fmt.Errorf("failed to copy chunk data: %w", err)
	}
	return n, nil
}
