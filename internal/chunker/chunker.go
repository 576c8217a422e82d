package chunker

import (
	"fmt"
	"io"
)

// Chunk is one contiguous, size-bounded byte range of a source stream,
// carrying the zero-based ordinal that fixes its position for both
// endpoint assignment and merge order.
type Chunk struct {
	Ordinal int
	Data    []byte
}

// Splitter reads a source stream and yields consecutive chunks of at
// most chunkSize bytes. Only one chunk is held in memory at a time;
// every chunk except possibly the last has length exactly chunkSize.
type Splitter struct {
	src       io.Reader
	chunkSize int64
	ordinal   int
	done      bool
}

// NewSplitter creates a splitter over src. chunkSize must be positive.
func NewSplitter(src io.Reader, chunkSize int64) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	return &Splitter{src: src, chunkSize: chunkSize}, nil
}

// Next returns the next chunk in order, or io.EOF after the final
// chunk. A zero-byte source yields no chunks at all.
func (s *Splitter) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.src, buf)
	switch err {
	case nil:
	case io.EOF:
		s.done = true
		return Chunk{}, io.EOF
	case io.ErrUnexpectedEOF:
		s.done = true
	default:
		return Chunk{}, fmt.Errorf("failed to read chunk %d: %w", s.ordinal, err)
	}

	c := Chunk{Ordinal: s.ordinal, Data: buf[:n]}
	s.ordinal++
	return c, nil
}

// ChunkCount returns how many chunks a source of the given size splits
// into: ceil(size/chunkSize), or zero for an empty source.
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}
