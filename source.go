package cog

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ByteSource is the random-access boundary the reader consumes. The TIFF
// directory walk and every tile fetch go through ReadRange; implementations
// must support concurrent outstanding calls.
type ByteSource interface {
	// Length returns the total size of the stream in bytes.
	Length() int64

	// ReadRange returns exactly length bytes starting at off. The returned
	// slice is owned by the caller. Transport failures are returned
	// unwrapped so callers can apply their own retry policy.
	ReadRange(ctx context.Context, off, length int64) ([]byte, error)
}

// FileSource is a ByteSource over a local file, mostly useful for tests and
// for datasets already on disk.
type FileSource struct {
	f    *os.File
	size int64
}

// NewFileSource opens path and stats it for its length.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &FileSource{f: f, size: st.Size()}, nil
}

func (s *FileSource) Length() int64 { return s.size }

func (s *FileSource) ReadRange(ctx context.Context, off, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if off < 0 || length < 0 || off+length > s.size {
		return nil, fmt.Errorf("range [%d, %d) outside file of %d bytes: %w", off, off+length, s.size, io.ErrUnexpectedEOF)
	}
	buf := make([]byte, length)
	if _, err := s.f.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close releases the underlying file.
func (s *FileSource) Close() error { return s.f.Close() }
