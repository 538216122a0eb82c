package cog

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// BlobSource is a ByteSource over an object in a cloud bucket (S3, GCS,
// Azure, ...) using gocloud.dev/blob range readers. Reads are stateless, so
// concurrent tile fetches map directly onto concurrent range requests.
type BlobSource struct {
	bucket *blob.Bucket
	key    string
	size   int64
}

// NewBlobSource looks up the object attributes to learn its size. The bucket
// stays owned by the caller and must outlive the source.
func NewBlobSource(ctx context.Context, bucket *blob.Bucket, key string) (*BlobSource, error) {
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get attributes for key %s: %w", key, err)
	}
	return &BlobSource{bucket: bucket, key: key, size: attrs.Size}, nil
}

func (s *BlobSource) Length() int64 { return s.size }

func (s *BlobSource) ReadRange(ctx context.Context, off, length int64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if off < 0 || off+length > s.size {
		return nil, fmt.Errorf("range [%d, %d) outside blob of %d bytes: %w", off, off+length, s.size, io.ErrUnexpectedEOF)
	}

	r, err := s.bucket.NewRangeReader(ctx, s.key, off, length, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create range reader: %w", err)
	}
	defer r.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
