package cog

import "errors"

// Error kinds surfaced by the reader. Callers distinguish them with
// errors.Is; transport errors from a ByteSource are passed through unchanged.
var (
	// ErrInvalidTiff is returned when the stream does not start with a
	// recognized TIFF or BigTIFF signature, or when a directory offset
	// points outside the stream.
	ErrInvalidTiff = errors.New("cog: not a valid TIFF/BigTIFF stream")

	// ErrMalformedTag is returned when a directory entry declares an
	// unrecognized field type, an impossible count, or when a typed
	// accessor is called on a tag of a different type.
	ErrMalformedTag = errors.New("cog: malformed tag")

	// ErrUnsupportedCompression is returned for compression ids the tile
	// codec does not handle.
	ErrUnsupportedCompression = errors.New("cog: unsupported compression")

	// ErrCorruptTile is returned when a tile decompresses to fewer bytes
	// than its declared geometry requires.
	ErrCorruptTile = errors.New("cog: corrupt tile")

	// ErrMissingGeoreferencing is returned when a geotransform is requested
	// but the file carries neither ModelTransformation nor ModelPixelScale.
	ErrMissingGeoreferencing = errors.New("cog: missing georeferencing")

	// ErrOutOfRange is returned for tile, level or window coordinates that
	// fall outside the dataset.
	ErrOutOfRange = errors.New("cog: out of range")

	// ErrClosed is returned by any operation after Close.
	ErrClosed = errors.New("cog: reader is closed")
)
