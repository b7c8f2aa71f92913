package compression

import "io"

// Decompressor is used to abstract over the decompression aspect of a compression algorithm.
type Decompressor interface {
	// Decompress returns a reader that yields the decompressed contents of the input reader.
	Decompress(in io.Reader) (io.ReadCloser, error)
	// Name identifies the algorithm, e.g. in media types or log fields. The pass-through decompressor has an empty name.
	Name() string
}

type nopDecompressor struct{}

// NewNopDecompressor returns a Decompressor that passes the input through unchanged.
func NewNopDecompressor() Decompressor {
	return nopDecompressor{}
}

func (nopDecompressor) Decompress(in io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(in), nil
}

func (nopDecompressor) Name() string {
	return ""
}
