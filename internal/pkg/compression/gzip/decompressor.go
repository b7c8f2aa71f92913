package gzip

import (
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/unbasical/bundleota/pkg/algorithm/compression"
)

type decompressor struct{}

// NewDecompressor returns a gzip compression.Decompressor.
func NewDecompressor() compression.Decompressor {
	return decompressor{}
}

func (decompressor) Decompress(in io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(in)
}

func (decompressor) Name() string {
	return "gzip"
}
