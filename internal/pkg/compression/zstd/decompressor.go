package zstd

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/unbasical/bundleota/pkg/algorithm/compression"
)

type decompressor struct{}

// NewDecompressor returns a zstd compression.Decompressor.
func NewDecompressor() compression.Decompressor {
	return decompressor{}
}

func (decompressor) Decompress(in io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(in)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (decompressor) Name() string {
	return "zstd"
}
