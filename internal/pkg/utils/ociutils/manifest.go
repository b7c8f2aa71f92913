package ociutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/unbasical/bundleota/pkg/constants"
)

// ParseManifest decodes the manifest that is yielded by the reader.
func ParseManifest(content io.Reader) (v1.Manifest, error) {
	var mf v1.Manifest
	err := json.NewDecoder(content).Decode(&mf)
	if err != nil {
		return v1.Manifest{}, err
	}
	return mf, nil
}

// BundleLayer returns the single layer of a bundle manifest together with its file name.
// The file name is taken from the layer's title annotation and falls back to the encoded digest.
func BundleLayer(mf *v1.Manifest) (v1.Descriptor, string, error) {
	if len(mf.Layers) != 1 {
		return v1.Descriptor{}, "", fmt.Errorf("unsupported number of layers %d", len(mf.Layers))
	}
	layer := mf.Layers[0]
	if err := layer.Digest.Validate(); err != nil {
		return v1.Descriptor{}, "", fmt.Errorf("invalid layer digest: %w", err)
	}
	name := layer.Annotations[constants.OciImageTitle]
	if name == "" {
		name = layer.Digest.Encoded()
	}
	if name == "." || name == ".." || containsSeparator(name) {
		return v1.Descriptor{}, "", errors.New("invalid file title")
	}
	return layer, name, nil
}

func containsSeparator(s string) bool {
	for _, r := range s {
		if r == '/' || r == '\\' {
			return true
		}
	}
	return false
}
