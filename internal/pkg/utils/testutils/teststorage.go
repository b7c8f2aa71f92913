package testutils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/oci"

	"github.com/unbasical/bundleota/pkg/constants"
)

const (
	testArtifactType   = "application/vnd.unbasical.bundleota.test.bundle"
	testLayerMediaType = "application/vnd.unbasical.bundleota.test.bundle.layer"
)

// BundleImage is a bundle artifact published as a single layer image.
type BundleImage struct {
	// Name is stored as the layer title.
	Name string
	Data []byte
	Tag  string
	// Format is stored as bundle format annotation when set.
	Format string
}

func (b BundleImage) layer() v1.Descriptor {
	d := v1.Descriptor{
		MediaType:   testLayerMediaType,
		Digest:      digest.FromBytes(b.Data),
		Size:        int64(len(b.Data)),
		Annotations: map[string]string{constants.OciImageTitle: b.Name},
	}
	if b.Format != "" {
		d.Annotations[constants.BundleFormatAnnotation] = b.Format
	}
	return d
}

// BundleStore creates an OCI image layout in rootDir that holds every bundle under its tag.
func BundleStore(ctx context.Context, rootDir string, bundles []BundleImage) (oras.Target, error) {
	store, err := oci.New(rootDir)
	if err != nil {
		return nil, err
	}
	for _, b := range bundles {
		layer := b.layer()
		if err := store.Push(ctx, layer, bytes.NewReader(b.Data)); err != nil {
			return nil, fmt.Errorf("failed to push layer of %s: %w", b.Name, err)
		}
		manifest, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, testArtifactType, oras.PackManifestOptions{
			Layers: []v1.Descriptor{layer},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to pack manifest of %s: %w", b.Name, err)
		}
		if err := store.Tag(ctx, manifest, b.Tag); err != nil {
			return nil, fmt.Errorf("failed to tag %s as %s: %w", b.Name, b.Tag, err)
		}
	}
	return store, nil
}
