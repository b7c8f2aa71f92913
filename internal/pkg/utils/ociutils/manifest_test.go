package ociutils

import (
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/unbasical/bundleota/pkg/constants"
)

func TestBundleLayer(t *testing.T) {
	dgst := digest.FromString("bundle")
	tests := []struct {
		name         string
		manifest     *v1.Manifest
		expectedName string
		expectErr    bool
	}{
		{
			name: "title annotation",
			manifest: &v1.Manifest{Layers: []v1.Descriptor{{
				Digest:      dgst,
				Annotations: map[string]string{constants.OciImageTitle: "bundle.tar.gz"},
			}}},
			expectedName: "bundle.tar.gz",
		},
		{
			name:         "digest fallback",
			manifest:     &v1.Manifest{Layers: []v1.Descriptor{{Digest: dgst}}},
			expectedName: dgst.Encoded(),
		},
		{
			name: "path traversal in title",
			manifest: &v1.Manifest{Layers: []v1.Descriptor{{
				Digest:      dgst,
				Annotations: map[string]string{constants.OciImageTitle: "../bundle.zip"},
			}}},
			expectErr: true,
		},
		{
			name:      "no layers",
			manifest:  &v1.Manifest{},
			expectErr: true,
		},
		{
			name:      "two layers",
			manifest:  &v1.Manifest{Layers: []v1.Descriptor{{Digest: dgst}, {Digest: dgst}}},
			expectErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, name, err := BundleLayer(tt.manifest)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedName, name)
			assert.Equal(t, dgst, layer.Digest)
		})
	}
}

func TestParseManifest(t *testing.T) {
	mf, err := ParseManifest(strings.NewReader(`{"schemaVersion":2,"layers":[{"mediaType":"application/vnd.oci.image.layer.v1.tar+gzip","digest":"sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855","size":0}]}`))
	assert.NoError(t, err)
	assert.Len(t, mf.Layers, 1)
	_, err = ParseManifest(strings.NewReader("{"))
	assert.Error(t, err)
}
