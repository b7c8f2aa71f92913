package tarutils

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbasical/bundleota/internal/pkg/compression/gzip"
	"github.com/unbasical/bundleota/internal/pkg/compression/zstd"
	"github.com/unbasical/bundleota/internal/pkg/utils/testutils"
	"github.com/unbasical/bundleota/pkg/algorithm/compression"
)

var bundleFiles = map[string]string{
	"index.js":        "console.log('hello')",
	"assets/logo.svg": "<svg/>",
}

func assertExtracted(t *testing.T, dir string) {
	t.Helper()
	for name, content := range bundleFiles {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	}
}

func TestExtractCompressedTar(t *testing.T) {
	tests := []struct {
		name   string
		build  func(map[string]string) ([]byte, error)
		decomp compression.Decompressor
	}{
		{name: "plain tar", build: testutils.TarArchive, decomp: compression.NewNopDecompressor()},
		{name: "gzip", build: testutils.TarGzArchive, decomp: gzip.NewDecompressor()},
		{name: "zstd", build: testutils.TarZstdArchive, decomp: zstd.NewDecompressor()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.build(bundleFiles)
			require.NoError(t, err)
			archive := filepath.Join(t.TempDir(), "bundle")
			require.NoError(t, os.WriteFile(archive, data, 0600))
			dgst := digest.FromBytes(data)

			dir := t.TempDir()
			require.NoError(t, ExtractCompressedTar(dir, archive, &dgst, tt.decomp))
			assertExtracted(t, dir)
		})
	}
}

func TestExtractCompressedTarDigestMismatch(t *testing.T) {
	data, err := testutils.TarArchive(bundleFiles)
	require.NoError(t, err)
	archive := filepath.Join(t.TempDir(), "bundle.tar")
	require.NoError(t, os.WriteFile(archive, data, 0600))
	wrong := digest.FromString("something else")
	err = ExtractCompressedTar(t.TempDir(), archive, &wrong, compression.NewNopDecompressor())
	assert.Error(t, err)
}

func TestExtractTarRejectsTraversal(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{name: "parent directory", entry: "../evil"},
		{name: "nested parent directory", entry: "a/../../evil"},
		{name: "absolute", entry: "/etc/evil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			tw := tar.NewWriter(buf)
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: tt.entry, Mode: 0644, Size: 1, Typeflag: tar.TypeReg}))
			_, err := tw.Write([]byte("x"))
			require.NoError(t, err)
			require.NoError(t, tw.Close())

			archive := filepath.Join(t.TempDir(), "evil.tar")
			require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0600))
			err = ExtractCompressedTar(t.TempDir(), archive, nil, compression.NewNopDecompressor())
			assert.Error(t, err)
		})
	}
}

func TestExtractZip(t *testing.T) {
	data, err := testutils.ZipArchive(bundleFiles)
	require.NoError(t, err)
	archive := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(archive, data, 0600))

	dir := t.TempDir()
	require.NoError(t, ExtractZip(dir, archive))
	assertExtracted(t, dir)
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	data, err := testutils.ZipArchive(map[string]string{"../evil": "x"})
	require.NoError(t, err)
	archive := filepath.Join(t.TempDir(), "evil.zip")
	require.NoError(t, os.WriteFile(archive, data, 0600))
	assert.Error(t, ExtractZip(t.TempDir(), archive))
}
