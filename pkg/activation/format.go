package activation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/unbasical/bundleota/internal/pkg/compression/gzip"
	"github.com/unbasical/bundleota/internal/pkg/compression/zstd"
	"github.com/unbasical/bundleota/internal/pkg/utils/fileutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/tarutils"
	"github.com/unbasical/bundleota/pkg/algorithm/compression"
)

// Bundle formats understood by the filesystem activator.
// FormatRaw bundles are stored as they are.
const (
	FormatRaw    = ""
	FormatZip    = "zip"
	FormatTar    = "tar"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
)

var formatAliases = map[string]string{
	"zip":      FormatZip,
	"tar":      FormatTar,
	"tar.gz":   FormatTarGz,
	"tgz":      FormatTarGz,
	"tar.gzip": FormatTarGz,
	"tar.zst":  FormatTarZst,
	"tar.zstd": FormatTarZst,
	"tzst":     FormatTarZst,
}

// ResolveFormat returns the bundle format for the artifact at path.
// A non-empty hint takes precedence over the file name, unknown hints resolve to FormatRaw.
func ResolveFormat(hint, path string) string {
	hint = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), "."))
	if hint != "" {
		return formatAliases[hint]
	}
	name := strings.ToLower(filepath.Base(path))
	// longest suffix first so "tar.gz" wins over "gz"
	best := ""
	for alias := range formatAliases {
		if strings.HasSuffix(name, "."+alias) && len(alias) > len(best) {
			best = alias
		}
	}
	return formatAliases[best]
}

// unpack writes the bundle at src into dir and returns the path the application should load.
func unpack(format, src, dir string) (string, error) {
	var decompressor compression.Decompressor
	switch format {
	case FormatRaw:
		dst := filepath.Join(dir, filepath.Base(src))
		if err := fileutils.CopyFile(src, dst, 0644); err != nil {
			return "", err
		}
		return dst, nil
	case FormatZip:
		return dir, tarutils.ExtractZip(dir, src)
	case FormatTar:
		decompressor = compression.NewNopDecompressor()
	case FormatTarGz:
		decompressor = gzip.NewDecompressor()
	case FormatTarZst:
		decompressor = zstd.NewDecompressor()
	default:
		return "", fmt.Errorf("unsupported bundle format %q", format)
	}
	return dir, tarutils.ExtractCompressedTar(dir, src, nil, decompressor)
}
