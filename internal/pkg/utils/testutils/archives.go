package testutils

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// TarArchive builds an uncompressed tar archive from the given file contents.
func TarArchive(files map[string]string) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	tw := tar.NewWriter(buf)
	for _, name := range sortedKeys(files) {
		content := files[name]
		err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		})
		if err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TarGzArchive builds a gzip compressed tar archive from the given file contents.
func TarGzArchive(files map[string]string) ([]byte, error) {
	raw, err := TarArchive(files)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	w := gzip.NewWriter(buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TarZstdArchive builds a zstd compressed tar archive from the given file contents.
func TarZstdArchive(files map[string]string) ([]byte, error) {
	raw, err := TarArchive(files)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = enc.Close()
	}()
	return enc.EncodeAll(raw, nil), nil
}

// ZipArchive builds a zip archive from the given file contents.
func ZipArchive(files map[string]string) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	zw := zip.NewWriter(buf)
	for _, name := range sortedKeys(files) {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
