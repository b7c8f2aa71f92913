package tarutils

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/unbasical/bundleota/internal/pkg/utils/pathsanitize"
	"github.com/unbasical/bundleota/pkg/algorithm/compression"
)

// ExtractCompressedTar decompresses the file with the provided decompressor
// and extracts the contained tar archive to the directory `dir`.
// If checksum is not nil the compressed file is verified against it.
func ExtractCompressedTar(dir, filename string, checksum *digest.Digest, decom compression.Decompressor) (err error) {
	fp, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := fp.Close()
		if err == nil {
			err = closeErr
		}
	}()
	var verifier digest.Verifier
	var r io.Reader = fp
	if checksum != nil {
		verifier = checksum.Verifier()
		r = io.TeeReader(r, verifier)
	}
	rc, err := decom.Decompress(r)
	if err != nil {
		return fmt.Errorf("failed to open %s stream: %w", decom.Name(), err)
	}
	defer func() {
		_ = rc.Close()
	}()
	if err := extractTarDirectory(dir, rc); err != nil {
		return err
	}
	if verifier != nil {
		// drain trailing padding so the verifier sees the whole file
		if _, err := io.Copy(io.Discard, r); err != nil {
			return err
		}
		if !verifier.Verified() {
			return errors.New("content digest mismatch")
		}
	}
	return nil
}

// extractTarDirectory extracts tar file to a directory specified by the `dir` parameter.
func extractTarDirectory(dir string, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		path, err := ensureBasePath(dir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			err = writeFile(path, tr, header.FileInfo().Mode())
		case tar.TypeDir:
			err = os.MkdirAll(path, header.FileInfo().Mode()|0700)
		case tar.TypeXGlobalHeader:
			continue
		default:
			return fmt.Errorf("unsupported file type %v for %q", header.Typeflag, header.Name)
		}
		if err != nil {
			return err
		}

		// Change access time and modification time if possible (error ignored)
		_ = os.Chtimes(path, header.AccessTime, header.ModTime)
	}
}

// ensureBasePath ensures the archive entry stays inside dir,
// returning the joined absolute path.
func ensureBasePath(dir, name string) (string, error) {
	target, err := pathsanitize.Join(dir, name)
	if err != nil {
		return "", err
	}
	cleanPath := filepath.ToSlash(filepath.Clean(name))

	// No symbolic link allowed in the relative path
	parent := filepath.Dir(cleanPath)
	for parent != "." && parent != "/" {
		if info, err := os.Lstat(filepath.Join(dir, parent)); err != nil {
			if !os.IsNotExist(err) {
				return "", err
			}
		} else if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("no symbolic link allowed between %q and %q", dir, name)
		}
		parent = filepath.Dir(parent)
	}

	return target, nil
}

// writeFile writes content to the file specified by the `path` parameter.
func writeFile(path string, r io.Reader, perm os.FileMode) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := file.Close()
		if err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(file, r)
	// call Sync to make sure file is written to the disk
	return errors.Join(err, file.Sync())
}
