package tarutils

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
)

// ExtractZip extracts the zip archive at filename into dir.
func ExtractZip(dir, filename string) (err error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := zr.Close()
		if err == nil {
			err = closeErr
		}
	}()
	for _, f := range zr.File {
		path, err := ensureBasePath(dir, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(path, mode.Perm()|0700); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := extractZipFile(path, f); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file mode %v for %q", mode, f.Name)
		}
	}
	return nil
}

func extractZipFile(path string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()
	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	return writeFile(path, rc, perm)
}
