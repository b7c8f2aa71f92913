package fileutils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/unbasical/bundleota/internal/pkg/utils/writerutils"
)

// SafeReadYAML decodes the YAML file at filePath into targetPointer, rejecting unknown fields.
// Fields missing from the file keep their value. Returns false for files without a document.
func SafeReadYAML(filePath string, targetPointer any) (yamlAvailable bool, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, fmt.Errorf("unable to open file: %s, %w", filePath, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logrus.WithError(closeErr).Errorf("failed to close file: %s", filePath)
		}
	}()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(targetPointer); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return true, fmt.Errorf("unable to decode file: %s, %w", filePath, err)
	}
	return true, nil
}

// AtomicWriteFile writes data to a temporary file next to filePath and renames it into place.
// The data is flushed to the disk before the rename.
func AtomicWriteFile(filePath string, data []byte, perm os.FileMode) (err error) {
	fp, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := fp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	w := writerutils.NewSafeFileWriter(fp)
	_, err = w.Write(data)
	if err = errors.Join(err, w.Close()); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return ReplaceFile(tmpName, filePath)
}

// CopyFile copies the regular file at src to dst, flushing dst to the disk.
func CopyFile(src, dst string, perm os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	w := writerutils.NewSafeFileWriter(out)
	_, err = io.Copy(w, in)
	return errors.Join(err, w.Close())
}

// ExistsAndIsDirectory reports whether path exists and whether it is a directory.
func ExistsAndIsDirectory(path string) (exists, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, info.IsDir(), nil
}

// CleanDirectory removes all files and subdirectories within dirPath,
// leaving the directory itself intact.
func CleanDirectory(dirPath string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entryPath := filepath.Join(dirPath, entry.Name())
		if err := os.RemoveAll(entryPath); err != nil {
			return err
		}
	}
	return nil
}
