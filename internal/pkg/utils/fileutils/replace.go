package fileutils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// getLockFile computes a unique lock file path based on the canonical absolute path of newPath.
func getLockFile(newPath string) string {
	abs, err := filepath.Abs(newPath)
	if err != nil {
		abs = newPath
	}
	hash := sha256.Sum256([]byte(filepath.Clean(abs)))
	return filepath.Join(os.TempDir(), "bundleota_replace_"+hex.EncodeToString(hash[:8]))
}

// withLock runs f while holding an exclusive lock for targetPath.
func withLock(targetPath string, f func() error) error {
	lock := flock.New(getLockFile(targetPath))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return f()
}

// ReplaceFile atomically replaces the file at targetPath with the file at currentPath.
func ReplaceFile(currentPath, targetPath string) error {
	return withLock(targetPath, func() error {
		return os.Rename(currentPath, targetPath)
	})
}

// ReplaceDirectory replaces the directory at targetPath with the directory at currentPath.
// The old directory is moved aside before the new one is renamed into place and is restored
// if the rename fails, so targetPath never ends up missing.
func ReplaceDirectory(currentPath, targetPath string) error {
	return withLock(targetPath, func() error {
		exists, _, err := ExistsAndIsDirectory(targetPath)
		if err != nil {
			return err
		}
		if !exists {
			return os.Rename(currentPath, targetPath)
		}
		aside := targetPath + ".old"
		if err := os.RemoveAll(aside); err != nil {
			return err
		}
		if err := os.Rename(targetPath, aside); err != nil {
			return err
		}
		if err := os.Rename(currentPath, targetPath); err != nil {
			log.WithError(err).Debugf("failed to move %q into place, restoring", currentPath)
			return errors.Join(err, os.Rename(aside, targetPath))
		}
		log.Debugf("removing %q", aside)
		return os.RemoveAll(aside)
	})
}
