package pathsanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrUnsafePath = errors.New("unsafe or invalid path specified")

// Join joins the relative path rel to trustedRoot.
// Empty and absolute paths and paths that resolve outside of trustedRoot are rejected.
func Join(trustedRoot, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, rel)
	}
	p := filepath.Join(trustedRoot, filepath.FromSlash(rel))
	if err := VerifyPath(p, trustedRoot); err != nil {
		return "", err
	}
	return p, nil
}

// VerifyPath checks that path is trustedRoot or located below it.
func VerifyPath(path, trustedRoot string) error {
	logrus.Debugf("verifying path `%s` using `%s` as trustedRoot", path, trustedRoot)
	rel, err := filepath.Rel(filepath.Clean(trustedRoot), filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsafePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %q is outside of %q", ErrUnsafePath, path, trustedRoot)
	}
	return nil
}
