package activation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"
	"golang.org/x/mod/sumdb/dirhash"

	"github.com/unbasical/bundleota/internal/pkg/utils/fileutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/funcutils"
	"github.com/unbasical/bundleota/pkg/statemanager"
)

const (
	bundlesDirName = "bundles"
	stateFileName  = "activation.json"
	partialSuffix  = ".partial"
)

// FilesystemActivator activates bundles by unpacking them below its root directory
// and recording the active bundle in a state file.
//
// Layout:
//
//	<root>/activation.json   active and previous record
//	<root>/bundles/<id>/     unpacked bundles
type FilesystemActivator struct {
	root      string
	state     *statemanager.Manager[state]
	restarter Restarter
	now       func() time.Time
	removeAll func(string) error
}

// NewFilesystemActivator creates the activator directory layout at root.
// The restarter may be nil, restarts are skipped in that case.
func NewFilesystemActivator(root string, restarter Restarter) (*FilesystemActivator, error) {
	if err := os.MkdirAll(filepath.Join(root, bundlesDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}
	m, err := statemanager.NewFromDisk(state{}, filepath.Join(root, stateFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to load activation state: %w", err)
	}
	return &FilesystemActivator{
		root:      root,
		state:     m,
		restarter: restarter,
		now:       time.Now,
		removeAll: os.RemoveAll,
	}, nil
}

func (a *FilesystemActivator) bundlesDir() string {
	return filepath.Join(a.root, bundlesDirName)
}

// InstallBundle implements Service.
func (a *FilesystemActivator) InstallBundle(ctx context.Context, path, formatHint string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("bundle artifact not accessible: %w", err)
	}
	format := ResolveFormat(formatHint, path)
	id := uuid.NewString()
	dir := filepath.Join(a.bundlesDir(), id)
	staging := dir + partialSuffix
	if err := os.MkdirAll(staging, 0755); err != nil {
		return err
	}
	logger := log.WithFields(log.Fields{"artifact": path, "format": format, "bundle": id})
	logger.Debug("unpacking bundle")
	loadPath, err := unpack(format, path, staging)
	if err != nil {
		funcutils.PanicOrLogOnErr(func() error { return os.RemoveAll(staging) }, false, "failed to clean up staging directory")
		return fmt.Errorf("failed to unpack bundle: %w", err)
	}
	if err := fileutils.ReplaceDirectory(staging, dir); err != nil {
		funcutils.PanicOrLogOnErr(func() error { return os.RemoveAll(staging) }, false, "failed to clean up staging directory")
		return err
	}
	rel, err := filepath.Rel(staging, loadPath)
	if err != nil {
		return err
	}
	record := &Record{
		Path:        filepath.Join(dir, rel),
		Dir:         dir,
		Format:      format,
		InstalledAt: a.now().UTC(),
	}
	if record.Digest, err = hashBundle(record.Path); err != nil {
		funcutils.PanicOrLogOnErr(func() error { return os.RemoveAll(dir) }, false, "failed to remove bundle")
		return err
	}
	if err := a.activate(record); err != nil {
		funcutils.PanicOrLogOnErr(func() error { return os.RemoveAll(dir) }, false, "failed to remove bundle")
		return err
	}
	logger.WithField("digest", record.Digest).Info("activated bundle")
	a.prune(ctx)
	return nil
}

// InstallExactBundle implements Service.
func (a *FilesystemActivator) InstallExactBundle(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("bundle not accessible: %w", err)
	}
	record := &Record{
		Path:        abs,
		InstalledAt: a.now().UTC(),
	}
	if record.Digest, err = hashBundle(abs); err != nil {
		return err
	}
	if err := a.activate(record); err != nil {
		return err
	}
	log.WithField("path", abs).Info("activated bundle in place")
	a.prune(ctx)
	return nil
}

func (a *FilesystemActivator) activate(r *Record) error {
	return a.state.ModifyState(func(s *state) error {
		if s.Active != nil {
			s.Previous = s.Active
		}
		s.Active = r
		return nil
	})
}

// DeleteBundle implements Service.
// Only bundles owned by the activator are removed from disk, bundles activated in place are unregistered.
// Once the record is cleared the delete has succeeded, files that could not be removed are pruned later.
func (a *FilesystemActivator) DeleteBundle(_ context.Context) error {
	var removed *Record
	err := a.state.ModifyState(func(s *state) error {
		if s.Active == nil {
			return ErrNoActiveBundle
		}
		removed = s.Active
		s.Active = nil
		return nil
	})
	if err != nil {
		return err
	}
	if removed.Managed() {
		if err := a.removeAll(removed.Dir); err != nil {
			log.WithError(err).WithField("dir", removed.Dir).Warn("bundle was deactivated but its files could not be removed")
		}
	}
	log.WithField("path", removed.Path).Info("deleted bundle")
	return nil
}

// Rollback implements Service.
func (a *FilesystemActivator) Rollback(_ context.Context) error {
	var restored *Record
	err := a.state.ModifyState(func(s *state) error {
		if s.Previous == nil {
			return ErrNoPreviousBundle
		}
		if _, err := os.Stat(s.Previous.Path); err != nil {
			return fmt.Errorf("%w: %w", ErrNoPreviousBundle, err)
		}
		s.Active, s.Previous = s.Previous, s.Active
		restored = s.Active
		return nil
	})
	if err != nil {
		return err
	}
	log.WithField("path", restored.Path).Info("rolled back to previous bundle")
	return nil
}

// Restart implements Service.
func (a *FilesystemActivator) Restart(ctx context.Context) {
	if a.restarter == nil {
		log.Warn("no restarter configured, skipping restart")
		return
	}
	funcutils.PanicOrLogOnErr(func() error { return a.restarter.Restart(ctx) }, false, "failed to restart application")
}

// ActiveBundle returns the record of the active bundle, nil if there is none.
func (a *FilesystemActivator) ActiveBundle(_ context.Context) (*Record, error) {
	s, err := a.state.Load()
	if err != nil {
		return nil, err
	}
	return s.Active, nil
}

// Verify checks that the active bundle still matches the digest recorded at activation.
// Bundles activated in place, such as git checkouts, change with every pull and are only checked for existence.
func (a *FilesystemActivator) Verify(ctx context.Context) error {
	r, err := a.ActiveBundle(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		return ErrNoActiveBundle
	}
	if !r.Managed() {
		if _, err := os.Stat(r.Path); err != nil {
			return fmt.Errorf("active bundle is not accessible: %w", err)
		}
		log.WithField("path", r.Path).Debug("skipping digest check of bundle activated in place")
		return nil
	}
	got, err := hashBundle(r.Path)
	if err != nil {
		return err
	}
	if got != r.Digest {
		log.WithFields(log.Fields{"expected": r.Digest, "actual": got}).Warn("detected modifications to the active bundle")
		return ErrBundleModified
	}
	return nil
}

// prune removes managed bundles that are neither active nor the rollback target.
func (a *FilesystemActivator) prune(_ context.Context) {
	s, err := a.state.Load()
	if err != nil {
		log.WithError(err).Warn("failed to load state for pruning")
		return
	}
	keep := make(map[string]struct{})
	for _, r := range []*Record{s.Active, s.Previous} {
		if r != nil && r.Managed() {
			keep[filepath.Base(r.Dir)] = struct{}{}
		}
	}
	entries, err := os.ReadDir(a.bundlesDir())
	if err != nil {
		log.WithError(err).Warn("failed to list bundles for pruning")
		return
	}
	for _, e := range entries {
		if _, ok := keep[e.Name()]; ok {
			continue
		}
		p := filepath.Join(a.bundlesDir(), e.Name())
		log.Debugf("pruning superseded bundle %q", p)
		funcutils.PanicOrLogOnErr(func() error { return os.RemoveAll(p) }, false, "failed to prune bundle")
	}
}

// hashBundle returns the dirhash of a directory or the sha256 digest of a file.
func hashBundle(path string) (string, error) {
	exists, isDir, err := fileutils.ExistsAndIsDirectory(path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%q does not exist", path)
	}
	if isDir {
		return dirhash.HashDir(path, "", dirhash.Hash1)
	}
	fp, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer funcutils.PanicOrLogOnErr(fp.Close, false, "failed to close bundle")
	d, err := digest.FromReader(fp)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
