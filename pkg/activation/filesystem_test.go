package activation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbasical/bundleota/internal/pkg/utils/testutils"
)

func writeArtifact(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0600))
	return p
}

func newActivator(t *testing.T, r Restarter) *FilesystemActivator {
	t.Helper()
	a, err := NewFilesystemActivator(t.TempDir(), r)
	require.NoError(t, err)
	return a
}

func bundleEntries(t *testing.T, a *FilesystemActivator) []string {
	t.Helper()
	entries, err := os.ReadDir(a.bundlesDir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestInstallBundle(t *testing.T) {
	files := map[string]string{"index.js": "v1", "assets/a.txt": "asset"}
	tests := []struct {
		name  string
		file  string
		hint  string
		build func(map[string]string) ([]byte, error)
	}{
		{name: "zip by extension", file: "b.zip", build: testutils.ZipArchive},
		{name: "tar.gz by hint", file: "download", hint: "tgz", build: testutils.TarGzArchive},
		{name: "tar.zst by extension", file: "b.tar.zst", build: testutils.TarZstdArchive},
		{name: "tar by extension", file: "b.tar", build: testutils.TarArchive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.build(files)
			require.NoError(t, err)
			a := newActivator(t, nil)
			ctx := context.Background()
			require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, tt.file, data), tt.hint))

			r, err := a.ActiveBundle(ctx)
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.True(t, r.Managed())
			got, err := os.ReadFile(filepath.Join(r.Path, "index.js"))
			require.NoError(t, err)
			assert.Equal(t, "v1", string(got))
			assert.NotEmpty(t, r.Digest)
			assert.NoError(t, a.Verify(ctx))
		})
	}
}

func TestInstallRawBundle(t *testing.T) {
	a := newActivator(t, nil)
	ctx := context.Background()
	require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "main.jsbundle", []byte("code")), ""))
	r, err := a.ActiveBundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main.jsbundle", filepath.Base(r.Path))
	got, err := os.ReadFile(r.Path)
	require.NoError(t, err)
	assert.Equal(t, "code", string(got))
}

func TestInstallBundleFailureKeepsActive(t *testing.T) {
	a := newActivator(t, nil)
	ctx := context.Background()
	good, err := testutils.ZipArchive(map[string]string{"index.js": "v1"})
	require.NoError(t, err)
	require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "b.zip", good), ""))
	before, err := a.ActiveBundle(ctx)
	require.NoError(t, err)

	assert.Error(t, a.InstallBundle(ctx, writeArtifact(t, "broken.zip", []byte("not a zip")), ""))
	assert.Error(t, a.InstallBundle(ctx, filepath.Join(t.TempDir(), "missing.zip"), ""))

	after, err := a.ActiveBundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Path, after.Path)
	assert.Len(t, bundleEntries(t, a), 1)
}

func TestRollbackAndPrune(t *testing.T) {
	a := newActivator(t, nil)
	ctx := context.Background()
	paths := make([]string, 0, 3)
	for _, v := range []string{"v1", "v2", "v3"} {
		data, err := testutils.TarArchive(map[string]string{"version": v})
		require.NoError(t, err)
		require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "b.tar", data), ""))
		r, err := a.ActiveBundle(ctx)
		require.NoError(t, err)
		paths = append(paths, r.Path)
	}
	// v1 is neither active nor the rollback target
	assert.Len(t, bundleEntries(t, a), 2)
	_, err := os.Stat(paths[0])
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, a.Rollback(ctx))
	r, err := a.ActiveBundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, paths[1], r.Path)

	// rolling back twice toggles between the two retained bundles
	require.NoError(t, a.Rollback(ctx))
	r, err = a.ActiveBundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, paths[2], r.Path)
}

func TestRollbackWithoutPrevious(t *testing.T) {
	a := newActivator(t, nil)
	assert.ErrorIs(t, a.Rollback(context.Background()), ErrNoPreviousBundle)
}

func TestDeleteBundle(t *testing.T) {
	ctx := context.Background()
	t.Run("managed bundle is removed", func(t *testing.T) {
		a := newActivator(t, nil)
		data, err := testutils.ZipArchive(map[string]string{"index.js": "v1"})
		require.NoError(t, err)
		require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "b.zip", data), ""))
		r, err := a.ActiveBundle(ctx)
		require.NoError(t, err)

		require.NoError(t, a.DeleteBundle(ctx))
		_, err = os.Stat(r.Dir)
		assert.True(t, errors.Is(err, os.ErrNotExist))
		active, err := a.ActiveBundle(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)
	})
	t.Run("exact bundle is only unregistered", func(t *testing.T) {
		a := newActivator(t, nil)
		checkout := t.TempDir()
		bundle := filepath.Join(checkout, "index.bundle")
		require.NoError(t, os.WriteFile(bundle, []byte("code"), 0600))
		require.NoError(t, a.InstallExactBundle(ctx, bundle))
		r, err := a.ActiveBundle(ctx)
		require.NoError(t, err)
		assert.False(t, r.Managed())
		assert.Equal(t, bundle, r.Path)

		require.NoError(t, a.DeleteBundle(ctx))
		_, err = os.Stat(bundle)
		assert.NoError(t, err)
	})
	t.Run("nothing active", func(t *testing.T) {
		a := newActivator(t, nil)
		assert.ErrorIs(t, a.DeleteBundle(ctx), ErrNoActiveBundle)
	})
	t.Run("leftover files are pruned by the next install", func(t *testing.T) {
		a := newActivator(t, nil)
		data, err := testutils.ZipArchive(map[string]string{"index.js": "v1"})
		require.NoError(t, err)
		require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "b.zip", data), ""))
		r, err := a.ActiveBundle(ctx)
		require.NoError(t, err)

		a.removeAll = func(string) error { return errors.New("device busy") }
		require.NoError(t, a.DeleteBundle(ctx), "the bundle is inactive once the record is cleared")
		active, err := a.ActiveBundle(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)
		assert.DirExists(t, r.Dir)

		a.removeAll = os.RemoveAll
		require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "c.zip", data), ""))
		assert.NoDirExists(t, r.Dir)
	})
}

func TestDeleteBundleSharedState(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	agent, err := NewFilesystemActivator(root, nil)
	require.NoError(t, err)
	cli, err := NewFilesystemActivator(root, nil)
	require.NoError(t, err)
	data, err := testutils.ZipArchive(map[string]string{"index.js": "v1"})
	require.NoError(t, err)
	require.NoError(t, agent.InstallBundle(ctx, writeArtifact(t, "a.zip", data), ""))
	first, err := agent.ActiveBundle(ctx)
	require.NoError(t, err)
	require.NoError(t, agent.InstallBundle(ctx, writeArtifact(t, "b.zip", data), ""))

	require.NoError(t, cli.DeleteBundle(ctx))

	active, err := agent.ActiveBundle(ctx)
	require.NoError(t, err)
	assert.Nil(t, active, "a bundle deleted through another activator is not active")
	assert.ErrorIs(t, agent.DeleteBundle(ctx), ErrNoActiveBundle)

	require.NoError(t, agent.Rollback(ctx))
	reopened, err := NewFilesystemActivator(root, nil)
	require.NoError(t, err)
	restored, err := reopened.ActiveBundle(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, first.Path, restored.Path)
	state, err := os.ReadFile(filepath.Join(root, stateFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(state), `"previous"`, "the deleted bundle must not be written back")
}

func TestVerifyDetectsModification(t *testing.T) {
	a := newActivator(t, nil)
	ctx := context.Background()
	data, err := testutils.ZipArchive(map[string]string{"index.js": "v1"})
	require.NoError(t, err)
	require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "b.zip", data), ""))
	r, err := a.ActiveBundle(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(r.Path, "index.js"), []byte("tampered"), 0600))
	assert.ErrorIs(t, a.Verify(ctx), ErrBundleModified)
}

func TestVerifyBundleActivatedInPlace(t *testing.T) {
	a := newActivator(t, nil)
	ctx := context.Background()
	bundle := filepath.Join(t.TempDir(), "index.bundle")
	require.NoError(t, os.WriteFile(bundle, []byte("v1"), 0600))
	require.NoError(t, a.InstallExactBundle(ctx, bundle))

	// a git pull rewrites the checkout
	require.NoError(t, os.WriteFile(bundle, []byte("v2"), 0600))
	assert.NoError(t, a.Verify(ctx))

	require.NoError(t, os.Remove(bundle))
	assert.Error(t, a.Verify(ctx))
}

func TestStatePersistsAcrossInstances(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	a, err := NewFilesystemActivator(root, nil)
	require.NoError(t, err)
	data, err := testutils.ZipArchive(map[string]string{"index.js": "v1"})
	require.NoError(t, err)
	require.NoError(t, a.InstallBundle(ctx, writeArtifact(t, "b.zip", data), ""))
	want, err := a.ActiveBundle(ctx)
	require.NoError(t, err)

	reopened, err := NewFilesystemActivator(root, nil)
	require.NoError(t, err)
	got, err := reopened.ActiveBundle(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Path, got.Path)
	assert.Equal(t, want.Digest, got.Digest)
}

func TestRestart(t *testing.T) {
	var calls atomic.Int32
	a := newActivator(t, RestarterFunc(func(context.Context) error {
		calls.Add(1)
		return errors.New("restart failed")
	}))
	// failures are logged, not returned
	a.Restart(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	newActivator(t, nil).Restart(context.Background())
}

func TestCommandRestarter(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, NewCommandRestarter(nil).Restart(ctx))
	assert.NoError(t, NewCommandRestarter([]string{"true"}).Restart(ctx))
	assert.Error(t, NewCommandRestarter([]string{"false"}).Restart(ctx))
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name    string
		want    os.Signal
		wantErr bool
	}{
		{name: "", want: syscall.SIGHUP},
		{name: "hup", want: syscall.SIGHUP},
		{name: "SIGTERM", want: syscall.SIGTERM},
		{name: " usr1 ", want: syscall.SIGUSR1},
		{name: "KILL", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignal(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
