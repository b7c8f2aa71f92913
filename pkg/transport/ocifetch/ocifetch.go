// Package ocifetch pulls bundle archives that are stored as single layer OCI artifacts.
package ocifetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	log "github.com/sirupsen/logrus"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/unbasical/bundleota/internal/pkg/utils/funcutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/ociutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/readerutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/writerutils"
	"github.com/unbasical/bundleota/pkg/constants"
	"github.com/unbasical/bundleota/pkg/transport"
)

const (
	downloadDirName  = "download"
	completedDirName = "completed"
)

// Fetcher is a transport.ArchiveTransport for references such as oci://registry/repo:tag.
type Fetcher struct {
	workingDir string
	plainHTTP  bool
	creds      auth.CredentialFunc
	// source replaces the remote repository, used to read from local stores.
	source oras.ReadOnlyTarget
}

// New creates a Fetcher that keeps its downloads in workingDir.
// Interrupted layer downloads are resumed when the same layer is requested again.
func New(workingDir string, options ...func(*Fetcher)) *Fetcher {
	f := &Fetcher{workingDir: workingDir}
	for _, option := range options {
		option(f)
	}
	return f
}

// WithPlainHTTP talks to the registry without TLS.
func WithPlainHTTP(plainHTTP bool) func(*Fetcher) {
	return func(f *Fetcher) {
		f.plainHTTP = plainHTTP
	}
}

// WithCredentialFunc sets the source of registry credentials.
func WithCredentialFunc(creds auth.CredentialFunc) func(*Fetcher) {
	return func(f *Fetcher) {
		f.creds = creds
	}
}

// WithSource reads artifacts from target instead of the registry named in the reference.
func WithSource(target oras.ReadOnlyTarget) func(*Fetcher) {
	return func(f *Fetcher) {
		f.source = target
	}
}

func (f *Fetcher) repository(repoName string, headers map[string]string) (oras.ReadOnlyTarget, error) {
	if f.source != nil {
		return f.source, nil
	}
	repository, err := remote.NewRepository(repoName)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	repository.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: f.creds,
		Header:     h,
	}
	repository.PlainHTTP = f.plainHTTP
	return repository, nil
}

// Fetch implements transport.ArchiveTransport.
func (f *Fetcher) Fetch(ctx context.Context, uri string, headers map[string]string, onProgress transport.ProgressFunc) (string, error) {
	ref, err := ociutils.ParseReference(uri)
	if err != nil {
		return "", err
	}
	source, err := f.repository(ref.Repo(), headers)
	if err != nil {
		return "", err
	}
	mfDescriptor, err := source.Resolve(ctx, ref.Reference)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", uri, err)
	}
	mf, err := f.loadManifest(ctx, source, mfDescriptor)
	if err != nil {
		return "", err
	}
	layer, name, err := ociutils.BundleLayer(&mf)
	if err != nil {
		return "", err
	}
	if format := layer.Annotations[constants.BundleFormatAnnotation]; format != "" &&
		!strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(format)) {
		name = name + "." + format
	}
	if err := f.cleanup(layer.Digest); err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"image": fmt.Sprintf("%s@%s", ref.Repo(), mfDescriptor.Digest), "layer": layer.Digest}).Debug("fetching bundle layer")
	rc, err := source.Fetch(ctx, layer)
	if err != nil {
		return "", fmt.Errorf("failed to fetch layer: %w", err)
	}
	defer funcutils.PanicOrLogOnErr(rc.Close, false, "failed to close reader")
	return f.ingest(layer, name, rc, onProgress)
}

func (f *Fetcher) loadManifest(ctx context.Context, source oras.ReadOnlyTarget, d v1.Descriptor) (v1.Manifest, error) {
	rc, err := source.Fetch(ctx, d)
	if err != nil {
		return v1.Manifest{}, err
	}
	defer funcutils.PanicOrLogOnErr(rc.Close, false, "failed to close reader")
	mf, err := ociutils.ParseManifest(rc)
	if err != nil {
		return v1.Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if mf.MediaType != "" && mf.MediaType != v1.MediaTypeImageManifest {
		return v1.Manifest{}, fmt.Errorf("unsupported manifest media type %q", mf.MediaType)
	}
	return mf, nil
}

func (f *Fetcher) ensureSubDir(name string) (string, error) {
	p := filepath.Join(f.workingDir, name)
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", err
	}
	return p, nil
}

// cleanup removes completed artifacts of earlier invocations and partial downloads of other layers.
func (f *Fetcher) cleanup(keep digest.Digest) error {
	for _, sub := range []string{completedDirName, downloadDirName} {
		dir, err := f.ensureSubDir(sub)
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if sub == downloadDirName && e.Name() == keep.Encoded() {
				continue
			}
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// ingest writes the layer to the download directory, resuming a partial download if rc can seek,
// verifies size and digest and moves the file to the completed directory.
func (f *Fetcher) ingest(d v1.Descriptor, name string, rc io.ReadCloser, onProgress transport.ProgressFunc) (string, error) {
	downloadDir, err := f.ensureSubDir(downloadDirName)
	if err != nil {
		return "", err
	}
	completedDir, err := f.ensureSubDir(completedDirName)
	if err != nil {
		return "", err
	}
	partialPath := filepath.Join(downloadDir, d.Digest.Encoded())
	offset := resumeOffset(partialPath, d, rc)

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_APPEND
		log.Debugf("resuming download of %s at %d bytes", d.Digest, offset)
	}
	fp, err := os.OpenFile(partialPath, flags, 0600)
	if err != nil {
		return "", err
	}
	w := writerutils.NewSafeFileWriter(fp)
	onProgress.Report(offset, d.Size)
	r := readerutils.NewProgressReader(rc, func(received uint64) {
		onProgress.Report(offset+int64(received), d.Size)
	})
	// read one byte more than expected to detect oversized content
	_, err = io.Copy(w, io.LimitReader(r, d.Size-offset+1))
	if err = errors.Join(err, w.Close()); err != nil {
		return "", err
	}
	if err := verify(partialPath, d); err != nil {
		funcutils.PanicOrLogOnErr(func() error { return os.Remove(partialPath) }, false, "failed to remove invalid download")
		return "", err
	}
	fPath := filepath.Join(completedDir, name)
	if err := os.Rename(partialPath, fPath); err != nil {
		return "", err
	}
	return fPath, nil
}

func resumeOffset(partialPath string, d v1.Descriptor, rc io.Reader) int64 {
	info, err := os.Stat(partialPath)
	if err != nil || info.Size() <= 0 || info.Size() >= d.Size {
		return 0
	}
	seeker, ok := rc.(io.Seeker)
	if !ok {
		return 0
	}
	pos, err := seeker.Seek(info.Size(), io.SeekStart)
	if err != nil || pos != info.Size() {
		log.WithError(err).Debug("cannot resume download, starting over")
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			log.WithError(err).Debug("failed to rewind layer reader")
		}
		return 0
	}
	return info.Size()
}

func verify(fPath string, d v1.Descriptor) error {
	fp, err := os.Open(fPath)
	if err != nil {
		return err
	}
	defer funcutils.PanicOrLogOnErr(fp.Close, false, "failed to close file")
	verifier := d.Digest.Verifier()
	n, err := io.Copy(verifier, fp)
	if err != nil {
		return err
	}
	if n != d.Size {
		return fmt.Errorf("size mismatch: got %d bytes, expected %d", n, d.Size)
	}
	if !verifier.Verified() {
		return fmt.Errorf("digest mismatch for %s", d.Digest)
	}
	return nil
}
