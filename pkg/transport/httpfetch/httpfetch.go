// Package httpfetch downloads bundle archives over HTTP(S).
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/internal/pkg/utils/fileutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/funcutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/readerutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/writerutils"
	"github.com/unbasical/bundleota/pkg/backoff"
	"github.com/unbasical/bundleota/pkg/transport"
)

const defaultFileName = "bundle"

// Fetcher is a transport.ArchiveTransport for http and https URLs.
type Fetcher struct {
	workDir        string
	client         *http.Client
	newBackoff     func() backoff.Strategy
	defaultHeaders map[string]string
}

// New creates a Fetcher that downloads into workDir.
// The content of workDir is owned by the Fetcher and removed at the start of every download.
func New(workDir string, options ...func(*Fetcher)) *Fetcher {
	f := &Fetcher{
		workDir:    workDir,
		client:     &http.Client{},
		newBackoff: backoff.DefaultBackoff,
	}
	for _, option := range options {
		option(f)
	}
	return f
}

// WithHTTPClient replaces the default client.
// Failed requests are retried by the Fetcher's backoff, the client should not retry on its own.
func WithHTTPClient(c *http.Client) func(*Fetcher) {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithBackoff sets the strategy used between attempts of a failed download.
func WithBackoff(newBackoff func() backoff.Strategy) func(*Fetcher) {
	return func(f *Fetcher) {
		f.newBackoff = newBackoff
	}
}

// WithDefaultHeaders adds headers to every request, per request headers take precedence.
func WithDefaultHeaders(headers map[string]string) func(*Fetcher) {
	return func(f *Fetcher) {
		f.defaultHeaders = headers
	}
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d %s", e.code, http.StatusText(e.code))
}

// retryable reports whether another attempt might succeed.
func retryable(err error) bool {
	var se statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests || se.code == http.StatusRequestTimeout
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Fetch implements transport.ArchiveTransport.
func (f *Fetcher) Fetch(ctx context.Context, uri string, headers map[string]string, onProgress transport.ProgressFunc) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", uri, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: expected an absolute http(s) url", uri)
	}
	if err := os.MkdirAll(f.workDir, 0755); err != nil {
		return "", err
	}
	if err := fileutils.CleanDirectory(f.workDir); err != nil {
		return "", fmt.Errorf("failed to clean download directory: %w", err)
	}
	headers = lo.Assign(f.defaultHeaders, headers)
	logger := log.WithField("url", u.Redacted())

	var fPath string
	err = backoff.Retry(ctx, f.newBackoff(), func() (bool, error) {
		var attemptErr error
		fPath, attemptErr = f.download(ctx, u, headers, onProgress)
		if attemptErr != nil {
			logger.WithError(attemptErr).Debug("download attempt failed")
			return retryable(attemptErr), attemptErr
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	logger.WithField("path", fPath).Debug("download completed")
	return fPath, nil
}

func (f *Fetcher) download(ctx context.Context, u *url.URL, headers map[string]string, onProgress transport.ProgressFunc) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer funcutils.PanicOrLogOnErr(resp.Body.Close, false, "failed to close response body")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError{code: resp.StatusCode}
	}

	fPath := filepath.Join(f.workDir, fileName(resp, u))
	fp, err := os.OpenFile(fPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	w := writerutils.NewSafeFileWriter(fp)
	total := resp.ContentLength
	onProgress.Report(0, total)
	body := readerutils.NewProgressReader(resp.Body, func(received uint64) {
		onProgress.Report(int64(received), total)
	})
	_, err = io.Copy(w, body)
	if err = errors.Join(err, w.Close()); err != nil {
		return "", err
	}
	if total >= 0 && w.Written() != total {
		return "", fmt.Errorf("received %d bytes, expected %d", w.Written(), total)
	}
	return fPath, nil
}

// fileName picks the local file name from the Content-Disposition header or the URL path,
// keeping the extension so the bundle format can be inferred from it.
func fileName(resp *http.Response, u *url.URL) string {
	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			name = params["filename"]
		}
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return defaultFileName
	}
	return name
}
