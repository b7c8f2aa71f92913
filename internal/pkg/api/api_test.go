package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbasical/bundleota/internal/pkg/api/apicommon"
	"github.com/unbasical/bundleota/pkg/activation"
	"github.com/unbasical/bundleota/pkg/ota"
	"github.com/unbasical/bundleota/pkg/ota/metadata"
	"github.com/unbasical/bundleota/pkg/transport"
	"github.com/unbasical/bundleota/pkg/versionstore"
)

type fakeActivator struct {
	mu        sync.Mutex
	installed []string
	active    bool
	restarts  int
}

func (f *fakeActivator) InstallBundle(_ context.Context, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installed = append(f.installed, path)
	f.active = true
	return nil
}

func (f *fakeActivator) InstallExactBundle(ctx context.Context, path string) error {
	return f.InstallBundle(ctx, path, "")
}

func (f *fakeActivator) DeleteBundle(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return activation.ErrNoActiveBundle
	}
	f.active = false
	return nil
}

func (f *fakeActivator) Rollback(context.Context) error {
	return activation.ErrNoPreviousBundle
}

func (f *fakeActivator) Restart(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
}

type fakeArchiveTransport struct {
	path    string
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeArchiveTransport) Fetch(_ context.Context, _ string, _ map[string]string, onProgress transport.ProgressFunc) (string, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	onProgress.Report(1024, 1024)
	return f.path, f.err
}

type fakeGitTransport struct {
	removed []string
}

func (f *fakeGitTransport) Config(context.Context, string) (*transport.GitConfig, error) {
	return nil, nil
}

func (f *fakeGitTransport) BranchName(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeGitTransport) Pull(context.Context, transport.PullRequest) (transport.PullResult, error) {
	return transport.PullResult{}, errors.New("unexpected pull")
}

func (f *fakeGitTransport) Clone(_ context.Context, req transport.CloneRequest) (transport.CloneResult, error) {
	if req.URL == "https://example.com/missing.git" {
		return transport.CloneResult{Msg: "repository not found"}, nil
	}
	return transport.CloneResult{Success: true, Bundle: "/checkout/" + req.BundlePath}, nil
}

func (f *fakeGitTransport) RemoveGitUpdate(_ context.Context, folder string) error {
	f.removed = append(f.removed, folder)
	return nil
}

type testAgent struct {
	router    *gin.Engine
	store     *versionstore.MemoryStore
	activator *fakeActivator
	archive   *fakeArchiveTransport
	git       *fakeGitTransport
	restarts  []time.Duration
}

func newTestAgent(t *testing.T) *testAgent {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a := &testAgent{
		store:     versionstore.NewMemoryStore(),
		activator: &fakeActivator{},
		archive:   &fakeArchiveTransport{path: "/tmp/b.zip"},
		git:       &fakeGitTransport{},
	}
	scheduler := ota.SchedulerFunc(func(d time.Duration, _ func()) {
		a.restarts = append(a.restarts, d)
	})
	a.router = BuildApp(&apicommon.Config{
		Orchestrator:      ota.New(a.store, a.activator, ota.WithScheduler(scheduler)),
		ArchiveTransports: map[string]transport.ArchiveTransport{apicommon.TransportHTTP: a.archive},
		DefaultTransport:  apicommon.TransportHTTP,
		GitTransport:      a.git,
		MetricsEnabled:    true,
	})
	return a
}

func (a *testAgent) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func versionPtr(v int64) *int64 {
	return &v
}

func TestPing(t *testing.T) {
	a := newTestAgent(t)
	w := a.do(http.MethodGet, "/api/v1/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestArchiveUpdate(t *testing.T) {
	a := newTestAgent(t)
	require.NoError(t, a.store.SetCurrentVersion(context.Background(), "3"))

	w := a.do(http.MethodPost, "/api/v1/updates/archive", apicommon.ArchiveUpdateRequest{
		Source:   "https://example.com/b.zip",
		Version:  versionPtr(5),
		Metadata: json.RawMessage(`{"channel":"beta"}`),
		Restart:  true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[apicommon.SuccessResponse[apicommon.UpdateResponse]](t, w)
	assert.Equal(t, "ok", resp.Success.Outcome)
	assert.Equal(t, []string{"/tmp/b.zip"}, a.activator.installed)
	assert.Len(t, a.restarts, 1)

	w = a.do(http.MethodGet, "/api/v1/bundle/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	version := decode[apicommon.SuccessResponse[apicommon.VersionResponse]](t, w)
	assert.Equal(t, apicommon.VersionResponse{Version: 5, Numeric: true}, version.Success)

	w = a.do(http.MethodGet, "/api/v1/bundle/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":{"metadata":{"channel":"beta"},"present":true}}`, w.Body.String())
}

func TestArchiveUpdate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		prepare  func(a *testAgent)
		wantCode int
		wantKind string
	}{
		{
			name:     "malformed body",
			body:     "not an object",
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "missing source",
			body:     apicommon.ArchiveUpdateRequest{},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name:     "unknown transport",
			body:     apicommon.ArchiveUpdateRequest{Source: "x", Transport: "ftp"},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_input",
		},
		{
			name: "version rejected",
			body: apicommon.ArchiveUpdateRequest{Source: "https://example.com/b.zip", Version: versionPtr(2)},
			prepare: func(a *testAgent) {
				_ = a.store.SetCurrentVersion(context.Background(), "2")
			},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "version_rejected",
		},
		{
			name: "transport error",
			body: apicommon.ArchiveUpdateRequest{Source: "https://example.com/b.zip"},
			prepare: func(a *testAgent) {
				a.archive.err = errors.New("connection refused")
			},
			wantCode: http.StatusBadGateway,
			wantKind: "transport_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAgent(t)
			if tt.prepare != nil {
				tt.prepare(a)
			}
			w := a.do(http.MethodPost, "/api/v1/updates/archive", tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			apiErr := decode[apicommon.APIError](t, w)
			assert.Equal(t, tt.wantKind, apiErr.InnerError.Kind)
			assert.Equal(t, tt.wantCode, apiErr.InnerError.Code)
			assert.Empty(t, a.activator.installed)
			assert.Empty(t, a.restarts)
		})
	}
}

func TestArchiveUpdate_BusyWhileInFlight(t *testing.T) {
	a := newTestAgent(t)
	a.archive.entered = make(chan struct{})
	a.archive.release = make(chan struct{})

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- a.do(http.MethodPost, "/api/v1/updates/archive", apicommon.ArchiveUpdateRequest{Source: "https://example.com/b.zip"})
	}()
	<-a.archive.entered

	w := a.do(http.MethodDelete, "/api/v1/bundle", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "busy", decode[apicommon.APIError](t, w).InnerError.Kind)

	close(a.archive.release)
	assert.Equal(t, http.StatusOK, (<-first).Code)
}

func TestGitUpdate(t *testing.T) {
	a := newTestAgent(t)
	w := a.do(http.MethodPost, "/api/v1/updates/git", apicommon.GitUpdateRequest{
		URL:        "https://example.com/app.git",
		BundlePath: "dist/bundle.js",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[apicommon.SuccessResponse[apicommon.UpdateResponse]](t, w)
	assert.Equal(t, "clone", resp.Success.Branch)
	assert.Equal(t, []string{"/checkout/dist/bundle.js"}, a.activator.installed)

	w = a.do(http.MethodPost, "/api/v1/updates/git", apicommon.GitUpdateRequest{
		URL:        "https://example.com/missing.git",
		BundlePath: "dist/bundle.js",
	})
	require.Equal(t, http.StatusBadGateway, w.Code)
	apiErr := decode[apicommon.APIError](t, w)
	assert.Equal(t, "clone_failed", apiErr.InnerError.Kind)
	assert.Equal(t, "repository not found", apiErr.InnerError.ErrorContext)

	w = a.do(http.MethodDelete, "/api/v1/updates/git?folder=app", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"app"}, a.git.removed)
}

func TestRemoveBundle(t *testing.T) {
	a := newTestAgent(t)
	w := a.do(http.MethodDelete, "/api/v1/bundle", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "delete_failed", decode[apicommon.APIError](t, w).InnerError.Kind)

	w = a.do(http.MethodPost, "/api/v1/updates/archive", apicommon.ArchiveUpdateRequest{Source: "https://example.com/b.zip", Version: versionPtr(4)})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodDelete, "/api/v1/bundle?restart=yes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodDelete, "/api/v1/bundle?restart=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, a.restarts, 1)
	v, err := a.store.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestRollback_NoPreviousBundle(t *testing.T) {
	a := newTestAgent(t)
	w := a.do(http.MethodPost, "/api/v1/bundle/rollback", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "rollback_failed", decode[apicommon.APIError](t, w).InnerError.Kind)
}

func TestRestart(t *testing.T) {
	a := newTestAgent(t)
	w := a.do(http.MethodPost, "/api/v1/restart", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []time.Duration{0}, a.restarts)
}

func TestMetadata_Absent(t *testing.T) {
	a := newTestAgent(t)
	w := a.do(http.MethodGet, "/api/v1/bundle/metadata", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":{"metadata":null,"present":false}}`, w.Body.String())
}

func TestMetadata_Corrupt(t *testing.T) {
	a := newTestAgent(t)
	require.NoError(t, a.store.SetMetadata(context.Background(), "{"))
	w := a.do(http.MethodGet, "/api/v1/bundle/metadata", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "metadata_serialization_failed", decode[apicommon.APIError](t, w).InnerError.Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAgent(t)
	a.do(http.MethodGet, "/api/v1/ping", nil)
	w := a.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bundleota_http_requests_total")
}

func TestDecodeMetadata(t *testing.T) {
	m, err := decodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = decodeMetadata(json.RawMessage("null"))
	require.NoError(t, err)
	assert.True(t, metadata.IsNull(m))

	m, err = decodeMetadata(json.RawMessage(`[1,"a"]`))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "a"}, m)
}
