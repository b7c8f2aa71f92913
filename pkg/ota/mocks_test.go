package ota

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unbasical/bundleota/pkg/transport"
)

var errMock = errors.New("mock failure")

type mockStore struct {
	mu             sync.Mutex
	version        string
	metadata       *string
	readErr        error
	writeErr       error
	versionWrites  []string
	metadataWrites []string
}

func (m *mockStore) CurrentVersion(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.readErr
}

func (m *mockStore) SetCurrentVersion(_ context.Context, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versionWrites = append(m.versionWrites, v)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.version = v
	return nil
}

func (m *mockStore) Metadata(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metadata == nil {
		return "", false, m.readErr
	}
	return *m.metadata, true, m.readErr
}

func (m *mockStore) SetMetadata(_ context.Context, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadataWrites = append(m.metadataWrites, v)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.metadata = &v
	return nil
}

type mockActivator struct {
	mu          sync.Mutex
	installErr  error
	deleteErr   error
	rollbackErr error
	panicMsg    string
	installs    []string
	hints       []string
	exact       []string
	deletes     int
	rollbacks   int
	restarts    int
}

func (m *mockActivator) InstallBundle(_ context.Context, path, formatHint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.installs = append(m.installs, path)
	m.hints = append(m.hints, formatHint)
	return m.installErr
}

func (m *mockActivator) InstallExactBundle(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact = append(m.exact, path)
	return m.installErr
}

func (m *mockActivator) DeleteBundle(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	return m.deleteErr
}

func (m *mockActivator) Rollback(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return m.rollbackErr
}

func (m *mockActivator) Restart(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
}

func (m *mockActivator) restartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

type mockArchiveTransport struct {
	path     string
	err      error
	panicMsg string
	calls    int
	uri      string
	headers  map[string]string
}

func (m *mockArchiveTransport) Fetch(_ context.Context, uri string, headers map[string]string, onProgress transport.ProgressFunc) (string, error) {
	m.calls++
	m.uri = uri
	m.headers = headers
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	onProgress.Report(5, 10)
	onProgress.Report(10, 10)
	return m.path, m.err
}

type mockGitTransport struct {
	mu          sync.Mutex
	config      *transport.GitConfig
	configErr   error
	branch      string
	branchErr   error
	pullResult  transport.PullResult
	pullErr     error
	pullPanic   string
	cloneResult transport.CloneResult
	cloneErr    error
	removeErr   error
	pulls       []transport.PullRequest
	clones      []transport.CloneRequest
	removed     []string
}

func (m *mockGitTransport) Config(context.Context, string) (*transport.GitConfig, error) {
	return m.config, m.configErr
}

func (m *mockGitTransport) BranchName(context.Context, string) (string, error) {
	return m.branch, m.branchErr
}

func (m *mockGitTransport) Pull(_ context.Context, req transport.PullRequest) (transport.PullResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls = append(m.pulls, req)
	if m.pullPanic != "" {
		panic(m.pullPanic)
	}
	return m.pullResult, m.pullErr
}

func (m *mockGitTransport) Clone(_ context.Context, req transport.CloneRequest) (transport.CloneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clones = append(m.clones, req)
	return m.cloneResult, m.cloneErr
}

func (m *mockGitTransport) RemoveGitUpdate(_ context.Context, folder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, folder)
	return m.removeErr
}

// mockScheduler records scheduled functions instead of running them.
type mockScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	funcs  []func()
}

func (m *mockScheduler) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.funcs = append(m.funcs, f)
}

func (m *mockScheduler) runAll() {
	m.mu.Lock()
	funcs := m.funcs
	m.funcs = nil
	m.mu.Unlock()
	for _, f := range funcs {
		f()
	}
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *mockRecorder) ObserveUpdate(flow, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, flow+"/"+outcome)
}

// callbacks counts the invocations of update callbacks.
type callbacks struct {
	mu       sync.Mutex
	success  int
	failures []string
}

func (c *callbacks) options() UpdateOptions {
	return UpdateOptions{
		OnSuccess: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.success++
		},
		OnFailure: func(detail string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.failures = append(c.failures, detail)
		},
	}
}
