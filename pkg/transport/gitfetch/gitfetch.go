// Package gitfetch keeps a bundle up to date through a git checkout.
package gitfetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/bundleota/internal/pkg/utils/fileutils"
	"github.com/unbasical/bundleota/internal/pkg/utils/pathsanitize"
	"github.com/unbasical/bundleota/pkg/constants"
	"github.com/unbasical/bundleota/pkg/transport"
)

const (
	remoteName    = "origin"
	stagingSuffix = ".clone"
)

// Transport is a transport.GitTransport backed by go-git.
// Checkouts live in <rootDir>/<folderName>.
type Transport struct {
	rootDir string
	auth    gittransport.AuthMethod
}

// New creates a Transport that keeps its checkouts below rootDir.
func New(rootDir string, options ...func(*Transport)) *Transport {
	t := &Transport{rootDir: rootDir}
	for _, option := range options {
		option(t)
	}
	return t
}

// WithAuth sets the authentication used for clone and pull.
func WithAuth(auth gittransport.AuthMethod) func(*Transport) {
	return func(t *Transport) {
		t.auth = auth
	}
}

// WithBasicAuth authenticates with username and password or token over http(s).
func WithBasicAuth(username, password string) func(*Transport) {
	return WithAuth(&http.BasicAuth{Username: username, Password: password})
}

func (t *Transport) checkoutPath(folderName string) (string, error) {
	if folderName == "" {
		folderName = constants.DefaultGitFolderName
	}
	if folderName == "." || folderName == ".." || strings.ContainsAny(folderName, `/\`) {
		return "", fmt.Errorf("invalid folder name %q", folderName)
	}
	return filepath.Join(t.rootDir, folderName), nil
}

func (t *Transport) open(folderName string) (*git.Repository, error) {
	p, err := t.checkoutPath(folderName)
	if err != nil {
		return nil, err
	}
	return git.PlainOpen(p)
}

// Config implements transport.GitTransport.
func (t *Transport) Config(_ context.Context, folderName string) (*transport.GitConfig, error) {
	repo, err := t.open(folderName)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	remote, err := repo.Remote(remoteName)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return remote.Config(), nil
}

// BranchName implements transport.GitTransport.
func (t *Transport) BranchName(_ context.Context, folderName string) (string, error) {
	repo, err := t.open(folderName)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		log.WithError(err).Debug("failed to resolve HEAD of checkout")
		return "", nil
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// Pull implements transport.GitTransport.
// Failures of the pull itself are reported through the result.
func (t *Transport) Pull(ctx context.Context, req transport.PullRequest) (transport.PullResult, error) {
	repo, err := t.open(req.FolderName)
	if err != nil {
		return transport.PullResult{Msg: fmt.Sprintf("failed to open repository: %v", err)}, nil
	}
	workTree, err := repo.Worktree()
	if err != nil {
		return transport.PullResult{Msg: fmt.Sprintf("failed to get worktree: %v", err)}, nil
	}
	opts := &git.PullOptions{
		RemoteName: remoteName,
		Auth:       t.auth,
		Progress:   newProgressWriter(req.OnProgress),
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		opts.SingleBranch = true
	}
	err = workTree.PullContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		log.Info("repository is already up to date")
		return transport.PullResult{Success: true}, nil
	}
	if err != nil {
		return transport.PullResult{Msg: fmt.Sprintf("failed to pull latest changes: %v", err)}, nil
	}
	log.Info("successfully pulled latest changes")
	return transport.PullResult{Success: true}, nil
}

// Clone implements transport.GitTransport.
// The repository is cloned next to the checkout folder and replaces it only once the clone completed,
// a failed clone leaves an existing checkout untouched. A clone that does not contain the bundle
// succeeds without a bundle path.
func (t *Transport) Clone(ctx context.Context, req transport.CloneRequest) (transport.CloneResult, error) {
	dest, err := t.checkoutPath(req.FolderName)
	if err != nil {
		return transport.CloneResult{Msg: err.Error()}, nil
	}
	bundle, err := bundlePath(dest, req.BundlePath)
	if err != nil {
		return transport.CloneResult{Msg: err.Error()}, nil
	}
	if err := os.MkdirAll(t.rootDir, 0755); err != nil {
		return transport.CloneResult{Msg: fmt.Sprintf("failed to create destination directory: %v", err)}, nil
	}
	staging := filepath.Join(t.rootDir, "."+filepath.Base(dest)+stagingSuffix)
	if err := os.RemoveAll(staging); err != nil {
		return transport.CloneResult{Msg: fmt.Sprintf("failed to clear staging directory: %v", err)}, nil
	}
	opts := &git.CloneOptions{
		URL:        req.URL,
		RemoteName: remoteName,
		Auth:       t.auth,
		Progress:   newProgressWriter(req.OnProgress),
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		opts.SingleBranch = true
	}
	logger := log.WithFields(log.Fields{"destination": dest, "branch": req.Branch})
	logger.Info("cloning repository")
	if _, err := git.PlainCloneContext(ctx, staging, false, opts); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			logger.WithError(rmErr).Warn("failed to remove incomplete clone")
		}
		return transport.CloneResult{Msg: fmt.Sprintf("git clone failed: %v", err)}, nil
	}
	if err := fileutils.ReplaceDirectory(staging, dest); err != nil {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			logger.WithError(rmErr).Warn("failed to remove staged clone")
		}
		return transport.CloneResult{Msg: fmt.Sprintf("failed to replace checkout: %v", err)}, nil
	}
	if _, err := os.Stat(bundle); err != nil {
		logger.WithError(err).Warn("cloned repository does not contain the bundle")
		return transport.CloneResult{Success: true, Msg: fmt.Sprintf("bundle %q not found in repository", req.BundlePath)}, nil
	}
	logger.Info("repository cloned successfully")
	return transport.CloneResult{Success: true, Bundle: bundle}, nil
}

// RemoveGitUpdate implements transport.GitTransport.
func (t *Transport) RemoveGitUpdate(_ context.Context, folderName string) error {
	p, err := t.checkoutPath(folderName)
	if err != nil {
		return err
	}
	log.WithField("path", p).Info("removing git checkout")
	return os.RemoveAll(p)
}

// bundlePath joins the bundle path to the checkout, refusing paths that leave it.
func bundlePath(checkout, rel string) (string, error) {
	p, err := pathsanitize.Join(checkout, rel)
	if err != nil {
		return "", fmt.Errorf("invalid bundle path: %w", err)
	}
	return p, nil
}
