// Package transport defines the contracts of the collaborators that obtain bundles.
package transport

import (
	"context"
	"strconv"

	"github.com/go-git/go-git/v5/config"
)

// ProgressFunc receives the bytes received so far and the expected total as decimal strings.
// The total is "-1" when it is unknown.
type ProgressFunc func(received, total string)

// Report invokes f if it is set.
func (f ProgressFunc) Report(received, total int64) {
	if f == nil {
		return
	}
	f(strconv.FormatInt(received, 10), strconv.FormatInt(total, 10))
}

// ArchiveTransport downloads a bundle artifact.
type ArchiveTransport interface {
	// Fetch downloads uri and returns the local path of the artifact.
	// The artifact stays valid until the next call of Fetch.
	Fetch(ctx context.Context, uri string, headers map[string]string, onProgress ProgressFunc) (string, error)
}

// GitConfig is the configuration of an existing checkout.
type GitConfig = config.RemoteConfig

// PullRequest is the input of GitTransport.Pull.
type PullRequest struct {
	Branch     string
	FolderName string
	OnProgress ProgressFunc
}

// PullResult is the outcome of GitTransport.Pull.
type PullResult struct {
	Success bool
	Msg     string
}

// CloneRequest is the input of GitTransport.Clone.
type CloneRequest struct {
	URL        string
	Branch     string
	FolderName string
	BundlePath string
	OnProgress ProgressFunc
}

// CloneResult is the outcome of GitTransport.Clone.
// Bundle is the local path of the bundle and only set on success.
type CloneResult struct {
	Success bool
	Msg     string
	Bundle  string
}

// GitTransport maintains a git checkout that contains a bundle.
type GitTransport interface {
	// Config returns the configuration of the existing checkout, nil if there is none.
	Config(ctx context.Context, folderName string) (*GitConfig, error)
	// BranchName returns the branch of the existing checkout, "" if it cannot be resolved.
	BranchName(ctx context.Context, folderName string) (string, error)
	Pull(ctx context.Context, req PullRequest) (PullResult, error)
	Clone(ctx context.Context, req CloneRequest) (CloneResult, error)
	// RemoveGitUpdate deletes the checkout in folderName, the default folder if empty.
	RemoveGitUpdate(ctx context.Context, folderName string) error
}
