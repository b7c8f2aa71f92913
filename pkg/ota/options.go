package ota

import (
	"time"

	"github.com/unbasical/bundleota/pkg/transport"
)

// UpdateOptions configures ApplyArchiveUpdate.
type UpdateOptions struct {
	// Headers are passed to the transport, e.g. for authorization.
	Headers    map[string]string
	OnProgress transport.ProgressFunc
	// Metadata is persisted after a successful activation, nil means no metadata.
	// Use metadata.Null to store an explicit null.
	Metadata any
	// FormatHint tells the activation service how to unpack the artifact, empty infers it from the file name.
	FormatHint          string
	RestartAfterInstall bool
	// RestartDelay defaults to the orchestrator's restart delay.
	RestartDelay time.Duration
	OnSuccess    func()
	OnFailure    func(detail string)
}

// GitUpdateOptions configures ApplyGitUpdate.
type GitUpdateOptions struct {
	URL string
	// BundlePath is the location of the bundle inside the repository.
	BundlePath string
	// Branch defaults to the branch of the existing checkout or the remote default branch.
	Branch string
	// FolderName defaults to the transport's default folder.
	FolderName          string
	OnProgress          transport.ProgressFunc
	RestartAfterInstall bool
	OnPullSuccess       func()
	OnPullFailed        func(msg string)
	OnCloneSuccess      func()
	OnCloneFailed       func(msg string)
	// OnFinish is invoked exactly once after every other callback, whatever the outcome.
	OnFinish func()
}
